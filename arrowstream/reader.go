// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package arrowstream

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
)

const defaultQueueDepth = 4

// StreamReader is a pull-style facade over a push Decoder: batches decoded
// by a background transfer are queued on a bounded channel and handed out
// through the usual Next/RecordBatch iteration. The bounded queue applies
// backpressure to the transfer, so a slow consumer slows the download
// rather than accumulating batches in memory.
//
// A StreamReader is intended for a single consuming goroutine.
type StreamReader struct {
	schemaCh chan *arrow.Schema
	batches  chan arrow.RecordBatch
	done     chan struct{}
	cancel   context.CancelFunc

	err    error // set before done is closed
	schema *arrow.Schema
	cur    arrow.RecordBatch
}

// FetchStream starts fetching url in a background goroutine and returns a
// reader over its record batches. Release must be called when done with
// the reader, whether or not iteration ran to completion.
func FetchStream(ctx context.Context, url string, opts *FetchOptions) *StreamReader {
	ctx, cancel := context.WithCancel(ctx)
	depth := defaultQueueDepth
	if opts != nil && opts.QueueDepth > 0 {
		depth = opts.QueueDepth
	}
	r := &StreamReader{
		schemaCh: make(chan *arrow.Schema, 1),
		batches:  make(chan arrow.RecordBatch, depth),
		done:     make(chan struct{}),
		cancel:   cancel,
	}

	dec := NewDecoder()
	dec.SetListener(Listener{
		OnSchema: func(schema *arrow.Schema) error {
			// Only the first schema is surfaced through Schema(); a
			// superseding schema still reaches batches by reference.
			select {
			case r.schemaCh <- schema:
			default:
			}
			return nil
		},
		OnRecordBatch: func(batch arrow.RecordBatch) error {
			batch.Retain() // keep alive across the channel; released by the reader
			select {
			case r.batches <- batch:
				return nil
			case <-ctx.Done():
				batch.Release()
				return ctx.Err()
			}
		},
	})

	go func() {
		err := Fetch(ctx, url, dec, opts)
		r.err = err
		close(r.done)
		// Fetch has returned, so no handler can send anymore.
		close(r.batches)
	}()
	return r
}

// Schema blocks until the stream's schema has been decoded, the stream
// ends, or ctx is cancelled.
func (r *StreamReader) Schema(ctx context.Context) (*arrow.Schema, error) {
	if r.schema != nil {
		return r.schema, nil
	}
	select {
	case s := <-r.schemaCh:
		r.schema = s
		return s, nil
	case <-r.done:
		if r.err != nil {
			return nil, r.err
		}
		return nil, &StreamError{Kind: SchemaNotEstablished, Message: "stream ended before a schema was decoded"}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Next advances to the next record batch, releasing the previous one. It
// returns false when the stream is exhausted or has failed; check Err to
// distinguish.
func (r *StreamReader) Next() bool {
	if r.cur != nil {
		r.cur.Release()
		r.cur = nil
	}
	batch, ok := <-r.batches
	if !ok {
		return false
	}
	r.cur = batch
	return true
}

// RecordBatch returns the current batch. It is valid until the next call
// to Next or Release; Retain it to keep it longer.
func (r *StreamReader) RecordBatch() arrow.RecordBatch {
	return r.cur
}

// Err returns the transfer error, if any. It reports nil until the
// background transfer has finished.
func (r *StreamReader) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Release stops the background transfer and releases any batches still
// queued. Safe to call more than once.
func (r *StreamReader) Release() {
	r.cancel()
	if r.cur != nil {
		r.cur.Release()
		r.cur = nil
	}
	// Drain so retained batches queued behind the consumer are released.
	// The channel is closed once the cancelled transfer returns.
	for batch := range r.batches {
		batch.Release()
	}
}
