// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package arrowstream

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// streamState tracks the decoder's terminal status.
type streamState int

const (
	stateActive streamState = iota
	stateClosed             // clean termination: end-of-stream seen or Close on an empty buffer
	stateFailed             // fatal decode error; latched
)

// Decoder is a push-based incremental decoder for Arrow IPC streams.
//
// Feed it byte chunks with [Decoder.Consume]; every schema and record
// batch completed by a chunk is dispatched to the registered [Listener]
// before Consume returns. A Decoder is single-threaded: exactly one
// Consume call may be in flight, and instances must not be shared
// across goroutines without external synchronization.
type Decoder struct {
	listener Listener
	asm      *assembler

	// buf accumulates received bytes that have not yet formed a complete
	// frame. It never holds bytes of an already-dispatched frame.
	buf []byte

	state   streamState
	failure error
	stats   StreamStatistics

	maxMetadataSize int32
	maxBodySize     int64
}

// NewDecoder creates a decoder with default limits and the Go allocator.
func NewDecoder() *Decoder {
	return &Decoder{
		asm:             newAssembler(memory.NewGoAllocator()),
		maxMetadataSize: DefaultMaxMetadataSize,
		maxBodySize:     DefaultMaxBodySize,
	}
}

// SetListener registers the dispatch handlers. Either slot may be nil;
// units matching a nil slot are decoded and then silently dropped.
func (d *Decoder) SetListener(l Listener) {
	d.listener = l
}

// SetAllocator replaces the allocator used for reconstructed batches.
// Call before the first Consume.
func (d *Decoder) SetAllocator(mem memory.Allocator) {
	d.asm = newAssembler(mem)
}

// SetSizeLimits overrides the sanity caps on declared metadata and body
// lengths. Headers declaring more are treated as corruption.
func (d *Decoder) SetSizeLimits(maxMetadata int32, maxBody int64) {
	d.maxMetadataSize = maxMetadata
	d.maxBodySize = maxBody
}

// Schema returns the schema currently in effect, or nil before the first
// schema message.
func (d *Decoder) Schema() *arrow.Schema {
	return d.asm.Schema()
}

// Done reports whether the decoder has reached a terminal state, clean
// or failed.
func (d *Decoder) Done() bool {
	return d.state != stateActive
}

// Err returns the latched fatal error, or nil if the decoder is active
// or terminated cleanly.
func (d *Decoder) Err() error {
	return d.failure
}

// Stats returns a snapshot of the decode counters.
func (d *Decoder) Stats() StreamStatistics {
	return d.stats
}

// Consume feeds one chunk to the decoder and returns the number of units
// (schemas and record batches) dispatched before it returned. The chunk
// may be any length, including zero, and is copied: the decoder retains
// no references into p after the call.
//
// Fatal errors (CorruptStream, SchemaNotEstablished) latch: every later
// Consume returns the same error without touching further bytes. After
// clean termination Consume fails with StreamAlreadyClosed. A
// CallbackFailed error aborts delivery of one unit but leaves the
// decoder and its accumulation buffer consistent for further input.
func (d *Decoder) Consume(p []byte) (int, error) {
	switch d.state {
	case stateClosed:
		return 0, &StreamError{Kind: StreamAlreadyClosed, Message: "consume after end of stream"}
	case stateFailed:
		return 0, d.failure
	}

	d.buf = append(d.buf, p...)
	d.stats.BytesConsumed += int64(len(p))

	dispatched := 0
	for {
		f, n, err := extractFrame(d.buf, d.maxMetadataSize, d.maxBodySize)
		if err != nil {
			return dispatched, d.fail(err)
		}
		if n == 0 {
			return dispatched, nil
		}
		d.stats.FramesExtracted++

		switch f.kind {
		case frameSchema:
			schema, err := d.asm.applySchema(f)
			if err != nil {
				return dispatched, d.fail(err)
			}
			d.discard(n)
			d.stats.SchemasDecoded++
			if err := d.dispatchSchema(schema); err != nil {
				return dispatched, err
			}
			dispatched++

		case frameDictionaryBatch:
			if err := d.asm.applyDictionary(f); err != nil {
				return dispatched, d.fail(err)
			}
			d.discard(n)

		case frameRecordBatch:
			rec, err := d.asm.applyRecordBatch(f)
			if err != nil {
				return dispatched, d.fail(err)
			}
			d.discard(n)
			d.stats.BatchesDecoded++
			d.stats.RowsDecoded += rec.NumRows()
			d.stats.BodyBytes += f.bodyLen
			if err := d.dispatchBatch(rec); err != nil {
				return dispatched, err
			}
			dispatched++

		case frameEnd:
			// Anything after the end-of-stream marker is not part of
			// the stream; drop it.
			d.buf = nil
			d.state = stateClosed
			return dispatched, nil
		}
	}
}

// Close signals that the byte source is exhausted. A stream that stopped
// at a message boundary is treated as implicitly terminated (the C++
// StreamDecoder accepts the same); bytes of an incomplete message make
// the stream corrupt. Close after a fatal error returns that error.
func (d *Decoder) Close() error {
	switch d.state {
	case stateFailed:
		return d.failure
	case stateClosed:
		return nil
	}
	if len(d.buf) > 0 {
		return d.fail(corruptf("stream truncated with %d bytes of an incomplete message", len(d.buf)))
	}
	d.state = stateClosed
	return nil
}

// fail latches a fatal error. The decoder never resynchronizes after
// corruption, so the buffered bytes are dropped.
func (d *Decoder) fail(err error) error {
	d.state = stateFailed
	d.failure = err
	d.buf = nil
	return err
}

// discard removes n consumed bytes from the front of the accumulation
// buffer, compacting in place so append can reuse the backing array.
func (d *Decoder) discard(n int) {
	if n >= len(d.buf) {
		d.buf = d.buf[:0]
		return
	}
	rem := copy(d.buf, d.buf[n:])
	d.buf = d.buf[:rem]
}
