// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package arrowstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamReaderIteration(t *testing.T) {
	stream := encodeTestStream(t, 4, 3)
	srv := serveStream(t, stream, "")

	reader := FetchStream(context.Background(), srv.URL, nil)
	defer reader.Release()

	schema, err := reader.Schema(context.Background())
	require.NoError(t, err)
	assert.True(t, schema.Equal(testSchema))

	batches, rows := 0, int64(0)
	for reader.Next() {
		batch := reader.RecordBatch()
		require.NotNil(t, batch)
		assert.Same(t, schema, batch.Schema())
		batches++
		rows += batch.NumRows()
	}
	require.NoError(t, reader.Err())
	assert.Equal(t, 4, batches)
	assert.Equal(t, int64(12), rows)
}

func TestStreamReaderBackpressure(t *testing.T) {
	stream := encodeTestStream(t, 6, 2)
	srv := serveStream(t, stream, "")

	reader := FetchStream(context.Background(), srv.URL, &FetchOptions{QueueDepth: 1})
	defer reader.Release()

	// A deliberately slow consumer still sees every batch, in order.
	var rows int64
	for reader.Next() {
		rows += reader.RecordBatch().NumRows()
		time.Sleep(2 * time.Millisecond)
	}
	require.NoError(t, reader.Err())
	assert.Equal(t, int64(12), rows)
}

func TestStreamReaderSchemaOnFailedStream(t *testing.T) {
	srv := serveStream(t, []byte("garbage that is in no way an arrow stream..."), "")

	reader := FetchStream(context.Background(), srv.URL, nil)
	defer reader.Release()

	_, err := reader.Schema(context.Background())
	require.ErrorIs(t, err, ErrCorruptStream)

	assert.False(t, reader.Next())
	assert.ErrorIs(t, reader.Err(), ErrCorruptStream)
}

func TestStreamReaderSchemaOnEmptyStream(t *testing.T) {
	// End-of-stream marker only: a valid stream with no schema and no rows.
	srv := serveStream(t, []byte{0xff, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x00}, "")

	reader := FetchStream(context.Background(), srv.URL, nil)
	defer reader.Release()

	_, err := reader.Schema(context.Background())
	require.ErrorIs(t, err, ErrSchemaNotEstablished)
	assert.False(t, reader.Next())
	assert.NoError(t, reader.Err())
}

func TestStreamReaderSchemaContextCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := serveStreamBlocking(t, release)

	reader := FetchStream(context.Background(), srv.URL, nil)
	defer reader.Release()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := reader.Schema(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStreamReaderEarlyRelease(t *testing.T) {
	stream := encodeTestStream(t, 8, 16)
	srv := serveStream(t, stream, "")

	reader := FetchStream(context.Background(), srv.URL, &FetchOptions{QueueDepth: 1})

	require.True(t, reader.Next())

	// Walking away mid-stream must cancel the transfer and release every
	// queued batch without deadlocking.
	done := make(chan struct{})
	go func() {
		reader.Release()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Release did not return")
	}
}

// serveStreamBlocking starts a server that sends a partial frame and then
// holds the connection open until release is closed.
func serveStreamBlocking(t *testing.T, release chan struct{}) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", arrowStreamContentType)
		w.Write([]byte{0xff, 0xff, 0xff, 0xff}) // continuation only, no length yet
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}
