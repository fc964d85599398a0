// Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package arrowstream implements incremental, push-based decoding of
// Apache Arrow IPC streams for Go.
//
// Unlike the pull-based ipc.Reader, which demands an io.Reader it can
// block on, a [Decoder] accepts byte chunks of whatever size and
// alignment a transport happens to deliver. It assembles complete IPC
// messages across chunk boundaries and hands each decoded schema or
// record batch to caller-registered handlers before the Consume call
// that completed it returns. This makes it a natural fit for feeding
// record batches out of an HTTP response body, a socket, or any other
// source that produces bytes asynchronously, without buffering the
// whole transfer.
//
// # Decoding model
//
//	dec := arrowstream.NewDecoder()
//	dec.SetListener(arrowstream.Listener{
//		OnSchema: func(schema *arrow.Schema) error { ... },
//		OnRecordBatch: func(batch arrow.RecordBatch) error { ... },
//	})
//	for each chunk {
//		units, err := dec.Consume(chunk)
//		...
//	}
//	err := dec.Close()
//
// Consume extracts and dispatches every message that is complete given
// the bytes received so far; a trailing partial message is retained
// until later chunks complete it. A one-byte-at-a-time feed decodes
// the same unit sequence as a single whole-stream chunk, only more
// slowly. Close signals that the byte source is exhausted: a stream
// that simply stops at a message boundary is treated as implicitly
// terminated, while leftover bytes of an incomplete message make the
// stream corrupt.
//
// # Ownership
//
// A record batch passed to OnRecordBatch is borrowed: it is valid only
// for the duration of the callback, after which the decoder releases
// it. Handlers that need a batch beyond the call must Retain it (and
// later Release it), per the usual arrow-go reference counting.
// Schemas are plain Go values shared by reference; a schema message
// arriving mid-stream supersedes the previous schema for all later
// batches without affecting batches already delivered.
//
// # Errors
//
// All decode failures are returned from Consume as a [*StreamError]
// and can be classified with errors.Is against the package sentinels
// ([ErrCorruptStream], [ErrSchemaNotEstablished], [ErrStreamClosed],
// [ErrCallbackFailed], [ErrSource]). Corruption and a record batch
// arriving before any schema are fatal: the decoder latches the error
// and every later Consume returns it unchanged. A handler error or
// panic surfaces as ErrCallbackFailed but leaves the decoder usable;
// only delivery of that one unit is lost.
//
// # HTTP byte source
//
// [Fetch] streams an HTTP response body into a decoder, transparently
// decompressing zstd- or gzip-encoded responses, and keeps transport
// failures ([ErrSource]) strictly separate from decode failures so
// that neither can mask the other. [FetchStream] layers a pull-style
// [StreamReader] on top for callers that prefer iterating batches to
// registering handlers.
//
// # Reference implementation
//
// The decoding semantics follow the C++ arrow::ipc::StreamDecoder and
// its listener contract.
package arrowstream
