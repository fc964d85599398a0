// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package arrowstream

import "context"

// StreamHook provides observability callpoints around one stream transfer.
// Implementations must tolerate concurrent use when the same hook is shared
// across transfers.
type StreamHook interface {
	OnStreamStart(ctx context.Context, info StreamInfo) (context.Context, HookToken)
	OnStreamEnd(ctx context.Context, token HookToken, info StreamInfo, stats *StreamStatistics, err error)
}

// HookToken is an opaque value returned by OnStreamStart and passed back to
// OnStreamEnd. Only meaningful to the StreamHook that created it.
type HookToken interface{}

// StreamInfo carries transfer metadata passed to hooks.
type StreamInfo struct {
	URL             string // request URL
	ContentType     string // response Content-Type
	ContentEncoding string // response Content-Encoding, "" if identity
}

// StreamStatistics holds per-stream decode counters.
type StreamStatistics struct {
	BytesConsumed   int64 // raw bytes fed to Consume
	FramesExtracted int64 // complete frames, end marker included
	SchemasDecoded  int64
	BatchesDecoded  int64
	RowsDecoded     int64
	BodyBytes       int64 // declared body bytes across record batches
}
