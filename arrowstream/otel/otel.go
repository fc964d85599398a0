// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package streamotel provides OpenTelemetry instrumentation for arrow-stream
// transfers. It implements the [arrowstream.StreamHook] interface to add
// distributed tracing and metrics around each fetched stream.
//
// Usage:
//
//	opts := &arrowstream.FetchOptions{}
//	streamotel.Instrument(opts, streamotel.DefaultConfig())
//	err := arrowstream.Fetch(ctx, url, dec, opts)
package streamotel

import (
	"context"
	"errors"
	"time"

	"github.com/Query-farm/arrow-stream/arrowstream"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "arrow_stream"

// Config configures OpenTelemetry instrumentation for stream transfers.
type Config struct {
	// TracerProvider supplies the tracer. Defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider supplies the meter. Defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// EnableTracing enables span creation. Default true.
	EnableTracing bool
	// EnableMetrics enables counter and histogram recording. Default true.
	EnableMetrics bool
	// RecordExceptions calls RecordError on the span for failed transfers.
	// Default true.
	RecordExceptions bool
	// CustomAttributes are added to every span.
	CustomAttributes []attribute.KeyValue
}

// DefaultConfig returns a Config with sensible defaults. TracerProvider and
// MeterProvider are resolved from the global OTel SDK at instrumentation time.
func DefaultConfig() Config {
	return Config{
		EnableTracing:    true,
		EnableMetrics:    true,
		RecordExceptions: true,
	}
}

// Instrument attaches OpenTelemetry instrumentation to the given fetch
// options. The hook is installed on opts.Hook.
func Instrument(opts *arrowstream.FetchOptions, cfg Config) {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}

	hook := &otelHook{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
	}

	if cfg.EnableMetrics {
		meter := cfg.MeterProvider.Meter(instrumentationName)
		hook.transferCounter, _ = meter.Int64Counter("arrow_stream.client.transfers",
			metric.WithUnit("{transfer}"),
			metric.WithDescription("Number of stream transfers"),
		)
		hook.durationHistogram, _ = meter.Float64Histogram("arrow_stream.client.duration",
			metric.WithUnit("s"),
			metric.WithDescription("Duration of stream transfers"),
		)
		hook.bytesCounter, _ = meter.Int64Counter("arrow_stream.client.consumed_bytes",
			metric.WithUnit("By"),
			metric.WithDescription("Bytes fed to the stream decoder"),
		)
	}

	opts.Hook = hook
}

// otelHook implements arrowstream.StreamHook with OpenTelemetry tracing
// and metrics.
type otelHook struct {
	cfg               Config
	tracer            trace.Tracer
	transferCounter   metric.Int64Counter
	durationHistogram metric.Float64Histogram
	bytesCounter      metric.Int64Counter
}

// spanToken is the HookToken returned by OnStreamStart.
type spanToken struct {
	span      trace.Span
	startTime time.Time
}

// OnStreamStart starts a client span for the transfer.
func (h *otelHook) OnStreamStart(ctx context.Context, info arrowstream.StreamInfo) (context.Context, arrowstream.HookToken) {
	if !h.cfg.EnableTracing {
		return ctx, &spanToken{startTime: time.Now()}
	}

	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "arrow_stream"),
		attribute.String("url.full", info.URL),
		attribute.String("http.response.header.content-type", info.ContentType),
	}
	if info.ContentEncoding != "" {
		attrs = append(attrs, attribute.String("http.response.header.content-encoding", info.ContentEncoding))
	}
	attrs = append(attrs, h.cfg.CustomAttributes...)

	ctx, span := h.tracer.Start(ctx, "arrow_stream/fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx, &spanToken{span: span, startTime: time.Now()}
}

// OnStreamEnd records decode statistics, metrics, and ends the span.
func (h *otelHook) OnStreamEnd(ctx context.Context, token arrowstream.HookToken, info arrowstream.StreamInfo, stats *arrowstream.StreamStatistics, err error) {
	st, ok := token.(*spanToken)
	if !ok {
		return
	}

	duration := time.Since(st.startTime)

	status := "ok"
	if err != nil {
		status = "error"
	}

	if h.cfg.EnableMetrics {
		metricAttrs := metric.WithAttributes(
			attribute.String("rpc.system", "arrow_stream"),
			attribute.String("status", status),
		)
		if h.transferCounter != nil {
			h.transferCounter.Add(ctx, 1, metricAttrs)
		}
		if h.durationHistogram != nil {
			h.durationHistogram.Record(ctx, duration.Seconds(), metricAttrs)
		}
		if h.bytesCounter != nil && stats != nil {
			h.bytesCounter.Add(ctx, stats.BytesConsumed, metricAttrs)
		}
	}

	if st.span != nil && st.span.IsRecording() {
		if stats != nil {
			st.span.SetAttributes(
				attribute.Int64("arrow_stream.consumed_bytes", stats.BytesConsumed),
				attribute.Int64("arrow_stream.frames", stats.FramesExtracted),
				attribute.Int64("arrow_stream.schemas", stats.SchemasDecoded),
				attribute.Int64("arrow_stream.batches", stats.BatchesDecoded),
				attribute.Int64("arrow_stream.rows", stats.RowsDecoded),
			)
		}

		if err != nil {
			st.span.SetStatus(codes.Error, err.Error())
			if h.cfg.RecordExceptions {
				st.span.RecordError(err)
			}
			var streamErr *arrowstream.StreamError
			if errors.As(err, &streamErr) {
				st.span.SetAttributes(attribute.String("arrow_stream.error_kind", streamErr.Kind.String()))
			}
		} else {
			st.span.SetStatus(codes.Ok, "")
		}

		st.span.End()
	}
}
