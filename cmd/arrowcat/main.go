// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// arrowcat fetches an Arrow IPC stream over HTTP and prints a summary of
// its schema and record batches as they decode.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Query-farm/arrow-stream/arrowstream"
	streamotel "github.com/Query-farm/arrow-stream/arrowstream/otel"
)

func main() {
	app := &cli.App{
		Name:      "arrowcat",
		Usage:     "fetch an Arrow IPC stream over HTTP and summarize it",
		ArgsUsage: "URL",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable per-chunk debug logging",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "overall transfer timeout (0 disables)",
			},
			&cli.BoolFlag{
				Name:  "otel",
				Usage: "emit OpenTelemetry traces and metrics to stdout",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: arrowcat [flags] URL", 2)
	}
	url := c.Args().First()

	level := zerolog.InfoLevel
	if c.Bool("verbose") {
		level = zerolog.TraceLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	ctx := c.Context
	if d := c.Duration("timeout"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	opts := &arrowstream.FetchOptions{Logger: &logger}
	if c.Bool("otel") {
		shutdown, err := setupOtel()
		if err != nil {
			return err
		}
		defer shutdown()
		streamotel.Instrument(opts, streamotel.DefaultConfig())
	}

	dec := arrowstream.NewDecoder()
	batches := 0
	dec.SetListener(arrowstream.Listener{
		OnSchema: func(schema *arrow.Schema) error {
			for _, f := range schema.Fields() {
				fmt.Printf("field %-24s %s (nullable=%t)\n", f.Name, f.Type, f.Nullable)
			}
			return nil
		},
		OnRecordBatch: func(batch arrow.RecordBatch) error {
			batches++
			fmt.Printf("batch %d: %d rows\n", batches, batch.NumRows())
			return nil
		},
	})

	if err := arrowstream.Fetch(ctx, url, dec, opts); err != nil {
		return err
	}

	stats := dec.Stats()
	fmt.Printf("done: %d batches, %d rows, %d bytes\n",
		stats.BatchesDecoded, stats.RowsDecoded, stats.BytesConsumed)
	return nil
}

// setupOtel installs stdout trace and metric exporters on the global SDK.
func setupOtel() (func(), error) {
	traceExp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp))
	otel.SetTracerProvider(tp)

	metricExp, err := stdoutmetric.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
	)
	otel.SetMeterProvider(mp)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
	}, nil
}
