// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package benchmark holds stream fixtures and decode benchmarks for the
// arrowstream package.
package benchmark

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// CommitsSchema mirrors the shape of the arrow-commits sample stream:
// an id column and a message column.
var CommitsSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "message", Type: arrow.BinaryTypes.String},
}, nil)

// StreamSpec describes a fixture stream to encode.
type StreamSpec struct {
	Batches      int
	RowsPerBatch int
	// ZstdBodies writes record batch bodies with zstd buffer compression.
	ZstdBodies bool
}

// EncodeStream builds a complete Arrow IPC stream (schema, record
// batches, end-of-stream marker) in memory.
func EncodeStream(spec StreamSpec) []byte {
	mem := memory.NewGoAllocator()

	var buf bytes.Buffer
	opts := []ipc.Option{ipc.WithSchema(CommitsSchema), ipc.WithAllocator(mem)}
	if spec.ZstdBodies {
		opts = append(opts, ipc.WithZstd())
	}
	w := ipc.NewWriter(&buf, opts...)

	row := int64(0)
	for b := 0; b < spec.Batches; b++ {
		rec := makeBatch(mem, row, spec.RowsPerBatch)
		if err := w.Write(rec); err != nil {
			rec.Release()
			panic(fmt.Sprintf("benchmark: encoding fixture stream: %v", err))
		}
		rec.Release()
		row += int64(spec.RowsPerBatch)
	}
	if err := w.Close(); err != nil {
		panic(fmt.Sprintf("benchmark: closing fixture stream: %v", err))
	}
	return buf.Bytes()
}

// makeBatch builds one record batch of sequential ids and synthetic
// commit messages starting at the given row offset.
func makeBatch(mem memory.Allocator, start int64, rows int) arrow.RecordBatch {
	ids := array.NewInt64Builder(mem)
	defer ids.Release()
	msgs := array.NewStringBuilder(mem)
	defer msgs.Release()

	for i := 0; i < rows; i++ {
		ids.Append(start + int64(i))
		msgs.Append(fmt.Sprintf("commit %d: adjust stream decoder internals", start+int64(i)))
	}

	idArr := ids.NewArray()
	defer idArr.Release()
	msgArr := msgs.NewArray()
	defer msgArr.Release()

	return array.NewRecordBatch(CommitsSchema, []arrow.Array{idArr, msgArr}, int64(rows))
}
