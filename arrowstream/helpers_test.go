// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package arrowstream

import (
	"bytes"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
)

// testSchema is the fixture schema used across the package tests.
var testSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "label", Type: arrow.BinaryTypes.String, Nullable: true},
}, nil)

// makeTestBatch builds one batch of sequential ids starting at start.
func makeTestBatch(t *testing.T, mem memory.Allocator, start int64, rows int) arrow.RecordBatch {
	t.Helper()

	ids := array.NewInt64Builder(mem)
	defer ids.Release()
	labels := array.NewStringBuilder(mem)
	defer labels.Release()

	for i := 0; i < rows; i++ {
		ids.Append(start + int64(i))
		if i%3 == 0 {
			labels.AppendNull()
		} else {
			labels.Append("row")
		}
	}

	idArr := ids.NewArray()
	defer idArr.Release()
	labelArr := labels.NewArray()
	defer labelArr.Release()

	return array.NewRecordBatch(testSchema, []arrow.Array{idArr, labelArr}, int64(rows))
}

// encodeTestStream writes a complete IPC stream (schema, batches, EOS).
func encodeTestStream(t *testing.T, batches, rowsPerBatch int, opts ...ipc.Option) []byte {
	t.Helper()

	mem := memory.NewGoAllocator()
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, append([]ipc.Option{ipc.WithSchema(testSchema), ipc.WithAllocator(mem)}, opts...)...)

	start := int64(0)
	for b := 0; b < batches; b++ {
		rec := makeTestBatch(t, mem, start, rowsPerBatch)
		require.NoError(t, w.Write(rec))
		rec.Release()
		start += int64(rowsPerBatch)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// batchInfo captures what a dispatched batch looked like without retaining it.
type batchInfo struct {
	rows   int64
	ids    []int64
	schema *arrow.Schema
}

// unitLog collects dispatched units in arrival order.
type unitLog struct {
	schemas []*arrow.Schema
	batches []batchInfo
}

func (l *unitLog) listener() Listener {
	return Listener{
		OnSchema: func(schema *arrow.Schema) error {
			l.schemas = append(l.schemas, schema)
			return nil
		},
		OnRecordBatch: func(batch arrow.RecordBatch) error {
			info := batchInfo{rows: batch.NumRows(), schema: batch.Schema()}
			if batch.NumCols() > 0 {
				if ids, ok := batch.Column(0).(*array.Int64); ok {
					info.ids = append(info.ids, ids.Int64Values()...)
				}
			}
			l.batches = append(l.batches, info)
			return nil
		},
	}
}

// allIDs flattens the ids seen across all dispatched batches.
func (l *unitLog) allIDs() []int64 {
	var ids []int64
	for _, b := range l.batches {
		ids = append(ids, b.ids...)
	}
	return ids
}
