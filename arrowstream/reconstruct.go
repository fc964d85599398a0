// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package arrowstream

import (
	"bytes"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// streamEOS is the modern end-of-stream marker appended to every replay.
var streamEOS = []byte{0xff, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x00}

// assembler turns complete frames into decoded units. The columnar layout
// itself is never interpreted here: each unit is reconstructed by replaying
// the retained schema (plus any dictionary batches) and the new frame as a
// minimal well-formed IPC stream through ipc.NewReader.
type assembler struct {
	mem memory.Allocator

	schema    *arrow.Schema
	schemaRaw []byte   // raw schema frame, prefix included
	dictRaws  [][]byte // raw dictionary frames since the current schema
}

func newAssembler(mem memory.Allocator) *assembler {
	return &assembler{mem: mem}
}

// Schema returns the schema currently in effect, or nil before the first
// schema frame.
func (a *assembler) Schema() *arrow.Schema {
	return a.schema
}

// applySchema decodes a schema frame and makes it the schema for all
// subsequent record batches. Dictionary state is reset: dictionaries are
// defined against a specific schema.
func (a *assembler) applySchema(f frame) (*arrow.Schema, error) {
	raw := append([]byte(nil), f.raw...)

	rd, err := ipc.NewReader(bytes.NewReader(append(raw, streamEOS...)), ipc.WithAllocator(a.mem))
	if err != nil {
		return nil, corruptCause("decoding schema message", err)
	}
	schema := rd.Schema()
	rd.Release()

	a.schema = schema
	a.schemaRaw = raw
	a.dictRaws = nil
	return schema, nil
}

// applyDictionary retains a dictionary frame for replay with later record
// batches. Dictionaries are stream bookkeeping, not dispatchable units.
func (a *assembler) applyDictionary(f frame) error {
	if a.schema == nil {
		return &StreamError{Kind: SchemaNotEstablished, Message: "dictionary batch message before any schema message"}
	}
	a.dictRaws = append(a.dictRaws, append([]byte(nil), f.raw...))
	return nil
}

// applyRecordBatch decodes a record batch frame against the current schema.
// The returned batch is retained; the caller owns the release.
func (a *assembler) applyRecordBatch(f frame) (arrow.RecordBatch, error) {
	if a.schema == nil {
		return nil, &StreamError{Kind: SchemaNotEstablished, Message: "record batch message before any schema message"}
	}

	replay := make([]byte, 0, len(a.schemaRaw)+len(f.raw)+len(streamEOS))
	replay = append(replay, a.schemaRaw...)
	for _, d := range a.dictRaws {
		replay = append(replay, d...)
	}
	replay = append(replay, f.raw...)
	replay = append(replay, streamEOS...)

	rd, err := ipc.NewReader(bytes.NewReader(replay), ipc.WithAllocator(a.mem))
	if err != nil {
		return nil, corruptCause("decoding record batch message", err)
	}
	defer rd.Release()

	if !rd.Next() {
		if err := rd.Err(); err != nil {
			return nil, corruptCause("decoding record batch message", err)
		}
		return nil, corruptf("record batch message produced no batch")
	}
	rec := rd.RecordBatch()
	rec.Retain() // keep the batch alive after the reader is released

	// Re-wrap so the batch shares the dispatched schema by reference
	// rather than the replay reader's private copy.
	if rec.Schema() != a.schema {
		wrapped := array.NewRecordBatch(a.schema, rec.Columns(), rec.NumRows())
		rec.Release()
		rec = wrapped
	}
	return rec, nil
}
