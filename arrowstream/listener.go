// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package arrowstream

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// Listener carries the two dispatch slots a decoder routes units to.
// Each slot is independently optional: a nil slot means matching units
// are decoded and then silently dropped, which is the documented no-op
// path, not an error.
//
// Handlers are invoked synchronously, in arrival order, exactly once per
// unit, from inside Consume. Returning a non-nil error aborts delivery
// and surfaces as CallbackFailed.
type Listener struct {
	// OnSchema receives each decoded schema. The same schema value is
	// shared by reference with every batch delivered until a mid-stream
	// schema message supersedes it.
	OnSchema func(schema *arrow.Schema) error

	// OnRecordBatch receives each decoded record batch. The batch is
	// borrowed: the decoder releases it when the handler returns, on
	// every exit path. Retain it to keep it longer.
	OnRecordBatch func(batch arrow.RecordBatch) error
}

// dispatchSchema routes a decoded schema to the schema slot.
func (d *Decoder) dispatchSchema(schema *arrow.Schema) (err error) {
	h := d.listener.OnSchema
	if h == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = callbackPanic(r)
		}
	}()
	if cerr := h(schema); cerr != nil {
		return callbackFailed(cerr)
	}
	return nil
}

// dispatchBatch routes a decoded batch to the batch slot and releases it
// afterwards, whether the handler returns, errors, or panics.
func (d *Decoder) dispatchBatch(rec arrow.RecordBatch) (err error) {
	defer rec.Release()
	h := d.listener.OnRecordBatch
	if h == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = callbackPanic(r)
		}
	}()
	if cerr := h(rec); cerr != nil {
		return callbackFailed(cerr)
	}
	return nil
}
