// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package arrowstream

import (
	"encoding/binary"

	flatbuffers "github.com/google/flatbuffers/go"
)

// frameKind identifies the message type of an extracted frame.
type frameKind int

const (
	frameSchema frameKind = iota + 1
	frameDictionaryBatch
	frameRecordBatch
	frameEnd
)

// MessageHeader union tags from the Arrow Message flatbuffer schema.
// Tensor and SparseTensor never appear in a record batch stream; they are
// rejected along with unknown tags.
const (
	headerNone            byte = 0
	headerSchema          byte = 1
	headerDictionaryBatch byte = 2
	headerRecordBatch     byte = 3
)

// continuationMarker opens every encapsulated message in the current IPC
// format. Streams written before Arrow 0.15 omit it; those are accepted too.
const continuationMarker uint32 = 0xFFFFFFFF

// Default sanity caps on the lengths a frame header may declare. A header
// exceeding them is treated as corruption rather than an allocation request.
const (
	DefaultMaxMetadataSize int32 = 64 << 20 // 64 MiB of flatbuffer metadata
	DefaultMaxBodySize     int64 = 2 << 30  // 2 GiB message body
)

// frame is one complete encapsulated IPC message as found in the
// accumulation buffer.
type frame struct {
	kind frameKind
	// raw is the full encapsulated message, length prefix included. It
	// aliases the accumulation buffer and is only valid until the caller
	// removes the consumed bytes; anything kept longer must be copied.
	raw []byte
	// bodyLen is the declared message body length.
	bodyLen int64
}

// extractFrame attempts to read one complete frame from the start of buf
// without mutating it. It returns the frame and the number of bytes it
// spans, (frame{}, 0, nil) when buf does not yet hold a complete frame,
// or a CorruptStream error for a malformed header. The caller removes
// consumed bytes.
func extractFrame(buf []byte, maxMeta int32, maxBody int64) (frame, int, error) {
	if len(buf) < 4 {
		return frame{}, 0, nil
	}

	var metaLen int32
	metaOff := 4
	if w := binary.LittleEndian.Uint32(buf); w == continuationMarker {
		if len(buf) < 8 {
			return frame{}, 0, nil
		}
		metaLen = int32(binary.LittleEndian.Uint32(buf[4:]))
		metaOff = 8
	} else {
		// Legacy encapsulation: the metadata length comes first.
		metaLen = int32(w)
	}

	if metaLen == 0 {
		// End-of-stream marker.
		return frame{kind: frameEnd, raw: buf[:metaOff]}, metaOff, nil
	}
	if metaLen < 0 || metaLen > maxMeta {
		return frame{}, 0, corruptf("declared metadata length %d exceeds limit %d", metaLen, maxMeta)
	}
	if len(buf) < metaOff+int(metaLen) {
		return frame{}, 0, nil
	}

	hdr, bodyLen, err := probeMessage(buf[metaOff : metaOff+int(metaLen)])
	if err != nil {
		return frame{}, 0, err
	}
	if bodyLen < 0 || bodyLen > maxBody {
		return frame{}, 0, corruptf("declared body length %d exceeds limit %d", bodyLen, maxBody)
	}

	var kind frameKind
	switch hdr {
	case headerSchema:
		kind = frameSchema
	case headerDictionaryBatch:
		kind = frameDictionaryBatch
	case headerRecordBatch:
		kind = frameRecordBatch
	default:
		return frame{}, 0, corruptf("unrecognized message header type %d", hdr)
	}

	total := metaOff + int(metaLen) + int(bodyLen)
	if len(buf) < total {
		return frame{}, 0, nil
	}
	return frame{kind: kind, raw: buf[:total], bodyLen: bodyLen}, total, nil
}

// probeMessage reads the header union tag and bodyLength from the Message
// flatbuffer. Only those two fields are touched; full interpretation of
// the metadata is arrow-go's job during replay. Vtable slots follow
// Message.fbs: version=4, header_type=6, header=8, bodyLength=10.
func probeMessage(meta []byte) (hdr byte, bodyLen int64, err error) {
	// The flatbuffers runtime does not bounds-check; a hostile or mangled
	// buffer must surface as CorruptStream, not a panic.
	defer func() {
		if r := recover(); r != nil {
			hdr, bodyLen, err = 0, 0, corruptf("malformed message metadata flatbuffer")
		}
	}()

	if len(meta) < 8 {
		return 0, 0, corruptf("message metadata too short (%d bytes)", len(meta))
	}
	root := flatbuffers.GetUOffsetT(meta)
	if int(root) < 0 || int(root)+4 > len(meta) {
		return 0, 0, corruptf("message metadata root offset out of range")
	}

	tab := &flatbuffers.Table{Bytes: meta, Pos: root}
	if o := tab.Offset(6); o != 0 {
		hdr = tab.GetByte(flatbuffers.UOffsetT(o) + tab.Pos)
	}
	if o := tab.Offset(10); o != 0 {
		bodyLen = tab.GetInt64(flatbuffers.UOffsetT(o) + tab.Pos)
	}
	return hdr, bodyLen, nil
}
