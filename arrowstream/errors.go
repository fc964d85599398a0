package arrowstream

import "fmt"

// ErrorKind classifies a StreamError.
type ErrorKind int

const (
	// CorruptStream indicates the byte stream is not a decodable Arrow IPC
	// stream: a malformed message header, an out-of-range declared length,
	// an unrecognized message type, or a truncated transfer. Fatal.
	CorruptStream ErrorKind = iota
	// SchemaNotEstablished indicates a record batch message arrived before
	// any schema message. Fatal.
	SchemaNotEstablished
	// StreamAlreadyClosed indicates Consume was called after the stream
	// terminated cleanly. Caller error, distinct from corruption.
	StreamAlreadyClosed
	// CallbackFailed indicates a registered handler returned an error or
	// panicked during dispatch. The decoder remains usable; delivery of
	// the one unit was aborted and its resources released.
	CallbackFailed
	// SourceError wraps a failure of the byte source (e.g. the HTTP
	// transport). The decoder takes no corrective action itself.
	SourceError
)

// String returns the kind name as it appears in error messages.
func (k ErrorKind) String() string {
	switch k {
	case CorruptStream:
		return "CorruptStream"
	case SchemaNotEstablished:
		return "SchemaNotEstablished"
	case StreamAlreadyClosed:
		return "StreamAlreadyClosed"
	case CallbackFailed:
		return "CallbackFailed"
	case SourceError:
		return "SourceError"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Sentinels for use with errors.Is. Each matches any *StreamError of the
// same kind anywhere in a chain.
var (
	ErrCorruptStream        = &StreamError{Kind: CorruptStream}
	ErrSchemaNotEstablished = &StreamError{Kind: SchemaNotEstablished}
	ErrStreamClosed         = &StreamError{Kind: StreamAlreadyClosed}
	ErrCallbackFailed       = &StreamError{Kind: CallbackFailed}
	ErrSource               = &StreamError{Kind: SourceError}
)

// StreamError is the typed error value surfaced by the decoder and the
// byte-source helpers.
type StreamError struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *StreamError) Error() string {
	if e.Message == "" && e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *StreamError) Unwrap() error {
	return e.cause
}

// Is supports errors.Is by matching any *StreamError with the same kind.
func (e *StreamError) Is(target error) bool {
	t, ok := target.(*StreamError)
	return ok && t.Kind == e.Kind
}

func corruptf(format string, args ...interface{}) *StreamError {
	return &StreamError{Kind: CorruptStream, Message: fmt.Sprintf(format, args...)}
}

func corruptCause(msg string, cause error) *StreamError {
	return &StreamError{Kind: CorruptStream, Message: msg, cause: cause}
}

func callbackFailed(cause error) *StreamError {
	return &StreamError{Kind: CallbackFailed, Message: "handler returned an error", cause: cause}
}

func callbackPanic(v interface{}) *StreamError {
	return &StreamError{Kind: CallbackFailed, Message: fmt.Sprintf("handler panicked: %v", v)}
}

func sourceError(cause error) *StreamError {
	return &StreamError{Kind: SourceError, Message: "byte source failed", cause: cause}
}

func sourcef(format string, args ...interface{}) *StreamError {
	return &StreamError{Kind: SourceError, Message: fmt.Sprintf(format, args...)}
}
