package wire

import (
	"fmt"

	"github.com/ugorji/go/codec"
)

// handle is shared across Marshal/Unmarshal calls; codec.MsgpackHandle is
// safe for concurrent use once configured, so one handle is constructed
// and reused rather than allocating a new one per call.
var handle = func() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.Canonical = true
	return h
}()

// Marshal encodes v (a *Request, *Reply, Publication, or ValueRecord) into
// its compact tag-numbered binary form.
func Marshal(v interface{}) ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, handle)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}
	return buf, nil
}

// Unmarshal decodes data produced by Marshal into v.
func Unmarshal(data []byte, v interface{}) error {
	dec := codec.NewDecoderBytes(data, handle)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("wire: decode: %w", err)
	}
	return nil
}

// ErrorCode is the taxonomy of request-level failures. Command replies
// never mutate the store when one of these is returned.
type ErrorCode string

const (
	ErrMalformedRequest ErrorCode = "MALFORMED_REQUEST"
	ErrDecodeFailure    ErrorCode = "DECODE_FAILURE"
	ErrInvariantViolation ErrorCode = "INVARIANT_VIOLATION"
	ErrTransportSend    ErrorCode = "TRANSPORT_SEND_FAILURE"
)

// CommandError is returned by the dispatcher for any request it rejects.
// It carries enough detail for logs/counters without ever describing a
// store mutation (there is none).
type CommandError struct {
	Code ErrorCode
	Msg  string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// NewMalformed builds a CommandError for a missing/empty required field.
func NewMalformed(msg string) *CommandError {
	return &CommandError{Code: ErrMalformedRequest, Msg: msg}
}
