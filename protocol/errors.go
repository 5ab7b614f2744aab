package protocol

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformed reports a payload that is not a JSON object of the expected shape.
	ErrMalformed = errors.New("malformed payload")

	// ErrUnknownTag reports a command or event tag outside the closed set.
	ErrUnknownTag = errors.New("unknown tag")

	// ErrMissingField reports a payload without a field its tag requires.
	ErrMissingField = errors.New("missing required field")

	// ErrPayloadTooLarge reports an encoded message above MaxDatagramSize.
	ErrPayloadTooLarge = errors.New("payload exceeds datagram size")

	// ErrUnsupported reports an attempt to encode a value outside the closed set,
	// such as a nil Command.
	ErrUnsupported = errors.New("unsupported message")
)

// DecodeError describes why a payload could not be decoded. Reason is one of
// ErrMalformed, ErrUnknownTag or ErrMissingField and can be matched with
// errors.Is. Callers drop the datagram and log the error; it is never fatal.
type DecodeError struct {
	Reason error
	Tag    string
	Field  string
	Err    error
}

func (e *DecodeError) Error() string {
	var b strings.Builder
	b.WriteString("protocol: decode: ")
	b.WriteString(e.Reason.Error())

	if e.Field != "" {
		fmt.Fprintf(&b, " %q", e.Field)
	}

	if e.Tag != "" {
		fmt.Fprintf(&b, " (tag %q)", e.Tag)
	}

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	return b.String()
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}

	return []error{e.Reason, e.Err}
}
