package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator returns a validator that reports fields by their JSON name so
// that decode errors point at the wire key that was missing.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

// Wire shapes. Pointer fields distinguish an absent key from an empty string.

type commandHeader struct {
	Command *string `json:"command" validate:"required"`
}

type wireBare struct {
	Command string `json:"command"`
}

type wireRegister struct {
	Command string  `json:"command"`
	Handle  *string `json:"handle" validate:"required"`
}

type wireAll struct {
	Command string  `json:"command"`
	Handle  *string `json:"handle" validate:"required"`
	Message *string `json:"message" validate:"required"`
}

type wireMsg struct {
	Command    string  `json:"command"`
	FromHandle *string `json:"from_handle" validate:"required"`
	Handle     *string `json:"handle" validate:"required"`
	Message    *string `json:"message" validate:"required"`
}

type wireError struct {
	Command string  `json:"command"`
	Error   *string `json:"error" validate:"required"`
}

type eventHeader struct {
	Type *string `json:"type" validate:"required"`
}

type wireInfo struct {
	Type    string  `json:"type"`
	Message *string `json:"message" validate:"required"`
}

type wireBroadcast struct {
	Type       string  `json:"type"`
	FromHandle *string `json:"from_handle" validate:"required"`
	Message    *string `json:"message" validate:"required"`
}

type wireDirect struct {
	Type       string  `json:"type"`
	FromHandle *string `json:"from_handle" validate:"required"`
	ToHandle   *string `json:"to_handle" validate:"required"`
	Message    *string `json:"message" validate:"required"`
	Sender     *bool   `json:"sender" validate:"required"`
}

// EncodeCommand serializes a command into a datagram payload.
//
// Parameters:
//   - cmd: The command to encode; must be one of the protocol command types
//
// Returns:
//   - The JSON payload
//   - ErrUnsupported for values outside the closed set, or ErrPayloadTooLarge
//     when the payload would not fit in one datagram
func EncodeCommand(cmd Command) ([]byte, error) {
	var wire any
	switch c := cmd.(type) {
	case Join, Leave:
		wire = wireBare{Command: c.CommandName()}
	case Register:
		wire = wireRegister{Command: TagRegister, Handle: &c.Handle}
	case Broadcast:
		wire = wireAll{Command: TagAll, Handle: &c.Handle, Message: &c.Text}
	case DirectMessage:
		wire = wireMsg{Command: TagMsg, FromHandle: &c.FromHandle, Handle: &c.ToHandle, Message: &c.Text}
	case ClientError:
		wire = wireError{Command: TagError, Error: &c.Text}
	default:
		return nil, fmt.Errorf("protocol: encode command %T: %w", cmd, ErrUnsupported)
	}

	return marshal(wire)
}

// EncodeEvent serializes an event into a datagram payload.
//
// Parameters:
//   - ev: The event to encode; must be one of the protocol event types
//
// Returns:
//   - The JSON payload
//   - ErrUnsupported for values outside the closed set, or ErrPayloadTooLarge
//     when the payload would not fit in one datagram
func EncodeEvent(ev Event) ([]byte, error) {
	var wire any
	switch e := ev.(type) {
	case Info:
		wire = wireInfo{Type: TagInfo, Message: &e.Text}
	case BroadcastEvent:
		wire = wireBroadcast{Type: TagAll, FromHandle: &e.FromHandle, Message: &e.Text}
	case DirectEvent:
		wire = wireDirect{
			Type:       TagMsg,
			FromHandle: &e.FromHandle,
			ToHandle:   &e.ToHandle,
			Message:    &e.Text,
			Sender:     &e.IsSenderCopy,
		}
	default:
		return nil, fmt.Errorf("protocol: encode event %T: %w", ev, ErrUnsupported)
	}

	return marshal(wire)
}

// EventFor returns the largest event the server emits when it routes cmd
// from a sender registered under the handle cmd carries. Only Broadcast and
// DirectMessage produce such an event.
func EventFor(cmd Command) (Event, bool) {
	switch c := cmd.(type) {
	case Broadcast:
		return BroadcastEvent{FromHandle: c.Handle, Text: c.Text}, true
	case DirectMessage:
		// "false" is one byte longer than "true".
		return DirectEvent{FromHandle: c.FromHandle, ToHandle: c.ToHandle, Text: c.Text}, true
	default:
		return nil, false
	}
}

// Deliverable reports whether ev encodes into a single datagram.
func Deliverable(ev Event) bool {
	_, err := EncodeEvent(ev)
	return err == nil
}

func marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode: %w", err)
	}

	if len(data) > MaxDatagramSize {
		return nil, fmt.Errorf("protocol: encode %d bytes: %w", len(data), ErrPayloadTooLarge)
	}

	return data, nil
}

// DecodeCommand parses a datagram payload received by the server.
//
// Parameters:
//   - data: The raw payload
//
// Returns:
//   - The decoded command
//   - A *DecodeError if the payload is malformed, carries an unknown tag, or
//     lacks a field its tag requires
func DecodeCommand(data []byte) (Command, error) {
	var header commandHeader
	if err := unmarshal(data, &header, ""); err != nil {
		return nil, err
	}

	tag := *header.Command
	switch tag {
	case TagJoin:
		return Join{}, nil
	case TagLeave:
		return Leave{}, nil
	case TagRegister:
		var w wireRegister
		if err := unmarshal(data, &w, tag); err != nil {
			return nil, err
		}
		return Register{Handle: *w.Handle}, nil
	case TagAll:
		var w wireAll
		if err := unmarshal(data, &w, tag); err != nil {
			return nil, err
		}
		return Broadcast{Handle: *w.Handle, Text: *w.Message}, nil
	case TagMsg:
		var w wireMsg
		if err := unmarshal(data, &w, tag); err != nil {
			return nil, err
		}
		return DirectMessage{FromHandle: *w.FromHandle, ToHandle: *w.Handle, Text: *w.Message}, nil
	case TagError:
		var w wireError
		if err := unmarshal(data, &w, tag); err != nil {
			return nil, err
		}
		return ClientError{Text: *w.Error}, nil
	default:
		return nil, &DecodeError{Reason: ErrUnknownTag, Tag: tag}
	}
}

// DecodeEvent parses a datagram payload received by a client.
//
// Parameters:
//   - data: The raw payload
//
// Returns:
//   - The decoded event
//   - A *DecodeError if the payload is malformed, carries an unknown tag, or
//     lacks a field its tag requires
func DecodeEvent(data []byte) (Event, error) {
	var header eventHeader
	if err := unmarshal(data, &header, ""); err != nil {
		return nil, err
	}

	tag := *header.Type
	switch tag {
	case TagInfo:
		var w wireInfo
		if err := unmarshal(data, &w, tag); err != nil {
			return nil, err
		}
		return Info{Text: *w.Message}, nil
	case TagAll:
		var w wireBroadcast
		if err := unmarshal(data, &w, tag); err != nil {
			return nil, err
		}
		return BroadcastEvent{FromHandle: *w.FromHandle, Text: *w.Message}, nil
	case TagMsg:
		var w wireDirect
		if err := unmarshal(data, &w, tag); err != nil {
			return nil, err
		}
		return DirectEvent{
			FromHandle:   *w.FromHandle,
			ToHandle:     *w.ToHandle,
			Text:         *w.Message,
			IsSenderCopy: *w.Sender,
		}, nil
	default:
		return nil, &DecodeError{Reason: ErrUnknownTag, Tag: tag}
	}
}

// unmarshal decodes data into v and checks its required fields.
func unmarshal(data []byte, v any, tag string) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &DecodeError{Reason: ErrMalformed, Tag: tag, Err: err}
	}

	if err := validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return &DecodeError{Reason: ErrMissingField, Tag: tag, Field: fieldErrs[0].Field()}
		}

		return &DecodeError{Reason: ErrMalformed, Tag: tag, Err: err}
	}

	return nil
}
