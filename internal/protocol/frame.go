package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Subprotocol is the WebSocket sub-protocol name negotiated on upgrade.
const Subprotocol = "graphql-transport-ws"

// Type is the frame discriminator.
type Type string

const (
	TypeConnectionInit Type = "connection_init"
	TypeConnectionAck  Type = "connection_ack"
	TypePing           Type = "ping"
	TypePong           Type = "pong"
	TypeSubscribe      Type = "subscribe"
	TypeNext           Type = "next"
	TypeError          Type = "error"
	TypeComplete       Type = "complete"
)

var (
	// ErrUnrecognized is returned by Decode for frames of an unknown type.
	ErrUnrecognized = errors.New("unrecognized frame type")

	// ErrMalformed is returned by Decode for frames that cannot be parsed.
	ErrMalformed = errors.New("malformed frame")
)

// Frame is one protocol message.
type Frame struct {
	Type    Type            `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribePayload is the payload of a subscribe frame.
type SubscribePayload struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

// ErrorMessage is one entry of an error frame payload.
type ErrorMessage struct {
	Message string `json:"message"`
}

// Decode parses and validates one frame.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch f.Type {
	case TypeConnectionInit, TypeConnectionAck, TypePing, TypePong:
		if len(f.Payload) > 0 && !isObjectOrNull(f.Payload) {
			return Frame{}, fmt.Errorf("%w: %s payload must be an object", ErrMalformed, f.Type)
		}
	case TypeSubscribe:
		if f.ID == "" {
			return Frame{}, fmt.Errorf("%w: subscribe requires an id", ErrMalformed)
		}
		if _, err := f.Subscribe(); err != nil {
			return Frame{}, err
		}
	case TypeNext, TypeError:
		if f.ID == "" {
			return Frame{}, fmt.Errorf("%w: %s requires an id", ErrMalformed, f.Type)
		}
		if len(f.Payload) == 0 {
			return Frame{}, fmt.Errorf("%w: %s requires a payload", ErrMalformed, f.Type)
		}
	case TypeComplete:
		if f.ID == "" {
			return Frame{}, fmt.Errorf("%w: complete requires an id", ErrMalformed)
		}
	case "":
		return Frame{}, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return f, fmt.Errorf("%w: %q", ErrUnrecognized, f.Type)
	}
	return f, nil
}

// Subscribe decodes the payload of a subscribe frame.
func (f Frame) Subscribe() (SubscribePayload, error) {
	var p SubscribePayload
	if len(f.Payload) == 0 {
		return p, fmt.Errorf("%w: subscribe requires a payload", ErrMalformed)
	}
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		return p, fmt.Errorf("%w: subscribe payload: %v", ErrMalformed, err)
	}
	if p.Query == "" {
		return p, fmt.Errorf("%w: subscribe payload requires a query", ErrMalformed)
	}
	return p, nil
}

// Errors decodes the payload of an error frame.
func (f Frame) Errors() ([]ErrorMessage, error) {
	var msgs []ErrorMessage
	if err := json.Unmarshal(f.Payload, &msgs); err != nil {
		return nil, fmt.Errorf("%w: error payload: %v", ErrMalformed, err)
	}
	return msgs, nil
}

// Encode serializes f.
func Encode(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Type, err)
	}
	return data, nil
}

// NewFrame builds a frame, marshaling payload unless it is nil.
func NewFrame(t Type, id string, payload any) (Frame, error) {
	f := Frame{Type: t, ID: id}
	if payload == nil {
		return f, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		f.Payload = raw
		return f, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	f.Payload = data
	return f, nil
}

// ErrorFrame builds an error frame carrying the given messages.
func ErrorFrame(id string, messages ...string) Frame {
	msgs := make([]ErrorMessage, len(messages))
	for i, m := range messages {
		msgs[i] = ErrorMessage{Message: m}
	}
	// a slice of plain structs always marshals
	data, _ := json.Marshal(msgs)
	return Frame{Type: TypeError, ID: id, Payload: data}
}

func isObjectOrNull(raw json.RawMessage) bool {
	for _, c := range raw {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', 'n':
			return true
		default:
			return false
		}
	}
	return false
}
