package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
)

// ErrMalformedFrame is returned when a binary frame cannot be decoded.
var ErrMalformedFrame = errors.New("wire: malformed frame")

// Frame is the decoded shape of every steady-state message: a method tag
// plus an ordered list of opaque JSON arguments.
type Frame struct {
	Method int
	Args   []json.RawMessage
}

// Decode parses a binary frame: a 2-byte big-endian method tag followed by
// a JSON array of arguments.
func Decode(raw []byte) (Frame, error) {
	if len(raw) < 2 {
		return Frame{}, ErrMalformedFrame
	}

	method := int(binary.BigEndian.Uint16(raw[:2]))
	body := raw[2:]

	var args []json.RawMessage
	if len(body) > 0 {
		if err := json.Unmarshal(body, &args); err != nil {
			return Frame{}, ErrMalformedFrame
		}
	}

	return Frame{Method: method, Args: args}, nil
}

// Encode serializes a frame back to the binary wire format.
func Encode(f Frame) ([]byte, error) {
	body, err := json.Marshal(f.Args)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 2+len(body))
	binary.BigEndian.PutUint16(out[:2], uint16(f.Method))
	copy(out[2:], body)
	return out, nil
}

// Arg unmarshals the i-th argument into v.
func (f Frame) Arg(i int, v interface{}) error {
	if i < 0 || i >= len(f.Args) {
		return ErrMalformedFrame
	}
	return json.Unmarshal(f.Args[i], v)
}

// New builds a Frame from a method tag and a list of values to be
// marshaled as the ordered argument list.
func New(method int, args ...interface{}) (Frame, error) {
	raw := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return Frame{}, err
		}
		raw = append(raw, b)
	}
	return Frame{Method: method, Args: raw}, nil
}
