package eventapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Frame is the envelope shared by every message in both directions:
//
//	{"op": <opcode>, "d": {...}}
type Frame struct {
	Op   Opcode          `json:"op"`
	Data json.RawMessage `json:"d"`
}

var emptyObject = json.RawMessage(`{}`)

// UnmarshalJSON implements the json.Unmarshaler interface for Frame
func (f *Frame) UnmarshalJSON(data []byte) error {
	aux := &struct {
		Op   *Opcode         `json:"op"`
		Data json.RawMessage `json:"d"`
	}{}
	if err := json.Unmarshal(data, aux); err != nil {
		return malformed("%v", err)
	}
	if aux.Op == nil {
		return malformed("missing op")
	}

	payload := bytes.TrimSpace(aux.Data)
	switch {
	case len(payload) == 0 || bytes.Equal(payload, []byte("null")):
		payload = emptyObject
	case payload[0] != '{':
		return malformed("payload of op %d is not an object", int(*aux.Op))
	}

	f.Op = *aux.Op
	f.Data = payload
	return nil
}

// Decode unmarshals the frame payload into v.
func (f Frame) Decode(v any) error {
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("%w: op %s: %v", ErrMalformedFrame, f.Op, err)
	}
	return nil
}

// DecodeFrame parses a raw text or binary websocket message into a Frame.
// Any failure matches ErrMalformedFrame.
func DecodeFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		if errors.Is(err, ErrMalformedFrame) {
			return Frame{}, err
		}
		return Frame{}, malformed("%v", err)
	}
	return f, nil
}

// EncodeFrame serializes payload inside a frame envelope. A nil payload is
// sent as an empty object.
func EncodeFrame(op Opcode, payload any) ([]byte, error) {
	if payload == nil {
		payload = emptyObject
	}
	return json.Marshal(struct {
		Op   Opcode `json:"op"`
		Data any    `json:"d"`
	}{op, payload})
}

type resumePayload struct {
	SessionID string `json:"session_id"`
}
