package eventapi

import (
	"encoding/json"
	"fmt"
)

// Event is one typed message received from the server. The concrete type is
// one of Hello, Heartbeat, Dispatch, Ack, ReconnectRequest, ServerError or
// EndOfStream.
type Event interface {
	Opcode() Opcode
}

// Hello is the first frame of every connection.
type Hello struct {
	SessionID         string        `json:"session_id"`
	HeartbeatInterval int           `json:"heartbeat_interval"`
	SubscriptionLimit int           `json:"subscription_limit"`
	Instance          *InstanceInfo `json:"instance,omitempty"`
}

// InstanceInfo describes the server instance that accepted the connection.
type InstanceInfo struct {
	Name       string `json:"name"`
	Population int    `json:"population"`
}

func (Hello) Opcode() Opcode { return OpHello }

func (h Hello) String() string {
	return fmt.Sprintf("<Hello session_id=%s heartbeat_interval=%d subscription_limit=%d>",
		h.SessionID, h.HeartbeatInterval, h.SubscriptionLimit)
}

// Heartbeat is sent by the server every heartbeat interval.
type Heartbeat struct {
	Count int `json:"count"`
}

func (Heartbeat) Opcode() Opcode { return OpHeartbeat }

func (h Heartbeat) String() string {
	return fmt.Sprintf("<Heartbeat count=%d>", h.Count)
}

// Dispatch reports a change to a subscribed object.
type Dispatch struct {
	Type EventType `json:"type"`
	Body ChangeMap `json:"body"`
}

func (Dispatch) Opcode() Opcode { return OpDispatch }

func (d Dispatch) String() string {
	return fmt.Sprintf("<Dispatch type=%s body=%s>", d.Type, d.Body)
}

// Ack acknowledges a command sent by the client.
//
// Data is kept raw since its shape depends on the command.
type Ack struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (Ack) Opcode() Opcode { return OpAck }

// Succeeded reports whether the acknowledged command carried success=true.
// Data that is not an object counts as failure.
func (a Ack) Succeeded() bool {
	var v struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(a.Data, &v); err != nil {
		return false
	}
	return v.Success
}

func (a Ack) String() string {
	return fmt.Sprintf("<Ack command=%s data=%s>", a.Command, a.Data)
}

// ReconnectRequest is sent when the server wants the client to reconnect.
type ReconnectRequest struct{}

func (ReconnectRequest) Opcode() Opcode { return OpReconnect }

func (ReconnectRequest) String() string { return "<Reconnect>" }

// ServerError is a non-fatal error reported by the server.
type ServerError struct {
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

func (ServerError) Opcode() Opcode { return OpError }

func (e ServerError) String() string {
	return fmt.Sprintf("<Error message=%s fields=%v>", e.Message, e.Fields)
}

// EndOfStream is sent right before the server closes the connection.
type EndOfStream struct {
	Code            CloseCode `json:"code"`
	Message         string    `json:"message,omitempty"`
	ShouldReconnect bool      `json:"-"`
}

func (EndOfStream) Opcode() Opcode { return OpEndOfStream }

func (e EndOfStream) String() string {
	return fmt.Sprintf("<EndOfStream code=%d should_reconnect=%t message=%s>",
		int(e.Code), e.ShouldReconnect, e.Message)
}

// decodeEvent builds the typed event for an inbound frame. Unknown opcodes
// yield a nil event and no error.
func decodeEvent(f Frame) (Event, error) {
	switch f.Op {
	case OpHello:
		return decodeAs[Hello](f)
	case OpHeartbeat:
		return decodeAs[Heartbeat](f)
	case OpDispatch:
		return decodeAs[Dispatch](f)
	case OpAck:
		return decodeAs[Ack](f)
	case OpReconnect:
		return ReconnectRequest{}, nil
	case OpError:
		return decodeAs[ServerError](f)
	case OpEndOfStream:
		var e EndOfStream
		if err := f.Decode(&e); err != nil {
			return nil, err
		}
		e.ShouldReconnect = e.Code.ShouldReconnect()
		return e, nil
	default:
		return nil, nil
	}
}

func decodeAs[T Event](f Frame) (Event, error) {
	var e T
	if err := f.Decode(&e); err != nil {
		return nil, err
	}
	return e, nil
}
