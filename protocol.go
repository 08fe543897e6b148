package eventapi

import "fmt"

// Opcode identifies the kind of a frame.
type Opcode int

const (
	// OpDispatch carries a change to a subscribed object.
	OpDispatch Opcode = 0
	// OpHello is the first frame of every connection.
	OpHello Opcode = 1
	// OpHeartbeat is sent periodically by the server.
	OpHeartbeat Opcode = 2
	// OpReconnect asks the client to reconnect.
	OpReconnect Opcode = 4
	// OpAck acknowledges a client command.
	OpAck Opcode = 5
	// OpError reports a non-fatal protocol error.
	OpError Opcode = 6
	// OpEndOfStream is sent right before the server closes the connection.
	OpEndOfStream Opcode = 7

	// Outbound only.
	OpIdentify    Opcode = 33
	OpResume      Opcode = 34
	OpSubscribe   Opcode = 35
	OpUnsubscribe Opcode = 36
	OpSignal      Opcode = 37
)

var opcodeNames = map[Opcode]string{
	OpDispatch:    "DISPATCH",
	OpHello:       "HELLO",
	OpHeartbeat:   "HEARTBEAT",
	OpReconnect:   "RECONNECT",
	OpAck:         "ACK",
	OpError:       "ERROR",
	OpEndOfStream: "END_OF_STREAM",
	OpIdentify:    "IDENTIFY",
	OpResume:      "RESUME",
	OpSubscribe:   "SUBSCRIBE",
	OpUnsubscribe: "UNSUBSCRIBE",
	OpSignal:      "SIGNAL",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(op))
}

// CloseCode is the code carried by an end-of-stream frame.
type CloseCode int

const (
	CloseServerError           CloseCode = 4000
	CloseUnknownOperation      CloseCode = 4001
	CloseInvalidPayload        CloseCode = 4002
	CloseAuthFailure           CloseCode = 4003
	CloseAlreadyIdentified     CloseCode = 4004
	CloseRateLimited           CloseCode = 4005
	CloseRestart               CloseCode = 4006
	CloseMaintenance           CloseCode = 4007
	CloseTimeout               CloseCode = 4008
	CloseAlreadySubscribed     CloseCode = 4009
	CloseNotSubscribed         CloseCode = 4010
	CloseInsufficientPrivilege CloseCode = 4011
)

var closeCodeNames = map[CloseCode]string{
	CloseServerError:           "SERVER_ERROR",
	CloseUnknownOperation:      "UNKNOWN_OPERATION",
	CloseInvalidPayload:        "INVALID_PAYLOAD",
	CloseAuthFailure:           "AUTH_FAILURE",
	CloseAlreadyIdentified:     "ALREADY_IDENTIFIED",
	CloseRateLimited:           "RATE_LIMITED",
	CloseRestart:               "RESTART",
	CloseMaintenance:           "MAINTENANCE",
	CloseTimeout:               "TIMEOUT",
	CloseAlreadySubscribed:     "ALREADY_SUBSCRIBED",
	CloseNotSubscribed:         "NOT_SUBSCRIBED",
	CloseInsufficientPrivilege: "INSUFFICIENT_PRIVILEGE",
}

func (c CloseCode) String() string {
	if name, ok := closeCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CLOSE(%d)", int(c))
}

// ShouldReconnect reports whether the server expects the client to come back
// after closing the stream with this code.
func (c CloseCode) ShouldReconnect() bool {
	switch c {
	case CloseServerError, CloseRestart, CloseMaintenance, CloseTimeout:
		return true
	default:
		return false
	}
}
