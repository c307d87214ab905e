package ddp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// errors can be checked with errors.Is(err, ErrX),
// and the typed errors below with errors.As

var (
	ErrNotConnected     = errors.New("not connected")
	ErrClosed           = errors.New("client closed")
	ErrAlreadyConnected = errors.New("already connected")
	ErrNeverSubscribed  = errors.New("never subscribed")
)

const defaultMethodErrorReason = "Method failed"
const defaultSubscriptionErrorReason = "Subscription not found"

// TransportError is a connection level failure: dial, send, or the stream ending.
type TransportError struct {
	Err error
}

func (self *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s", self.Err)
}

func (self *TransportError) Unwrap() error {
	return self.Err
}

// ProtocolError is an error object reported by the server,
// on a `result` or `nosub` frame or as a failed handshake.
type ProtocolError struct {
	// numeric or string error code, as sent by the server
	Code      any             `json:"error,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Message   string          `json:"message,omitempty"`
	ErrorType string          `json:"errorType,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
}

func (self *ProtocolError) Error() string {
	return self.Reason
}

// some servers send a bare string in place of the error object
func (self *ProtocolError) UnmarshalJSON(b []byte) error {
	if 0 < len(b) && b[0] == '"' {
		var reason string
		if err := json.Unmarshal(b, &reason); err != nil {
			return err
		}
		*self = ProtocolError{Reason: reason}
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	type protocolError ProtocolError
	var v protocolError
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*self = ProtocolError(v)
	return nil
}

func (self *ProtocolError) withDefaultReason(reason string) *ProtocolError {
	if self.Reason != "" {
		return self
	}
	withReason := *self
	withReason.Reason = reason
	return &withReason
}

// UsageError is client misuse detected before anything is sent.
type UsageError struct {
	Err     error
	Message string
}

func (self *UsageError) Error() string {
	if self.Message == "" {
		return self.Err.Error()
	}
	return self.Message
}

func (self *UsageError) Unwrap() error {
	return self.Err
}
