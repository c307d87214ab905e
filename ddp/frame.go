package ddp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// message kinds, the `msg` field of every frame
const (
	// client -> server
	MessageConnect = "connect"
	MessageMethod  = "method"
	MessageSub     = "sub"
	MessageUnsub   = "unsub"

	// server -> client
	MessageConnected   = "connected"
	MessageFailed      = "failed"
	MessageResult      = "result"
	MessageUpdated     = "updated"
	MessageAdded       = "added"
	MessageAddedBefore = "addedBefore"
	MessageChanged     = "changed"
	MessageRemoved     = "removed"
	MessageMovedBefore = "movedBefore"
	MessageReady       = "ready"
	MessageNosub       = "nosub"
	MessageError       = "error"
	MessageServerId    = "server_id"

	// either direction
	MessagePing = "ping"
	MessagePong = "pong"
)

type ConnectMessage struct {
	Msg     string   `json:"msg"`
	Session string   `json:"session,omitempty"`
	Version string   `json:"version"`
	Support []string `json:"support"`
}

// the first version is proposed, all versions are declared as supported
func NewConnectMessage(versions []string) *ConnectMessage {
	message := &ConnectMessage{
		Support: versions,
	}
	if 0 < len(versions) {
		message.Version = versions[0]
	}
	return message
}

type MethodMessage struct {
	Msg    string `json:"msg"`
	Method string `json:"method"`
	Params []any  `json:"params"`
	Id     string `json:"id"`
}

func NewMethodMessage(id string, method string, params []any) *MethodMessage {
	if params == nil {
		params = []any{}
	}
	return &MethodMessage{
		Method: method,
		Params: params,
		Id:     id,
	}
}

type SubMessage struct {
	Msg    string `json:"msg"`
	Name   string `json:"name"`
	Params []any  `json:"params"`
	Id     string `json:"id"`
}

func NewSubMessage(id string, name string, params []any) *SubMessage {
	if params == nil {
		params = []any{}
	}
	return &SubMessage{
		Name:   name,
		Params: params,
		Id:     id,
	}
}

type UnsubMessage struct {
	Msg string `json:"msg"`
	Id  string `json:"id"`
}

func NewUnsubMessage(subscriptionId string) *UnsubMessage {
	return &UnsubMessage{
		Id: subscriptionId,
	}
}

type PingMessage struct {
	Msg string `json:"msg"`
	Id  string `json:"id,omitempty"`
}

type PongMessage struct {
	Msg string `json:"msg"`
	Id  string `json:"id,omitempty"`
}

// Frame is the decoded form of any server -> client message.
// Fields not used by a message kind are left empty.
type Frame struct {
	Msg string `json:"msg"`
	Id  string `json:"id,omitempty"`

	// connected, failed
	Session string `json:"session,omitempty"`
	Version string `json:"version,omitempty"`

	// result, nosub
	// `Result` is nil when the field is absent and "null" when it is null
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ProtocolError  `json:"error,omitempty"`

	// updated
	Methods []string `json:"methods,omitempty"`

	// added, addedBefore, changed, removed, movedBefore
	Collection string         `json:"collection,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	Cleared    []string       `json:"cleared,omitempty"`
	Before     *string        `json:"before,omitempty"`

	// ready
	Subs []string `json:"subs,omitempty"`

	// error
	Reason           string          `json:"reason,omitempty"`
	OffendingMessage json.RawMessage `json:"offendingMessage,omitempty"`
}

func EncodeFrame(message any) ([]byte, error) {
	switch v := message.(type) {
	case *ConnectMessage:
		v.Msg = MessageConnect
	case *MethodMessage:
		v.Msg = MessageMethod
	case *SubMessage:
		v.Msg = MessageSub
	case *UnsubMessage:
		v.Msg = MessageUnsub
	case *PingMessage:
		v.Msg = MessagePing
	case *PongMessage:
		v.Msg = MessagePong
	case map[string]any:
		if msg, ok := v["msg"].(string); !ok || msg == "" {
			return nil, errors.New("Frame is missing msg.")
		}
	default:
		return nil, fmt.Errorf("Unknown message type: %T", v)
	}
	return json.Marshal(message)
}

func DecodeFrame(b []byte) (*Frame, error) {
	frame := &Frame{}
	if err := json.Unmarshal(b, frame); err != nil {
		return nil, err
	}
	if frame.Msg == "" {
		// e.g. the legacy {"server_id": ...} greeting
		return nil, errors.New("Frame is missing msg.")
	}
	return frame, nil
}
