package ddp

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/assert/v2"
)

func encodeToMap(t *testing.T, message any) map[string]any {
	b, err := EncodeFrame(message)
	assert.Equal(t, err, nil)
	m := map[string]any{}
	err = json.Unmarshal(b, &m)
	assert.Equal(t, err, nil)
	return m
}

func TestEncodeFrame(t *testing.T) {
	assert.Equal(t, encodeToMap(t, NewConnectMessage([]string{"1", "pre1"})), map[string]any{
		"msg":     "connect",
		"version": "1",
		"support": []any{"1", "pre1"},
	})
	assert.Equal(t, encodeToMap(t, NewMethodMessage("1", "add", nil)), map[string]any{
		"msg":    "method",
		"method": "add",
		"params": []any{},
		"id":     "1",
	})
	assert.Equal(t, encodeToMap(t, NewSubMessage("2", "todos", []any{"a"})), map[string]any{
		"msg":    "sub",
		"name":   "todos",
		"params": []any{"a"},
		"id":     "2",
	})
	assert.Equal(t, encodeToMap(t, NewUnsubMessage("2")), map[string]any{
		"msg": "unsub",
		"id":  "2",
	})
	assert.Equal(t, encodeToMap(t, &PingMessage{Id: "p"}), map[string]any{
		"msg": "ping",
		"id":  "p",
	})

	_, err := EncodeFrame("connect")
	assert.NotEqual(t, err, nil)
	_, err = EncodeFrame(map[string]any{"id": "1"})
	assert.NotEqual(t, err, nil)
}

func TestDecodeFrame(t *testing.T) {
	frame, err := DecodeFrame([]byte(`{"msg":"result","id":"1"}`))
	assert.Equal(t, err, nil)
	assert.Equal(t, frame.Result == nil, true)
	assert.Equal(t, frame.Error == nil, true)

	frame, err = DecodeFrame([]byte(`{"msg":"result","id":"1","result":false}`))
	assert.Equal(t, err, nil)
	assert.Equal(t, string(frame.Result), "false")

	frame, err = DecodeFrame([]byte(`{"msg":"changed","collection":"c","id":"1","fields":{}}`))
	assert.Equal(t, err, nil)
	assert.Equal(t, frame.Fields != nil, true)
	assert.Equal(t, len(frame.Fields), 0)
	assert.Equal(t, frame.Cleared == nil, true)

	frame, err = DecodeFrame([]byte(`{"msg":"addedBefore","collection":"c","id":"2","fields":{"a":1},"before":"1"}`))
	assert.Equal(t, err, nil)
	assert.Equal(t, *frame.Before, "1")

	_, err = DecodeFrame([]byte(`{"server_id":"0"}`))
	assert.NotEqual(t, err, nil)
	_, err = DecodeFrame([]byte(`[`))
	assert.NotEqual(t, err, nil)
}

func TestDecodeProtocolError(t *testing.T) {
	frame, err := DecodeFrame([]byte(`{"msg":"nosub","id":"1","error":{"error":404,"reason":"Subscription not found","errorType":"Meteor.Error","details":{"name":"x"}}}`))
	assert.Equal(t, err, nil)
	assert.Equal(t, frame.Error.Code, float64(404))
	assert.Equal(t, frame.Error.Reason, "Subscription not found")
	assert.Equal(t, frame.Error.ErrorType, "Meteor.Error")
	assert.Equal(t, string(frame.Error.Details), `{"name":"x"}`)

	// a bare string is taken as the reason
	frame, err = DecodeFrame([]byte(`{"msg":"result","id":"1","error":"Internal server error"}`))
	assert.Equal(t, err, nil)
	assert.Equal(t, frame.Error.Error(), "Internal server error")

	defaulted := (&ProtocolError{Code: "x"}).withDefaultReason("Method failed")
	assert.Equal(t, defaulted.Error(), "Method failed")
	assert.Equal(t, defaulted.Code, "x")
}
