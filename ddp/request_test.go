package ddp

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestRequestIds(t *testing.T) {
	var ids requestIds

	seen := map[string]bool{}
	for i := 0; i < 1024; i += 1 {
		id := ids.next()
		assert.Equal(t, seen[id], false)
		seen[id] = true
	}
	assert.Equal(t, ids.next(), "1025")
}

func TestRequestTable(t *testing.T) {
	table := newRequestTable()

	call := &request{
		id:   "1",
		kind: RequestCall,
		call: NewHandle[json.RawMessage](),
	}
	sub := &request{
		id:    "2",
		kind:  RequestSubscribe,
		ready: NewHandle[struct{}](),
	}
	table.add(call)
	table.add(sub)
	assert.Equal(t, table.len(), 2)

	// kind must match
	_, ok := table.take("1", RequestSubscribe)
	assert.Equal(t, ok, false)
	assert.Equal(t, table.len(), 2)

	r, ok := table.take("2", RequestSubscribe)
	assert.Equal(t, ok, true)
	assert.Equal(t, r, sub)
	assert.Equal(t, table.len(), 1)

	r, ok = table.get("1")
	assert.Equal(t, ok, true)
	assert.Equal(t, r, call)

	drainErr := errors.New("drained")
	rs := table.drain()
	assert.Equal(t, len(rs), 1)
	for _, r := range rs {
		r.fail(drainErr)
	}
	assert.Equal(t, table.len(), 0)

	_, settled, err := call.call.Result()
	assert.Equal(t, settled, true)
	assert.Equal(t, err, drainErr)
}

func TestSubscriptionTracker(t *testing.T) {
	tracker := newSubscriptionTracker()

	_, ok := tracker.lookup("todos")
	assert.Equal(t, ok, false)

	tracker.track("todos", "1")
	tracker.track("todos", "2")
	id, ok := tracker.lookup("todos")
	assert.Equal(t, ok, true)
	assert.Equal(t, id, "2")

	tracker.addUnsubscribe("2", "3")
	tracker.addUnsubscribe("2", "4")

	// the replaced subscription ending leaves the name alone
	assert.Equal(t, len(tracker.complete("1")), 0)
	_, ok = tracker.lookup("todos")
	assert.Equal(t, ok, true)

	assert.Equal(t, tracker.complete("2"), []string{"3", "4"})
	_, ok = tracker.lookup("todos")
	assert.Equal(t, ok, false)
	assert.Equal(t, len(tracker.complete("2")), 0)
}
