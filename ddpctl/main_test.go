package main

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/bringyour/ddp/ddp"
)

func TestWatchObserver(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan *watchEvent, 1)
	observer := watchObserver(ctx, "todos", events)

	observer(ddp.Document{"_id": "1", "title": "a"}, "added")
	event := <-events
	assert.Equal(t, event.Collection, "todos")
	assert.Equal(t, event.Event, "added")
	assert.Equal(t, event.Doc, ddp.Document{"_id": "1", "title": "a"})

	// fill the buffer, then a burst after the watch ends must not block
	observer(ddp.Document{"_id": "1"}, "changed")
	cancel()

	returned := make(chan struct{})
	go func() {
		defer close(returned)
		for i := 0; i < 2048; i += 1 {
			observer(ddp.Document{"_id": "1"}, "changed")
		}
	}()
	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("Observer blocked after the watch ended.")
	}
	assert.Equal(t, len(events), 1)
}
