package ddp

import (
	"context"
	"sync"
)

// A Handle is the result of an asynchronous operation.
// It settles exactly once, with a result or with an error.
// All methods are safe to call from any goroutine.
type Handle[R any] struct {
	done chan struct{}

	mutex   sync.Mutex
	settled bool
	result  R
	err     error
}

func NewHandle[R any]() *Handle[R] {
	return &Handle[R]{
		done: make(chan struct{}),
	}
}

func NewFailedHandle[R any](err error) *Handle[R] {
	handle := NewHandle[R]()
	handle.Fail(err)
	return handle
}

// returns false if the handle was already settled
func (self *Handle[R]) Settle(result R) bool {
	return self.settle(result, nil)
}

// returns false if the handle was already settled
func (self *Handle[R]) Fail(err error) bool {
	var empty R
	return self.settle(empty, err)
}

func (self *Handle[R]) settle(result R, err error) bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if self.settled {
		return false
	}
	self.settled = true
	self.result = result
	self.err = err
	close(self.done)
	return true
}

// closed when the handle settles
func (self *Handle[R]) Done() <-chan struct{} {
	return self.done
}

// non-blocking. `settled` is false while the operation is pending
func (self *Handle[R]) Result() (result R, settled bool, err error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.result, self.settled, self.err
}

// blocks until the handle settles or the context is done
func (self *Handle[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-self.done:
		result, _, err := self.Result()
		return result, err
	case <-ctx.Done():
		var empty R
		return empty, ctx.Err()
	}
}
