package ddp

import (
	"encoding/json"
)

type RequestKind int

const (
	RequestCall RequestKind = iota
	RequestSubscribe
	RequestUnsubscribe
)

func (self RequestKind) String() string {
	switch self {
	case RequestCall:
		return "call"
	case RequestSubscribe:
		return "subscribe"
	case RequestUnsubscribe:
		return "unsubscribe"
	default:
		return "unknown"
	}
}

// an outstanding request. Exactly one of `call` or `ready` is set, by kind.
type request struct {
	id   string
	kind RequestKind
	// method name, or publication name for subscribe and unsubscribe
	name string

	call  *Handle[json.RawMessage]
	ready *Handle[struct{}]
}

func (self *request) fail(err error) {
	switch self.kind {
	case RequestCall:
		self.call.Fail(err)
	default:
		self.ready.Fail(err)
	}
}

// requestTable maps outstanding request ids to their handles.
// An entry is removed when its handle settles.
// Not safe for concurrent use, the client guards it with its state lock.
type requestTable struct {
	requests map[string]*request
}

func newRequestTable() *requestTable {
	return &requestTable{
		requests: map[string]*request{},
	}
}

func (self *requestTable) add(r *request) {
	self.requests[r.id] = r
}

func (self *requestTable) get(id string) (*request, bool) {
	r, ok := self.requests[id]
	return r, ok
}

// returns the request only if it exists with the given kind,
// and removes it from the table
func (self *requestTable) take(id string, kind RequestKind) (*request, bool) {
	r, ok := self.requests[id]
	if !ok || r.kind != kind {
		return nil, false
	}
	delete(self.requests, id)
	return r, true
}

func (self *requestTable) remove(id string) (*request, bool) {
	r, ok := self.requests[id]
	if ok {
		delete(self.requests, id)
	}
	return r, ok
}

// removes and returns all outstanding requests
func (self *requestTable) drain() []*request {
	rs := make([]*request, 0, len(self.requests))
	for _, r := range self.requests {
		rs = append(rs, r)
	}
	self.requests = map[string]*request{}
	return rs
}

func (self *requestTable) len() int {
	return len(self.requests)
}

// subscriptionTracker maps publication name to the request id of its active subscription.
// A second subscribe with the same name replaces the mapping.
// Pending unsubscribe request ids are tracked per subscription id until the server's `nosub`.
// Not safe for concurrent use, the client guards it with its state lock.
type subscriptionTracker struct {
	// name -> subscription id
	subscriptions map[string]string
	// subscription id -> unsubscribe request ids
	unsubscribes map[string][]string
}

func newSubscriptionTracker() *subscriptionTracker {
	return &subscriptionTracker{
		subscriptions: map[string]string{},
		unsubscribes:  map[string][]string{},
	}
}

func (self *subscriptionTracker) track(name string, subscriptionId string) {
	self.subscriptions[name] = subscriptionId
}

func (self *subscriptionTracker) lookup(name string) (string, bool) {
	subscriptionId, ok := self.subscriptions[name]
	return subscriptionId, ok
}

func (self *subscriptionTracker) addUnsubscribe(subscriptionId string, requestId string) {
	self.unsubscribes[subscriptionId] = append(self.unsubscribes[subscriptionId], requestId)
}

// the subscription ended. Removes its name mapping, if the name still maps to it,
// and returns the unsubscribe request ids waiting on it.
func (self *subscriptionTracker) complete(subscriptionId string) []string {
	for name, id := range self.subscriptions {
		if id == subscriptionId {
			delete(self.subscriptions, name)
		}
	}
	requestIds := self.unsubscribes[subscriptionId]
	delete(self.unsubscribes, subscriptionId)
	return requestIds
}
