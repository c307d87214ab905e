package ddp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/golang/glog"
)

/*
Client side of the DDP protocol:
- remote method calls, correlated by request id
- named subscriptions, acknowledged by `ready` and ended by `nosub`
- a local mirror of the collections the subscriptions publish,
  kept current from `added`, `changed` and `removed` frames
- observers notified of every mutation to a watched collection

Inbound frames are dispatched on a single goroutine in arrival order.
Caller operations never wait on the server. They register a handle and send a frame,
and the handle settles after the matching inbound frame is dispatched.
*/

type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateAwaitingHandshake
	StateConnected
	// terminal. The client was closed or the transport ended.
	StateClosed
)

func (self ConnectionState) String() string {
	switch self {
	case StateDisconnected:
		return "disconnected"
	case StateAwaitingHandshake:
		return "awaiting handshake"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handshake is the result of a completed `connect`.
type Handshake struct {
	Session string
	Version string
}

type ClientSettings struct {
	// protocol versions in order of preference. The first is proposed.
	Versions []string
}

func DefaultClientSettings() *ClientSettings {
	return &ClientSettings{
		Versions: []string{"1", "pre2", "pre1"},
	}
}

type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	instanceId Id
	clientTag  string
	dial       DialFunction
	settings   *ClientSettings

	receiveLog LogFunction

	requestIds requestIds

	stateLock sync.Mutex
	state     ConnectionState
	transport Transport
	handshake *Handle[*Handshake]

	requests      *requestTable
	subscriptions *subscriptionTracker
	collections   *collectionStore
	observers     *observerRegistry
}

func NewClientWithDefaults(ctx context.Context, dial DialFunction) *Client {
	return NewClient(ctx, dial, DefaultClientSettings())
}

func NewClient(ctx context.Context, dial DialFunction, settings *ClientSettings) *Client {
	cancelCtx, cancel := context.WithCancel(ctx)
	instanceId := NewId()
	clientTag := instanceId.String()
	return &Client{
		ctx:           cancelCtx,
		cancel:        cancel,
		instanceId:    instanceId,
		clientTag:     clientTag,
		dial:          dial,
		settings:      settings,
		receiveLog:    LogFn(LogLevelDebug, fmt.Sprintf("cr %s", clientTag)),
		state:         StateDisconnected,
		requests:      newRequestTable(),
		subscriptions: newSubscriptionTracker(),
		collections:   newCollectionStore(),
		observers:     newObserverRegistry(),
	}
}

func (self *Client) InstanceId() Id {
	return self.instanceId
}

func (self *Client) State() ConnectionState {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.state
}

// closed when the client is closed or the transport ends
func (self *Client) Done() <-chan struct{} {
	return self.ctx.Done()
}

// Connect dials the transport and sends the handshake.
// The handle settles when the server accepts the handshake,
// and fails if the transport fails first or the server rejects the version.
func (self *Client) Connect() *Handle[*Handshake] {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	switch self.state {
	case StateDisconnected:
	case StateClosed:
		return NewFailedHandle[*Handshake](ErrClosed)
	default:
		return NewFailedHandle[*Handshake](&UsageError{
			Err:     ErrAlreadyConnected,
			Message: fmt.Sprintf("Connect called in state %s.", self.state),
		})
	}

	self.state = StateAwaitingHandshake
	self.handshake = NewHandle[*Handshake]()
	go self.run()
	return self.handshake
}

func (self *Client) run() {
	dial := func() (Transport, error) {
		return self.dial(self.ctx)
	}
	var transport Transport
	var err error
	if glog.V(2) {
		transport, err = traceCall(fmt.Sprintf("c dial %s", self.clientTag), dial)
	} else {
		transport, err = dial()
	}
	if err != nil {
		if self.ctx.Err() != nil {
			// closed while dialing
			self.shutdown(ErrClosed)
			return
		}
		glog.Infof("[c]%s dial error = %s\n", self.clientTag, err)
		self.shutdown(&TransportError{Err: err})
		return
	}
	defer transport.Close()

	// the handshake goes out before the transport is visible to callers,
	// so no other frame can precede it
	connectBytes, err := EncodeFrame(NewConnectMessage(self.settings.Versions))
	if err != nil {
		self.shutdown(err)
		return
	}
	if err := transport.Send(connectBytes); err != nil {
		glog.Infof("[c]%s connect error = %s\n", self.clientTag, err)
		self.shutdown(&TransportError{Err: err})
		return
	}
	glog.V(2).Infof("[cs]%s-> %s\n", self.clientTag, connectBytes)

	self.stateLock.Lock()
	if self.state == StateClosed {
		self.stateLock.Unlock()
		return
	}
	self.transport = transport
	self.stateLock.Unlock()

	receive := func() {
		for {
			select {
			case <-self.ctx.Done():
				self.shutdown(ErrClosed)
				return
			case message, ok := <-transport.Receive():
				if !ok {
					err := transport.Err()
					if err == nil {
						err = ErrClosed
					}
					glog.Infof("[c]%s transport closed = %s\n", self.clientTag, err)
					self.shutdown(&TransportError{Err: err})
					return
				}
				self.dispatch(message)
			}
		}
	}
	if glog.V(2) {
		traceCall(fmt.Sprintf("c receive %s", self.clientTag), func() (struct{}, error) {
			receive()
			return struct{}{}, nil
		})
	} else {
		receive()
	}
}

// moves to the closed state and fails everything still pending with `err`
func (self *Client) shutdown(err error) {
	defer self.cancel()

	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.state = StateClosed
	if n := self.requests.len(); 0 < n {
		glog.Infof("[c]%s fail %d pending = %s\n", self.clientTag, n, err)
	}
	if self.handshake != nil {
		self.handshake.Fail(err)
	}
	for _, r := range self.requests.drain() {
		r.fail(err)
	}
}

// Close ends the transport. Pending handles fail with `ErrClosed`.
func (self *Client) Close() {
	self.cancel()

	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	if self.state == StateDisconnected {
		// never connected, so there is no run loop to shut down
		self.state = StateClosed
	}
}

// Send encodes and transmits one frame. See `EncodeFrame` for the accepted message types.
func (self *Client) Send(message any) error {
	frameBytes, err := EncodeFrame(message)
	if err != nil {
		return err
	}

	self.stateLock.Lock()
	transport := self.transport
	state := self.state
	self.stateLock.Unlock()

	if state == StateClosed {
		return ErrClosed
	}
	if transport == nil {
		return ErrNotConnected
	}
	if err := transport.Send(frameBytes); err != nil {
		return &TransportError{Err: err}
	}
	glog.V(2).Infof("[cs]%s-> %s\n", self.clientTag, frameBytes)
	return nil
}

// Call invokes a remote method. The handle settles with the raw JSON result.
// A `result` frame that carries neither a result nor an error leaves the handle pending.
func (self *Client) Call(method string, params ...any) *Handle[json.RawMessage] {
	handle := NewHandle[json.RawMessage]()

	self.stateLock.Lock()
	id := self.requestIds.next()
	self.requests.add(&request{
		id:   id,
		kind: RequestCall,
		name: method,
		call: handle,
	})
	self.stateLock.Unlock()

	if err := self.Send(NewMethodMessage(id, method, params)); err != nil {
		self.failRequest(id, err)
	}
	return handle
}

// Subscribe starts a subscription to a publication.
// The handle settles when the server reports the subscription ready.
// Subscribing again with the same name replaces the name's tracked subscription.
func (self *Client) Subscribe(name string, params ...any) *Handle[struct{}] {
	handle := NewHandle[struct{}]()

	self.stateLock.Lock()
	id := self.requestIds.next()
	self.requests.add(&request{
		id:    id,
		kind:  RequestSubscribe,
		name:  name,
		ready: handle,
	})
	self.subscriptions.track(name, id)
	self.stateLock.Unlock()

	if err := self.Send(NewSubMessage(id, name, params)); err != nil {
		self.failRequest(id, err)
	}
	return handle
}

// Unsubscribe stops the subscription tracked for `name`.
// The handle settles when the server confirms with `nosub`.
// If `name` was never subscribed the handle fails immediately and nothing is sent.
func (self *Client) Unsubscribe(name string) *Handle[struct{}] {
	self.stateLock.Lock()
	subscriptionId, ok := self.subscriptions.lookup(name)
	if !ok {
		self.stateLock.Unlock()
		return NewFailedHandle[struct{}](&UsageError{
			Err:     ErrNeverSubscribed,
			Message: fmt.Sprintf("%s was never subscribed", name),
		})
	}
	handle := NewHandle[struct{}]()
	id := self.requestIds.next()
	self.requests.add(&request{
		id:    id,
		kind:  RequestUnsubscribe,
		name:  name,
		ready: handle,
	})
	self.subscriptions.addUnsubscribe(subscriptionId, id)
	self.stateLock.Unlock()

	if err := self.Send(NewUnsubMessage(subscriptionId)); err != nil {
		self.failRequest(id, err)
	}
	return handle
}

func (self *Client) failRequest(id string, err error) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	r, ok := self.requests.remove(id)
	if !ok {
		// already settled, e.g. drained by shutdown
		return
	}
	if r.kind == RequestSubscribe {
		if subscriptionId, ok := self.subscriptions.lookup(r.name); ok && subscriptionId == id {
			self.subscriptions.complete(id)
		}
	}
	r.fail(err)
}

// Watch registers an observer for every mutation of the named collection.
// Observers run on the dispatch goroutine, in registration order.
func (self *Client) Watch(collectionName string, observer ObserverFunction) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.observers.watch(collectionName, observer)
}

// returns a copy of the collection, or nil if no document was ever added to it
func (self *Client) GetCollection(collectionName string) Collection {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	collection := self.collections.collection(collectionName)
	if collection == nil {
		return nil
	}
	collectionCopy := Collection{}
	for id, doc := range collection {
		docCopy, err := doc.Clone()
		if err != nil {
			glog.Infof("[c]%s copy %s/%s error = %s\n", self.clientTag, collectionName, id, err)
			continue
		}
		collectionCopy[id] = docCopy
	}
	return collectionCopy
}

// returns a copy of the document fields, or nil if the document does not exist
func (self *Client) GetDocument(collectionName string, id string) Document {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	doc := self.collections.document(collectionName, id)
	if doc == nil {
		return nil
	}
	docCopy, err := doc.Clone()
	if err != nil {
		glog.Infof("[c]%s copy %s/%s error = %s\n", self.clientTag, collectionName, id, err)
		return nil
	}
	return docCopy
}

// dispatch is only called from the run goroutine
func (self *Client) dispatch(message []byte) {
	frame, err := DecodeFrame(message)
	if err != nil {
		glog.V(1).Infof("[cr]%s drop = %s\n", self.clientTag, err)
		return
	}
	self.receiveLog("<- %s %s", frame.Msg, frame.Id)

	switch frame.Msg {
	case MessageConnected:
		self.resolveConnected(frame)
	case MessageFailed:
		self.rejectConnect(frame)
	case MessagePing:
		if err := self.Send(&PongMessage{Id: frame.Id}); err != nil {
			glog.Infof("[c]%s pong error = %s\n", self.clientTag, err)
		}
	case MessagePong:
		// heartbeat reply
	case MessageResult:
		self.resolveCall(frame)
	case MessageUpdated:
		// the methods' writes are visible. Nothing waits on this.
		self.receiveLog("updated %v", frame.Methods)
	case MessageChanged:
		self.changeDocument(frame)
	case MessageAdded, MessageAddedBefore:
		// `before` is accepted but positions are not tracked
		self.addDocument(frame)
	case MessageRemoved:
		self.removeDocument(frame)
	case MessageMovedBefore:
		// positions are not tracked
	case MessageReady:
		self.resolveSubscriptions(frame)
	case MessageNosub:
		self.resolveNosub(frame)
	case MessageError:
		glog.Infof("[c]%s server error = %s (%s)\n", self.clientTag, frame.Reason, frame.OffendingMessage)
	case MessageServerId:
	default:
		glog.V(1).Infof("[cr]%s drop unknown msg = %s\n", self.clientTag, frame.Msg)
	}
}

func (self *Client) resolveConnected(frame *Frame) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if self.state != StateAwaitingHandshake {
		glog.V(1).Infof("[cr]%s drop connected in state %s\n", self.clientTag, self.state)
		return
	}
	self.state = StateConnected
	handshake := &Handshake{
		Session: frame.Session,
	}
	if 0 < len(self.settings.Versions) {
		handshake.Version = self.settings.Versions[0]
	}
	self.handshake.Settle(handshake)
}

// the server does not speak the proposed version and will close the connection
func (self *Client) rejectConnect(frame *Frame) {
	self.stateLock.Lock()
	handshake := self.handshake
	self.stateLock.Unlock()

	handshake.Fail(&ProtocolError{
		Reason: fmt.Sprintf("Server requires protocol version %s.", frame.Version),
	})
	self.cancel()
}

func (self *Client) resolveCall(frame *Frame) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	r, ok := self.requests.get(frame.Id)
	if !ok || r.kind != RequestCall {
		glog.V(1).Infof("[cr]%s drop result for unknown id = %s\n", self.clientTag, frame.Id)
		return
	}
	if frame.Error != nil {
		self.requests.remove(frame.Id)
		r.call.Fail(frame.Error.withDefaultReason(defaultMethodErrorReason))
	} else if frame.Result != nil {
		self.requests.remove(frame.Id)
		r.call.Settle(frame.Result)
	}
	// neither field: the request stays pending
}

func (self *Client) resolveSubscriptions(frame *Frame) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	for _, subscriptionId := range frame.Subs {
		r, ok := self.requests.take(subscriptionId, RequestSubscribe)
		if !ok {
			glog.V(1).Infof("[cr]%s drop ready for unknown id = %s\n", self.clientTag, subscriptionId)
			continue
		}
		r.ready.Settle(struct{}{})
	}
}

// settles the subscription, if it was never ready, and every unsubscribe waiting on it
func (self *Client) resolveNosub(frame *Frame) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	var err error
	if frame.Error != nil {
		err = frame.Error.withDefaultReason(defaultSubscriptionErrorReason)
	}
	settle := func(r *request) {
		if err != nil {
			r.ready.Fail(err)
		} else {
			r.ready.Settle(struct{}{})
		}
	}

	// all bookkeeping is done before any handle settles
	rs := []*request{}
	if r, ok := self.requests.take(frame.Id, RequestSubscribe); ok {
		rs = append(rs, r)
	}
	for _, requestId := range self.subscriptions.complete(frame.Id) {
		if r, ok := self.requests.take(requestId, RequestUnsubscribe); ok {
			rs = append(rs, r)
		}
	}
	for _, r := range rs {
		settle(r)
	}
}

func (self *Client) addDocument(frame *Frame) {
	self.mutate(frame, func() (Document, bool) {
		return self.collections.add(frame.Collection, frame.Id, frame.Fields), true
	})
}

func (self *Client) changeDocument(frame *Frame) {
	self.mutate(frame, func() (Document, bool) {
		return self.collections.change(frame.Collection, frame.Id, frame.Fields, frame.Cleared)
	})
}

func (self *Client) removeDocument(frame *Frame) {
	self.mutate(frame, func() (Document, bool) {
		return self.collections.remove(frame.Collection, frame.Id)
	})
}

// applies `m` under the state lock, then notifies the collection's observers
// with a snapshot of the resulting document. For removal the snapshot is the removed document.
func (self *Client) mutate(frame *Frame, m func() (Document, bool)) {
	var observers []ObserverFunction
	var snapshot Document
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		doc, ok := m()
		if !ok {
			glog.V(1).Infof("[cr]%s drop %s for missing document = %s/%s\n", self.clientTag, frame.Msg, frame.Collection, frame.Id)
			return
		}
		observers = self.observers.get(frame.Collection)
		if len(observers) == 0 {
			return
		}
		var err error
		snapshot, err = doc.Clone()
		if err != nil {
			glog.Infof("[c]%s copy %s/%s error = %s\n", self.clientTag, frame.Collection, frame.Id, err)
			observers = nil
		}
	}()

	notifyObservers(observers, frame.Collection, snapshot, frame.Id, frame.Msg)
}
