package ddp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/golang/glog"
)

// A Transport is an open, message oriented duplex stream to the server.
// Framing and reconnect are the transport's concern. The client only sends
// and receives whole messages.
type Transport interface {
	Send(message []byte) error
	// closed when the stream ends
	Receive() <-chan []byte
	// the reason the stream ended, or nil if it was closed locally or is still open
	Err() error
	Close()
}

type DialFunction func(ctx context.Context) (Transport, error)

type WsTransportSettings struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// the read deadline, extended by every message and pong
	ReadTimeout time.Duration
	// idle time before a websocket ping is written
	PingTimeout time.Duration
	// maximum time `Send` waits for space in the send buffer
	SendTimeout time.Duration
	BufferSize  int
	Header      http.Header
}

func DefaultWsTransportSettings() *WsTransportSettings {
	return &WsTransportSettings{
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingTimeout:      15 * time.Second,
		SendTimeout:      5 * time.Second,
		BufferSize:       32,
	}
}

// a websocket with one writer goroutine and one reader goroutine.
// DDP frames are sent as text messages.
type WsTransport struct {
	ctx    context.Context
	cancel context.CancelFunc

	url      string
	ws       *websocket.Conn
	settings *WsTransportSettings

	send    chan []byte
	receive chan []byte

	stateLock sync.Mutex
	err       error
}

func WsDialer(url string, settings *WsTransportSettings) DialFunction {
	return func(ctx context.Context) (Transport, error) {
		return DialWsTransport(ctx, url, settings)
	}
}

func DialWsTransportWithDefaults(ctx context.Context, url string) (*WsTransport, error) {
	return DialWsTransport(ctx, url, DefaultWsTransportSettings())
}

func DialWsTransport(ctx context.Context, url string, settings *WsTransportSettings) (*WsTransport, error) {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: settings.HandshakeTimeout,
	}
	dial := func() (*websocket.Conn, error) {
		ws, _, err := dialer.DialContext(ctx, url, settings.Header)
		return ws, err
	}

	var ws *websocket.Conn
	var err error
	if glog.V(2) {
		ws, err = traceCall(fmt.Sprintf("ws connect %s", url), dial)
	} else {
		ws, err = dial()
	}
	if err != nil {
		return nil, err
	}

	cancelCtx, cancel := context.WithCancel(ctx)
	transport := &WsTransport{
		ctx:      cancelCtx,
		cancel:   cancel,
		url:      url,
		ws:       ws,
		settings: settings,
		send:     make(chan []byte, settings.BufferSize),
		receive:  make(chan []byte, settings.BufferSize),
	}
	go transport.runWrite()
	go transport.runRead()
	return transport, nil
}

func (self *WsTransport) runWrite() {
	defer func() {
		self.cancel()

		self.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(self.settings.WriteTimeout),
		)
		// unblocks the reader
		self.ws.Close()
	}()

	for {
		select {
		case <-self.ctx.Done():
			return
		case message := <-self.send:
			self.ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
			if err := self.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				// note that for websocket a dealine timeout cannot be recovered
				glog.Infof("[ws]%s-> error = %s\n", self.url, err)
				self.setErr(err)
				return
			}
			glog.V(2).Infof("[ws]%s-> %d\n", self.url, len(message))
		case <-time.After(self.settings.PingTimeout):
			if err := self.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(self.settings.WriteTimeout)); err != nil {
				glog.Infof("[ws]ping %s-> error = %s\n", self.url, err)
				self.setErr(err)
				return
			}
		}
	}
}

func (self *WsTransport) runRead() {
	defer func() {
		self.cancel()
		close(self.receive)
	}()

	self.ws.SetPongHandler(func(string) error {
		glog.V(2).Infof("[ws]pong %s<-\n", self.url)
		return self.ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
	})

	for {
		self.ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
		messageType, message, err := self.ws.ReadMessage()
		if err != nil {
			select {
			case <-self.ctx.Done():
				// closed locally
			default:
				glog.Infof("[ws]%s<- error = %s\n", self.url, err)
				self.setErr(err)
			}
			return
		}

		switch messageType {
		case websocket.TextMessage, websocket.BinaryMessage:
			glog.V(2).Infof("[ws]%s<- %d\n", self.url, len(message))
			select {
			case <-self.ctx.Done():
				return
			case self.receive <- message:
			}
		default:
			glog.V(2).Infof("[ws]other=%d %s<-\n", messageType, self.url)
		}
	}
}

func (self *WsTransport) setErr(err error) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	if self.err == nil {
		self.err = err
	}
}

func (self *WsTransport) Send(message []byte) error {
	select {
	case <-self.ctx.Done():
		if err := self.Err(); err != nil {
			return err
		}
		return ErrClosed
	default:
	}

	select {
	case <-self.ctx.Done():
		if err := self.Err(); err != nil {
			return err
		}
		return ErrClosed
	case self.send <- message:
		return nil
	case <-time.After(self.settings.SendTimeout):
		return errors.New("Send buffer full.")
	}
}

func (self *WsTransport) Receive() <-chan []byte {
	return self.receive
}

func (self *WsTransport) Err() error {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.err
}

func (self *WsTransport) Close() {
	self.cancel()
}
