// Package wsock adapts a gorilla websocket connection to the relay's
// socket capability contract. Events travel as JSON event frames; a
// single write mutex keeps concurrent emits off the wire at once.
package wsock

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"editmesh/internal/proto"
	"editmesh/internal/transport"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  proto.SoftMaxFrameSize,
	WriteBufferSize: proto.SoftMaxFrameSize,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Socket struct {
	conn       *websocket.Conn
	dispatcher *transport.Dispatcher
	log        *zap.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// New wraps an established websocket connection and starts its read
// loop.
func New(conn *websocket.Conn, log *zap.Logger) *Socket {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Socket{
		conn:       conn,
		dispatcher: transport.NewDispatcher(),
		log:        log,
		done:       make(chan struct{}),
	}
	conn.SetReadLimit(proto.MaxFrameSize)
	go s.readLoop()
	return s
}

// Dial connects to a relay's websocket endpoint.
func Dial(ctx context.Context, url string, log *zap.Logger) (*Socket, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return New(conn, log), nil
}

// Upgrade accepts an inbound websocket connection on the relay side.
func Upgrade(w http.ResponseWriter, r *http.Request, log *zap.Logger) (*Socket, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return New(conn, log), nil
}

func (s *Socket) readLoop() {
	defer s.markClosed()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.log.Debug("websocket read ended", zap.Error(err))
			return
		}
		frame, err := proto.DecodeEventFrame(data)
		if err != nil {
			s.log.Debug("drop bad event frame", zap.Error(err))
			continue
		}
		s.dispatcher.Dispatch(frame.Event, frame.Payload)
	}
}

func (s *Socket) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *Socket) Disconnected() bool {
	return !s.Connected()
}

// Connect reports readiness; the connection is established by Dial or
// Upgrade and cannot be reopened once closed.
func (s *Socket) Connect() error {
	if s.Disconnected() {
		return transport.ErrSocketClosed
	}
	return nil
}

func (s *Socket) Disconnect() error {
	s.markClosed()
	return s.conn.Close()
}

// Done is closed when the peer goes away; the daemon uses it to apply
// its disconnect policy.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

func (s *Socket) On(event string, h transport.Handler) transport.Subscription {
	return s.dispatcher.On(event, h)
}

func (s *Socket) Off(sub transport.Subscription) {
	s.dispatcher.Off(sub)
}

func (s *Socket) RemoveAllListeners(event string) {
	s.dispatcher.RemoveAllListeners(event)
}

func (s *Socket) Emit(event string, payload []byte) error {
	if s.Disconnected() {
		return transport.ErrSocketClosed
	}
	data, err := proto.EncodeEventFrame(proto.EventFrame{Event: event, Payload: payload})
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

var _ transport.Socket = (*Socket)(nil)
