// Package quicsock adapts a QUIC connection to the relay's socket
// capability contract: one bidirectional stream per socket carrying
// length-prefixed JSON event frames.
package quicsock

import (
	"context"
	"sync"

	quic "github.com/quic-go/quic-go"
	"go.uber.org/zap"

	"editmesh/internal/proto"
	"editmesh/internal/transport"
)

type Socket struct {
	conn       *quic.Conn
	stream     *quic.Stream
	dispatcher *transport.Dispatcher
	log        *zap.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newSocket(conn *quic.Conn, stream *quic.Stream, log *zap.Logger) *Socket {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Socket{
		conn:       conn,
		stream:     stream,
		dispatcher: transport.NewDispatcher(),
		log:        log,
		done:       make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// Dial connects to a relay's QUIC endpoint and opens the event stream.
func Dial(ctx context.Context, addr string, log *zap.Logger) (*Socket, error) {
	tlsConf, err := clientTLSConfig()
	if err != nil {
		return nil, err
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConf, nil)
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "open stream failed")
		return nil, err
	}
	return newSocket(conn, stream, log), nil
}

// Listener accepts inbound QUIC sockets on the relay side.
type Listener struct {
	ln  *quic.Listener
	log *zap.Logger
}

func Listen(addr string, log *zap.Logger) (*Listener, error) {
	tlsConf, err := serverTLSConfig()
	if err != nil {
		return nil, err
	}
	ln, err := quic.ListenAddr(addr, tlsConf, nil)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Listener{ln: ln, log: log}, nil
}

func (l *Listener) Addr() string {
	return l.ln.Addr().String()
}

func (l *Listener) Accept(ctx context.Context) (*Socket, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "accept stream failed")
		return nil, err
	}
	return newSocket(conn, stream, l.log), nil
}

func (l *Listener) Close() error {
	return l.ln.Close()
}

func (s *Socket) readLoop() {
	defer s.markClosed()
	for {
		data, err := proto.ReadFrame(s.stream)
		if err != nil {
			s.log.Debug("quic read ended", zap.Error(err))
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

func (s *Socket) Connect() error {
	if s.Disconnected() {
		return transport.ErrSocketClosed
	}
	return nil
}

func (s *Socket) Disconnect() error {
	s.markClosed()
	_ = s.stream.Close()
	return s.conn.CloseWithError(0, "bye")
}

// Done is closed when the peer goes away.
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
	return proto.WriteFrame(s.stream, data)
}

var _ transport.Socket = (*Socket)(nil)
