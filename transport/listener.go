// Package transport moves framed messages between peers over TCP. Every
// connection carries exactly one frame and is closed afterwards.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"

	"github.com/lanlink/lanlink/protocol"
)

// Listener accepts inbound connections, reads the single frame each one
// carries and pushes the decoded message onto a channel consumed by the
// dispatch loop. A failure on one connection never affects another or the
// listener itself.
type Listener struct {
	addr string
	log  zerolog.Logger

	ln       net.Listener
	incoming chan *protocol.Message
}

func NewListener(addr string, log zerolog.Logger) *Listener {
	return &Listener{
		addr:     addr,
		log:      log,
		incoming: make(chan *protocol.Message, 64),
	}
}

// Start binds the transport port and launches the accept loop. A bind
// failure is returned and fatal; the loop itself runs until ctx ends.
func (l *Listener) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", l.addr, err)
	}
	l.ln = ln

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	go l.acceptLoop(ctx)

	return nil
}

// Addr reports the bound address, useful when the configured port is 0.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Messages is the stream of decoded inbound messages.
func (l *Listener) Messages() <-chan *protocol.Message {
	return l.incoming
}

func (l *Listener) acceptLoop(ctx context.Context) {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}

			l.log.Warn().Err(err).Msg("accept error")
			continue
		}

		go l.handleConn(ctx, conn)
	}
}

func (l *Listener) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	msg, err := protocol.ReadFrame(conn)
	if err != nil {
		l.log.Warn().
			Err(err).
			Str("remote", conn.RemoteAddr().String()).
			Msg("dropping connection")
		return
	}

	select {
	case l.incoming <- msg:
	case <-ctx.Done():
	}
}
