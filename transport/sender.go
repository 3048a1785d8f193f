package transport

import (
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lanlink/lanlink/peer"
	"github.com/lanlink/lanlink/protocol"
)

var ErrPeerNotFound = errors.New("transport: peer not found")

// Sender resolves a peer id through the registry and delivers one framed
// message per outbound connection. A single connect attempt is made and no
// acknowledgement is awaited: success means the bytes were handed to the
// transport, not that the peer processed them.
type Sender struct {
	registry *peer.Registry
	log      zerolog.Logger
}

func NewSender(registry *peer.Registry, log zerolog.Logger) *Sender {
	return &Sender{
		registry: registry,
		log:      log,
	}
}

func (s *Sender) Send(peerID uuid.UUID, msg *protocol.Message) error {
	p, ok := s.registry.Get(peerID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPeerNotFound, peerID)
	}

	conn, err := net.Dial("tcp", p.Addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", p.Addr, err)
	}
	defer conn.Close()

	if err := protocol.WriteFrame(conn, msg); err != nil {
		return fmt.Errorf("failed to write frame to %s: %w", p.Addr, err)
	}

	return nil
}
