// Package node wires discovery, transport and the transfer engine into one
// running lanlink instance and owns the inbound dispatch loop.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lanlink/lanlink/discovery"
	"github.com/lanlink/lanlink/peer"
	"github.com/lanlink/lanlink/progress"
	"github.com/lanlink/lanlink/protocol"
	"github.com/lanlink/lanlink/styles"
	"github.com/lanlink/lanlink/transfer"
	"github.com/lanlink/lanlink/transport"
)

type Config struct {
	// Name is the display name advertised on the LAN.
	Name string
	// Addr is the TCP listen address for inbound frames, e.g. ":9876".
	Addr string
	// Dir is where received files are written.
	Dir string
	// Discovery enables multicast advertisement and browsing. Disabled,
	// the registry can still be seeded by hand.
	Discovery bool
}

type Node struct {
	Self peer.Peer

	cfg      Config
	registry *peer.Registry
	listener *transport.Listener
	sender   *transport.Sender
	engine   *transfer.Engine
	log      zerolog.Logger

	// pending holds chunk frames that arrived before their transfer's
	// offer. Touched only by the dispatch goroutine.
	pending map[uuid.UUID][]*protocol.Message
}

func New(cfg Config, log zerolog.Logger) *Node {
	registry := peer.NewRegistry()

	return &Node{
		Self: peer.Peer{
			ID:   uuid.New(),
			Name: cfg.Name,
		},
		cfg:      cfg,
		registry: registry,
		listener: transport.NewListener(cfg.Addr, log),
		sender:   transport.NewSender(registry, log),
		engine:   transfer.NewEngine(cfg.Dir, log),
		log:      log,
		pending:  make(map[uuid.UUID][]*protocol.Message),
	}
}

// Start binds the transport listener, starts discovery when enabled, and
// launches the dispatch loop. Setup failure here is fatal; everything
// after Start returns is logged and non-fatal.
func (n *Node) Start(ctx context.Context) error {
	if err := n.listener.Start(ctx); err != nil {
		return err
	}

	n.Self.Addr = n.listener.Addr().String()

	if n.cfg.Discovery {
		port := n.listener.Addr().(*net.TCPAddr).Port
		d := discovery.New(n.Self.ID, n.Self.Name, port, n.registry, n.log)
		if err := d.Start(ctx); err != nil {
			return err
		}
	}

	go n.dispatch(ctx)

	return nil
}

// Registry exposes the peer table, for listing and for seeding peers when
// discovery is disabled.
func (n *Node) Registry() *peer.Registry {
	return n.registry
}

func (n *Node) Peers() []peer.Peer {
	return n.registry.List()
}

// SendText delivers one text message to the peer.
func (n *Node) SendText(peerID uuid.UUID, text string) error {
	return n.sender.Send(peerID, protocol.NewText(text))
}

// SendFile offers path to the peer and streams its chunks linearly. The
// receiving side auto-accepts offers, so chunks follow the offer without
// waiting for a reply. Blocks until the file is fully handed to the
// transport or a send fails.
func (n *Node) SendFile(peerID uuid.UUID, path string) error {
	id, name, size, err := n.engine.PrepareSend(path)
	if err != nil {
		return err
	}
	defer n.engine.Finalize(id)

	if err := n.sender.Send(peerID, protocol.NewFileOffer(id, name, size)); err != nil {
		return fmt.Errorf("failed to send offer: %w", err)
	}

	if size > 0 {
		if err := n.streamChunks(peerID, id, name, size); err != nil {
			return err
		}
	}

	if err := n.sender.Send(peerID, protocol.NewFileComplete(id)); err != nil {
		return fmt.Errorf("failed to send completion: %w", err)
	}

	n.log.Info().
		Str("id", id.String()).
		Str("name", name).
		Uint64("size", size).
		Msg("file sent")

	return nil
}

func (n *Node) streamChunks(peerID, id uuid.UUID, name string, size uint64) error {
	p := progress.New()
	bar := p.NewBar(int64(size), name)

	var offset uint64
	for {
		chunk, err := n.engine.ReadChunk(id, offset)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			bar.Abort(true)
			p.Wait()
			return err
		}

		if err := n.sender.Send(peerID, protocol.NewFileChunk(id, offset, chunk)); err != nil {
			bar.Abort(true)
			p.Wait()
			return fmt.Errorf("failed to send chunk at %d: %w", offset, err)
		}

		offset += uint64(len(chunk))
		bar.IncrBy(len(chunk))
	}

	p.Wait()

	return nil
}

func (n *Node) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.listener.Messages():
			n.handleMessage(msg)
		}
	}
}

func (n *Node) handleMessage(m *protocol.Message) {
	switch m.Type {
	case protocol.TypeText:
		fmt.Printf("\n%s %s\n> ", styles.MESSAGE.Render("[msg]"), m.Content)

	case protocol.TypeFileOffer:
		n.handleOffer(m)

	case protocol.TypeFileChunk:
		n.handleChunk(m, true)

	case protocol.TypeFileComplete:
		n.handleComplete(m)

	case protocol.TypeFileAccept, protocol.TypeFileReject:
		// Offers carry no reply route, so nobody sends these in the base
		// flow; they stay in the protocol for compatibility.
		n.log.Debug().
			Uint8("type", m.Type).
			Str("id", m.ID.String()).
			Msg("ignoring unsolicited transfer reply")

	default:
		n.log.Warn().Uint8("type", m.Type).Msg("unhandled message type")
	}
}

// handleOffer auto-accepts every offer: the inbound transfer is created
// immediately and chunks are expected to follow. Chunks that raced ahead
// of the offer are parked by id and replayed here. An empty file is
// complete as soon as it is prepared, so it is finalized on the spot.
func (n *Node) handleOffer(m *protocol.Message) {
	path, err := n.engine.PrepareReceive(m.ID, m.Name, m.Size)
	if err != nil {
		n.log.Error().Err(err).Str("name", m.Name).Msg("failed to prepare receive")
		fmt.Printf("\n%s cannot receive %s: %v\n> ", styles.ERROR.Render("[file]"), m.Name, err)
		return
	}

	fmt.Printf("\n%s incoming %s (%s) -> %s\n> ",
		styles.INFO.Render("[file]"), m.Name, humanize.IBytes(m.Size), path)

	n.replay(m.ID)

	if n.engine.IsComplete(m.ID) {
		n.finish(m.ID)
	}
}

func (n *Node) handleChunk(m *protocol.Message, mayPark bool) {
	done, err := n.engine.ApplyChunk(m.ID, m.Offset, m.Data)
	if err != nil {
		// Each frame travels on its own connection, so a chunk can be
		// dispatched before the offer that creates its transfer. Park it
		// until the offer lands.
		if mayPark && errors.Is(err, transfer.ErrTransferNotFound) {
			n.park(m)
			return
		}

		n.log.Error().
			Err(err).
			Str("id", m.ID.String()).
			Uint64("offset", m.Offset).
			Msg("failed to apply chunk")
		return
	}

	if done {
		n.finish(m.ID)
	}
}

// handleComplete is a backstop: completion is driven by the chunk path
// (or by handleOffer for empty files), so by the time this frame lands
// the transfer is usually gone already. A completion racing ahead of the
// final chunk or of the offer itself is ignored, never parked; it carries
// nothing a replay could recover.
func (n *Node) handleComplete(m *protocol.Message) {
	if n.engine.IsComplete(m.ID) {
		n.finish(m.ID)
		return
	}

	n.log.Debug().Str("id", m.ID.String()).Msg("completion for inactive transfer")
}

func (n *Node) finish(id uuid.UUID) {
	path, _ := n.engine.Path(id)
	n.engine.Finalize(id)
	fmt.Printf("\n%s saved %s\n> ", styles.SUCCESS.Render("[file]"), path)
}

// maxParked bounds the frames held back per transfer id; at 64 KiB per
// chunk that is 8 MiB of buffered data.
const maxParked = 128

// park holds back a chunk whose transfer id has no inbound entry yet.
// pending is owned by the dispatch goroutine; no locking.
func (n *Node) park(m *protocol.Message) {
	if len(n.pending[m.ID]) >= maxParked {
		n.log.Warn().
			Str("id", m.ID.String()).
			Msg("pending buffer full, dropping chunk")
		return
	}

	n.pending[m.ID] = append(n.pending[m.ID], m)
}

// replay re-applies chunks parked for id, in arrival order. Replayed
// chunks are not parked again: if the transfer is gone by now it was
// finalized during the replay and the leftovers are stale.
func (n *Node) replay(id uuid.UUID) {
	parked := n.pending[id]
	if len(parked) == 0 {
		return
	}
	delete(n.pending, id)

	for _, m := range parked {
		n.handleChunk(m, false)
	}
}
