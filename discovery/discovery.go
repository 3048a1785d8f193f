// Package discovery advertises this node on the LAN and keeps the peer
// registry in sync with other nodes' advertisements.
//
// Nodes join a fixed multicast group and periodically announce their id,
// display name and transport port as a small JSON payload tagged with the
// service identifier. A departing node sends a bye, which removes its
// entries by advertised name. The advertisement carries the node's real
// uuid, so the registry never has to invent a provisional identity for a
// resolved peer.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"

	"github.com/lanlink/lanlink/peer"
)

const (
	// ServiceID tags every advertisement; payloads for other services on
	// the same group/port are ignored.
	ServiceID = "lanlink.v1"

	DefaultGroup = "239.77.88.99"
	DefaultPort  = 9777

	announceInterval = 2 * time.Second
	readTimeout      = 500 * time.Millisecond
)

const (
	eventAnnounce = "announce"
	eventBye      = "bye"
)

type advertisement struct {
	Service string    `json:"svc"`
	Event   string    `json:"event"`
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Port    int       `json:"port"`
}

type Discovery struct {
	selfID   uuid.UUID
	name     string
	peerPort int

	registry *peer.Registry
	log      zerolog.Logger

	group *net.UDPAddr
	conn  *net.UDPConn
}

// New returns a Discovery advertising name and peerPort (the TCP transport
// port) under selfID, feeding resolved peers into registry.
func New(selfID uuid.UUID, name string, peerPort int, registry *peer.Registry, log zerolog.Logger) *Discovery {
	return &Discovery{
		selfID:   selfID,
		name:     name,
		peerPort: peerPort,
		registry: registry,
		log:      log,
		group: &net.UDPAddr{
			IP:   net.ParseIP(DefaultGroup),
			Port: DefaultPort,
		},
	}
}

// Start joins the multicast group and launches the announce and read loops.
// Failure to bind or join is returned to the caller and is fatal at
// startup; everything after that is logged and non-fatal.
func (d *Discovery) Start(ctx context.Context) error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: DefaultPort})
	if err != nil {
		return fmt.Errorf("failed to bind discovery port: %w", err)
	}
	d.conn = conn

	pc := ipv4.NewPacketConn(conn)
	joined := 0

	ifaces, _ := net.Interfaces()
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := pc.JoinGroup(&iface, &net.UDPAddr{IP: d.group.IP}); err == nil {
			joined++
		}
	}

	if joined == 0 {
		conn.Close()
		return fmt.Errorf("failed to join multicast group %s on any interface", d.group.IP)
	}

	pc.SetMulticastTTL(4)
	pc.SetMulticastLoopback(true)

	go d.announceLoop(ctx)
	go d.readLoop(ctx)

	return nil
}

func (d *Discovery) announceLoop(ctx context.Context) {
	ticker := time.NewTicker(announceInterval)
	defer ticker.Stop()

	d.send(eventAnnounce)

	for {
		select {
		case <-ticker.C:
			d.send(eventAnnounce)
		case <-ctx.Done():
			d.send(eventBye)
			d.conn.Close()
			return
		}
	}
}

func (d *Discovery) send(event string) {
	ad := advertisement{
		Service: ServiceID,
		Event:   event,
		ID:      d.selfID,
		Name:    d.name,
		Port:    d.peerPort,
	}

	data, err := json.Marshal(ad)
	if err != nil {
		d.log.Error().Err(err).Msg("failed to marshal advertisement")
		return
	}

	if _, err := d.conn.WriteToUDP(data, d.group); err != nil {
		d.log.Warn().Err(err).Msg("failed to send advertisement")
	}
}

func (d *Discovery) readLoop(ctx context.Context) {
	buffer := make([]byte, 2048)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			d.conn.SetReadDeadline(time.Now().Add(readTimeout))

			n, src, err := d.conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				select {
				case <-ctx.Done():
					return
				default:
				}
				d.log.Warn().Err(err).Msg("failed to read advertisement")
				continue
			}

			d.handlePacket(buffer[:n], src)
		}
	}
}

// handlePacket translates one advertisement into a registry update.
func (d *Discovery) handlePacket(data []byte, src *net.UDPAddr) {
	var ad advertisement
	if err := json.Unmarshal(data, &ad); err != nil {
		d.log.Debug().Err(err).Msg("ignoring malformed advertisement")
		return
	}

	if ad.Service != ServiceID {
		return
	}

	// Our own announcements come back via multicast loopback.
	if ad.ID == d.selfID {
		return
	}

	switch ad.Event {
	case eventAnnounce:
		p := peer.Peer{
			ID:   ad.ID,
			Name: ad.Name,
			Addr: net.JoinHostPort(src.IP.String(), fmt.Sprint(ad.Port)),
		}
		d.registry.Add(p)

		d.log.Debug().
			Str("id", p.ID.String()).
			Str("name", p.Name).
			Str("addr", p.Addr).
			Msg("peer resolved")

	case eventBye:
		d.registry.RemoveByName(ad.Name)

		d.log.Debug().
			Str("name", ad.Name).
			Msg("peer removed")
	}
}
