// Package relay implements best-effort UDP fan-out for media streams. The
// audio and video listeners are two independent instances of the same
// Relay; payloads are opaque and forwarded verbatim.
package relay

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"

	"lanhub/internal/constants"
	"lanhub/internal/metrics"
)

// Relay forwards every inbound datagram to all other known peers. Peers
// are learned from their first datagram and only evicted when a send to
// them fails with a reset, so the set is best-effort by design.
type Relay struct {
	name    string
	conn    *net.UDPConn
	metrics *metrics.Metrics

	mu    sync.Mutex
	peers map[string]*net.UDPAddr
}

// New builds a relay. The name labels log lines and metrics (audio, video).
func New(name string, m *metrics.Metrics) *Relay {
	return &Relay{
		name:    name,
		metrics: m,
		peers:   make(map[string]*net.UDPAddr),
	}
}

// Start binds the UDP port and begins the single receive/fan-out loop.
func (r *Relay) Start(port int) error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to resolve %s relay address: %w", r.name, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s relay port %d: %w", r.name, port, err)
	}
	r.conn = conn

	log.Printf("🔊 %s relay listening on port %d", r.name, port)
	go r.loop()
	return nil
}

// loop is single-threaded: no per-peer goroutines, and the buffer is
// reused because every forward completes before the next read.
func (r *Relay) loop() {
	buf := make([]byte, constants.UDPBufferSize)
	for {
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("⚠️  %s relay read error: %v", r.name, err)
			continue
		}

		if r.metrics != nil {
			r.metrics.DatagramsReceived.WithLabelValues(r.name).Inc()
		}

		key := addr.String()
		r.mu.Lock()
		if _, known := r.peers[key]; !known {
			r.peers[key] = addr
			log.Printf("🔊 New %s peer %s", r.name, key)
			if r.metrics != nil {
				r.metrics.RelayPeers.WithLabelValues(r.name).Set(float64(len(r.peers)))
			}
		}
		targets := make([]*net.UDPAddr, 0, len(r.peers)-1)
		for peerKey, peerAddr := range r.peers {
			if peerKey != key {
				targets = append(targets, peerAddr)
			}
		}
		r.mu.Unlock()

		for _, target := range targets {
			if _, err := r.conn.WriteToUDP(buf[:n], target); err != nil {
				// A reset means the peer vanished; drop it from the set.
				log.Printf("🔊 Evicting %s peer %s: %v", r.name, target, err)
				r.evict(target.String())
				continue
			}
			if r.metrics != nil {
				r.metrics.DatagramsRelayed.WithLabelValues(r.name).Inc()
			}
		}
	}
}

func (r *Relay) evict(key string) {
	r.mu.Lock()
	delete(r.peers, key)
	if r.metrics != nil {
		r.metrics.RelayPeers.WithLabelValues(r.name).Set(float64(len(r.peers)))
	}
	r.mu.Unlock()
}

// PeerCount returns the number of currently known peers.
func (r *Relay) PeerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// Addr returns the bound address, or nil before Start.
func (r *Relay) Addr() net.Addr {
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// Close stops the relay by closing its socket.
func (r *Relay) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}
