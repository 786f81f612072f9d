// Package discovery answers LAN broadcast probes with the server address.
package discovery

import (
	"errors"
	"fmt"
	"log"
	"net"

	"lanhub/internal/constants"
	"lanhub/internal/metrics"
)

// Responder is the stateless UDP request/reply announcer.
type Responder struct {
	conn    *net.UDPConn
	reply   []byte
	metrics *metrics.Metrics
}

// New builds a responder announcing the given server IP.
func New(serverIP string, m *metrics.Metrics) *Responder {
	return &Responder{
		reply:   []byte(constants.DiscoveryReply + serverIP),
		metrics: m,
	}
}

// Start binds the UDP port and begins answering probes.
func (r *Responder) Start(port int) error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to resolve discovery address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind discovery port %d: %w", port, err)
	}
	r.conn = conn

	log.Printf("📡 Discovery server listening on port %d (replying with %s)", port, string(r.reply))
	go r.loop()
	return nil
}

func (r *Responder) loop() {
	buf := make([]byte, 1024)
	for {
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("⚠️  Discovery read error: %v", err)
			continue
		}

		if string(buf[:n]) != constants.DiscoveryRequest {
			continue
		}

		log.Printf("📡 Discovery request from %s", addr)
		if r.metrics != nil {
			r.metrics.DiscoveryRequests.Inc()
		}
		if _, err := r.conn.WriteToUDP(r.reply, addr); err != nil {
			log.Printf("⚠️  Discovery reply to %s failed: %v", addr, err)
		}
	}
}

// Addr returns the bound address, or nil before Start.
func (r *Responder) Addr() net.Addr {
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// Close stops the responder by closing its socket.
func (r *Responder) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}
