// Package chat implements the TCP chat and presence relay, including the
// presenter arbitration protocol.
//
// The wire protocol is line-based in both directions: each command and
// each relayed message is one \n-terminated line. This is a deliberate
// strengthening over framing on receive-call boundaries, which a TCP
// stream does not guarantee.
package chat

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"net"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"

	"lanhub/internal/constants"
	"lanhub/internal/eventlog"
	"lanhub/internal/metrics"
	"lanhub/internal/session"
)

// Server accepts chat connections and relays presence, messages, and
// presenter arbitration between them.
type Server struct {
	registry *session.Registry
	events   *eventlog.Logger
	metrics  *metrics.Metrics
	ln       net.Listener
}

// New builds a chat server over the shared session registry.
func New(registry *session.Registry, events *eventlog.Logger, m *metrics.Metrics) *Server {
	return &Server{registry: registry, events: events, metrics: m}
}

// Start binds the TCP port and begins accepting connections.
func (s *Server) Start(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to bind chat port %d: %w", port, err)
	}
	s.ln = ln

	log.Printf("💬 Chat server listening on port %d", port)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("⚠️  Chat accept error: %v", err)
			continue
		}

		go func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Printf("💥 Recovered panic in chat handler: %v\n%s", rec, debug.Stack())
					conn.Close()
				}
			}()
			s.handle(conn)
		}()
	}
}

// handle runs the per-connection state machine: handshake, command loop,
// teardown.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	c := &client{id: uuid.New().String(), conn: conn}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), constants.ChatLineLimit)

	if !scanner.Scan() {
		log.Printf("💬 Chat client %s provided no username. Disconnecting.", conn.RemoteAddr())
		return
	}
	username := strings.TrimRight(scanner.Text(), "\r")

	if err := s.registry.Register(username, c); err != nil {
		log.Printf("⚠️  %s tried to connect with taken/invalid username %q", conn.RemoteAddr(), username)
		c.Send("ERROR:USERNAME_TAKEN")
		return
	}
	defer s.teardown(username)

	log.Printf("💬 %s connected from %s", username, conn.RemoteAddr())
	s.metrics.ChatSessions.Inc()
	defer s.metrics.ChatSessions.Dec()
	s.events.Log(eventlog.TypeUserJoin, username, c.id, conn.RemoteAddr().String())

	if err := c.Send("OK"); err != nil {
		return
	}
	if err := c.Send(rosterLine(s.registry.Snapshot())); err != nil {
		return
	}
	s.broadcast("USER_JOIN:"+username+"="+string(session.StatusOnline), username)

	// A presentation may already be running; let the new client
	// auto-subscribe as a viewer.
	if presenter, ok := s.registry.Presenter(); ok {
		c.Send("SCREEN_START:" + presenter)
	}

	for scanner.Scan() {
		msg := strings.TrimRight(scanner.Text(), "\r")
		if msg == "" {
			continue
		}
		s.dispatch(username, c, msg)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Printf("💬 %s disconnected: %v", username, err)
	}
}

// teardown removes the session, releases the presenter slot if held, and
// notifies the remaining sessions.
func (s *Server) teardown(username string) {
	removed, heldPresenter := s.registry.Unregister(username)
	if removed {
		log.Printf("💬 Disconnected: %s", username)
		s.events.Log(eventlog.TypeUserLeave, username, "", "")
		s.broadcast("USER_LEAVE:"+username, "")
	}
	if heldPresenter {
		log.Printf("🖥  Presenter %q disconnected. Stopping screen sharing.", username)
		s.events.Log(eventlog.TypePresenterStopped, username, "", "disconnect")
		s.broadcast("SCREEN_STOP", "")
	}
}

// broadcast sends one line to every session except the excluded one. The
// recipient list is copied under the registry lock; sends happen outside
// it so a slow or dead peer never stalls unrelated handlers.
func (s *Server) broadcast(line, exclude string) {
	for _, recipient := range s.registry.Recipients(exclude) {
		if err := recipient.Send(line); err != nil {
			log.Printf("⚠️  Chat broadcast send failed (peer likely disconnected): %v", err)
		}
	}
}

func rosterLine(infos []session.Info) string {
	parts := make([]string, 0, len(infos))
	for _, info := range infos {
		parts = append(parts, fmt.Sprintf("%s=%s", info.Username, info.Status))
	}
	return "USER_LIST:" + strings.Join(parts, ",")
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close stops accepting connections. Established connections terminate
// through their own read errors.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}
