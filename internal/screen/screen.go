// Package screen implements the screen-share relay: one presenter
// streams length-prefixed frames, every viewer receives them verbatim.
// Exclusivity is enforced here at the transport level, independently of
// the chat-side arbitration.
package screen

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"lanhub/internal/constants"
	"lanhub/internal/eventlog"
	"lanhub/internal/metrics"
)

// Server relays screen frames from the single presenter to all viewers.
type Server struct {
	events  *eventlog.Logger
	metrics *metrics.Metrics
	ln      net.Listener

	mu        sync.Mutex
	presenter net.Conn
	viewers   map[net.Conn]struct{}
}

// New builds a screen-share relay.
func New(events *eventlog.Logger, m *metrics.Metrics) *Server {
	return &Server{
		events:  events,
		metrics: m,
		viewers: make(map[net.Conn]struct{}),
	}
}

// Start binds the TCP port and begins accepting role handshakes.
func (s *Server) Start(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to bind screen port %d: %w", port, err)
	}
	s.ln = ln

	log.Printf("🖥  Screen server listening on port %d", port)
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
			log.Printf("⚠️  Screen accept error: %v", err)
			continue
		}

		go func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Printf("💥 Recovered panic in screen handler: %v\n%s", rec, debug.Stack())
					conn.Close()
				}
			}()
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	// Role negotiation: the first bytes must be exactly PRESENTER or
	// VIEWER, sent as one small segment.
	buf := make([]byte, constants.RoleTokenSize)
	n, err := conn.Read(buf)
	if err != nil {
		return
	}

	switch string(buf[:n]) {
	case constants.RolePresenter:
		s.handlePresenter(conn)
	case constants.RoleViewer:
		s.handleViewer(conn)
	default:
		log.Printf("⚠️  Unknown screen role %q from %s", buf[:n], conn.RemoteAddr())
	}
}

func (s *Server) handlePresenter(conn net.Conn) {
	s.mu.Lock()
	if s.presenter != nil {
		s.mu.Unlock()
		log.Printf("⚠️  %s tried to connect as presenter, but one is active", conn.RemoteAddr())
		conn.Write([]byte("ERROR: Presenter busy"))
		return
	}
	s.presenter = conn
	s.mu.Unlock()

	connID := uuid.New().String()
	log.Printf("🖥  %s connected as screen presenter", conn.RemoteAddr())
	s.events.Log(eventlog.TypeScreenPresenter, "", connID, conn.RemoteAddr().String())

	defer func() {
		s.mu.Lock()
		if s.presenter == conn {
			s.presenter = nil
		}
		s.mu.Unlock()
		log.Printf("🖥  Screen presenter %s disconnected", conn.RemoteAddr())
	}()

	header := make([]byte, 4)
	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		size := binary.BigEndian.Uint32(header)
		if size == 0 || size > constants.MaxFrameSize {
			log.Printf("⚠️  Presenter %s sent invalid frame size %d. Disconnecting.", conn.RemoteAddr(), size)
			return
		}

		frame := make([]byte, 4+size)
		copy(frame, header)
		if _, err := io.ReadFull(conn, frame[4:]); err != nil {
			// Disconnecting mid-frame aborts the connection; a partial
			// frame is never relayed.
			log.Printf("⚠️  Presenter %s disconnected mid-frame", conn.RemoteAddr())
			return
		}

		s.metrics.ScreenFramesRelayed.Inc()
		s.metrics.ScreenFrameBytes.Add(float64(size))
		s.relayFrame(frame)
	}
}

// relayFrame sends the prefixed frame to every viewer. The viewer list is
// copied under the lock; sends happen outside it. A failed viewer is
// silently dropped without affecting the presenter.
func (s *Server) relayFrame(frame []byte) {
	s.mu.Lock()
	targets := make([]net.Conn, 0, len(s.viewers))
	for viewer := range s.viewers {
		targets = append(targets, viewer)
	}
	s.mu.Unlock()

	for _, viewer := range targets {
		if _, err := viewer.Write(frame); err != nil {
			log.Printf("🖥  Screen viewer %s dropped during relay: %v", viewer.RemoteAddr(), err)
			s.removeViewer(viewer)
			viewer.Close()
		}
	}
}

func (s *Server) handleViewer(conn net.Conn) {
	s.mu.Lock()
	s.viewers[conn] = struct{}{}
	s.mu.Unlock()

	connID := uuid.New().String()
	log.Printf("🖥  %s connected as screen viewer", conn.RemoteAddr())
	s.events.Log(eventlog.TypeScreenViewer, "", connID, conn.RemoteAddr().String())
	s.metrics.ScreenViewers.Inc()

	defer func() {
		s.removeViewer(conn)
		s.metrics.ScreenViewers.Dec()
		log.Printf("🖥  Screen viewer %s disconnected", conn.RemoteAddr())
	}()

	// Viewers only ever receive; this loop just watches for EOF or a
	// reset. Frames are written to the socket from the presenter's loop,
	// which is the only writer, so no write lock is needed.
	probe := make([]byte, 1)
	for {
		conn.SetReadDeadline(time.Now().Add(constants.ViewerProbeInterval))
		if _, err := conn.Read(probe); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
	}
}

func (s *Server) removeViewer(conn net.Conn) {
	s.mu.Lock()
	delete(s.viewers, conn)
	s.mu.Unlock()
}

// ViewerCount returns the number of connected viewers.
func (s *Server) ViewerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.viewers)
}

// Presenting reports whether a presenter connection is currently held.
func (s *Server) Presenting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presenter != nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close stops accepting connections and closes the active ones.
func (s *Server) Close() error {
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}

	s.mu.Lock()
	conns := make([]net.Conn, 0, len(s.viewers)+1)
	if s.presenter != nil {
		conns = append(conns, s.presenter)
	}
	for viewer := range s.viewers {
		conns = append(conns, viewer)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
	return err
}
