// Package file implements the file transfer service: a line-oriented
// command channel that carries raw binary payloads for uploads and
// downloads, plus inventory broadcasts to every connected client.
package file

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lanhub/internal/constants"
	"lanhub/internal/eventlog"
	"lanhub/internal/metrics"
)

// Server accepts file clients and serves the UPLOAD, DOWNLOAD and DELETE
// commands over newline-delimited lines interleaved with raw payloads.
type Server struct {
	inv     *Inventory
	events  *eventlog.Logger
	metrics *metrics.Metrics
	ln      net.Listener

	mu      sync.Mutex
	clients map[*fileClient]struct{}
}

// fileClient wraps a connection with a write mutex. The mutex is held
// for the whole of a download stream so inventory broadcasts cannot be
// spliced into the binary data.
type fileClient struct {
	id   string
	conn net.Conn
	mu   sync.Mutex
}

func (c *fileClient) send(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.conn, "%s\n", line)
	return err
}

// stream copies the file body to the client under the write mutex.
func (c *fileClient) stream(src io.Reader) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, constants.FileChunkSize)
	_, err := io.CopyBuffer(c.conn, src, buf)
	return err
}

// New builds a file transfer server over the given inventory.
func New(inv *Inventory, events *eventlog.Logger, m *metrics.Metrics) *Server {
	return &Server{
		inv:     inv,
		events:  events,
		metrics: m,
		clients: make(map[*fileClient]struct{}),
	}
}

// Start binds the TCP port and begins accepting file clients.
func (s *Server) Start(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to bind file port %d: %w", port, err)
	}
	s.ln = ln

	log.Printf("💾 File server listening on port %d (storage: %s)", port, s.inv.Dir())
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
			log.Printf("⚠️  File accept error: %v", err)
			continue
		}

		go func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Printf("💥 Recovered panic in file handler: %v\n%s", rec, debug.Stack())
					conn.Close()
				}
			}()
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	c := &fileClient{id: uuid.New().String(), conn: conn}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.metrics.FileClients.Inc()

	defer func() {
		s.removeClient(c)
		s.metrics.FileClients.Dec()
		log.Printf("💾 File client %s disconnected", conn.RemoteAddr())
	}()

	log.Printf("💾 File client %s connected", conn.RemoteAddr())

	// Every new client gets the current inventory first.
	if err := s.inv.Rescan(); err != nil {
		log.Printf("⚠️  %v", err)
	}
	if err := c.send("FILE_LIST:" + strings.Join(s.inv.List(), ",")); err != nil {
		return
	}

	// The same buffered reader carries command lines and the binary
	// payload that follows an UPLOAD; reads must never bypass it.
	r := bufio.NewReader(conn)
	for {
		conn.SetReadDeadline(time.Now().Add(constants.FileIdleTimeout))
		line, err := r.ReadString('\n')
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				log.Printf("💾 File client %s idle for %s. Disconnecting.", conn.RemoteAddr(), constants.FileIdleTimeout)
			}
			return
		}
		conn.SetReadDeadline(time.Time{})

		cmd := strings.TrimRight(line, "\r\n")
		if cmd == "" {
			continue
		}

		switch {
		case strings.HasPrefix(cmd, "UPLOAD:"):
			if !s.handleUpload(c, r, cmd) {
				return
			}
		case strings.HasPrefix(cmd, "DOWNLOAD:"):
			if !s.handleDownload(c, r, cmd) {
				return
			}
		case strings.HasPrefix(cmd, "DELETE:"):
			s.handleDelete(c, cmd)
		default:
			log.Printf("⚠️  Unknown file command from %s: %q", conn.RemoteAddr(), cmd)
		}
	}
}

// handleUpload receives one file. It returns false when the connection
// must be dropped, which happens on any failure once the binary payload
// has started; the stream offset is unrecoverable at that point.
func (s *Server) handleUpload(c *fileClient, r *bufio.Reader, cmd string) bool {
	parts := strings.SplitN(cmd, ":", 3)
	if len(parts) != 3 {
		c.send("ERROR:Invalid UPLOAD command")
		return true
	}

	name, err := sanitizeName(parts[1])
	if err != nil {
		c.send("ERROR:Invalid filename")
		return true
	}
	size, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || size < 0 {
		c.send("ERROR:Invalid file size")
		return true
	}

	f, finalName, err := s.inv.CreateUnique(name)
	if err != nil {
		log.Printf("⚠️  Could not create %q for upload: %v", name, err)
		c.send("ERROR:Upload failed")
		return true
	}
	path := s.inv.Path(finalName)

	if err := c.send("OK"); err != nil {
		f.Close()
		os.Remove(path)
		return false
	}

	log.Printf("💾 Receiving %q (%d bytes) from %s", finalName, size, c.conn.RemoteAddr())
	if _, err := io.CopyN(f, r, size); err != nil {
		f.Close()
		os.Remove(path)
		log.Printf("⚠️  Upload of %q aborted mid-stream, partial file deleted: %v", finalName, err)
		return false
	}
	f.Close()

	log.Printf("💾 Stored %q", finalName)
	s.events.Log(eventlog.TypeFileUpload, "", c.id, finalName)
	s.metrics.FilesUploaded.Inc()
	if err := s.inv.Rescan(); err != nil {
		log.Printf("⚠️  %v", err)
	}
	s.broadcast("NEW_FILE:"+finalName, c)
	return true
}

// handleDownload streams one file back to the client. The client must
// confirm with OK before the bytes flow; anything else skips the send
// and keeps the connection usable.
func (s *Server) handleDownload(c *fileClient, r *bufio.Reader, cmd string) bool {
	parts := strings.SplitN(cmd, ":", 2)
	if len(parts) != 2 {
		c.send("ERROR:Invalid DOWNLOAD command")
		return true
	}
	name, err := sanitizeName(parts[1])
	if err != nil {
		c.send("ERROR:Invalid filename")
		return true
	}

	path := s.inv.Path(name)
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		c.send("ERROR:File not found")
		return true
	}

	if err := c.send(fmt.Sprintf("FILE_DATA:%d", fi.Size())); err != nil {
		return false
	}

	c.conn.SetReadDeadline(time.Now().Add(constants.DownloadConfirmWait))
	confirm, err := r.ReadString('\n')
	c.conn.SetReadDeadline(time.Time{})
	if err != nil {
		log.Printf("⚠️  No download confirmation from %s for %q: %v", c.conn.RemoteAddr(), name, err)
		return false
	}
	if strings.TrimSpace(confirm) != "OK" {
		log.Printf("💾 Client %s declined download of %q", c.conn.RemoteAddr(), name)
		return true
	}

	f, err := os.Open(path)
	if err != nil {
		c.send("ERROR:File not found")
		return true
	}
	defer f.Close()

	log.Printf("💾 Sending %q (%d bytes) to %s", name, fi.Size(), c.conn.RemoteAddr())
	if err := c.stream(f); err != nil {
		log.Printf("⚠️  Download of %q to %s failed: %v", name, c.conn.RemoteAddr(), err)
		return false
	}
	s.metrics.FilesServed.Inc()
	return true
}

func (s *Server) handleDelete(c *fileClient, cmd string) {
	parts := strings.SplitN(cmd, ":", 2)
	if len(parts) != 2 {
		c.send("ERROR:Invalid DELETE command")
		return
	}
	name, err := sanitizeName(parts[1])
	if err != nil {
		c.send("ERROR:Invalid filename")
		return
	}

	path := s.inv.Path(name)
	if _, err := os.Stat(path); err != nil {
		c.send("ERROR:File not found")
		return
	}
	if err := os.Remove(path); err != nil {
		log.Printf("⚠️  Could not delete %q: %v", name, err)
		c.send("ERROR:Could not delete file")
		return
	}

	log.Printf("🗑  Deleted %q on request from %s", name, c.conn.RemoteAddr())
	s.events.Log(eventlog.TypeFileDelete, "", c.id, name)
	s.metrics.FilesDeleted.Inc()
	if err := s.inv.Rescan(); err != nil {
		log.Printf("⚠️  %v", err)
	}

	// The deletion notice goes to everyone, the requester included, so
	// all clients converge on the same inventory.
	s.broadcast("FILE_DELETED:"+name, nil)
	c.send("OK:File deleted")
}

// broadcast sends a notification line to every connected client except
// the excluded one. The client set is copied under the lock; sends
// happen outside it.
func (s *Server) broadcast(line string, exclude *fileClient) {
	s.mu.Lock()
	targets := make([]*fileClient, 0, len(s.clients))
	for c := range s.clients {
		if c != exclude {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		if err := c.send(line); err != nil {
			log.Printf("💾 Dropping unreachable file client %s: %v", c.conn.RemoteAddr(), err)
			s.removeClient(c)
			c.conn.Close()
		}
	}
}

func (s *Server) removeClient(c *fileClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// Inventory exposes the underlying file inventory.
func (s *Server) Inventory() *Inventory {
	return s.inv
}

// ClientCount returns the number of connected file clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
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
	conns := make([]net.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c.conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
	return err
}
