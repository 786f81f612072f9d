// Package dashboard serves the HTTP monitoring surface: health check,
// status snapshot, Prometheus metrics and a websocket event feed.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"lanhub/internal/constants"
	"lanhub/internal/eventlog"
	"lanhub/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// LAN-local tooling; same-origin checks would only get in the way.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Status is the JSON snapshot served at /api/status.
type Status struct {
	Uptime        string         `json:"uptime"`
	ServerIP      string         `json:"server_ip"`
	ChatUsers     []session.Info `json:"chat_users"`
	Presenter     string         `json:"presenter,omitempty"`
	AudioPeers    int            `json:"audio_peers"`
	VideoPeers    int            `json:"video_peers"`
	ScreenViewers int            `json:"screen_viewers"`
	FileClients   int            `json:"file_clients"`
	Files         []string       `json:"files"`
}

// StatusFunc produces a point-in-time snapshot of the whole server.
type StatusFunc func() Status

// Dashboard exposes server state over HTTP.
type Dashboard struct {
	events *eventlog.Logger
	status StatusFunc
	server *http.Server
}

// New builds a dashboard over the event feed and status source.
func New(events *eventlog.Logger, status StatusFunc) *Dashboard {
	return &Dashboard{events: events, status: status}
}

// Handler returns the full route set, wrapped for h2c so cleartext
// HTTP/2 clients on the LAN can stream the event feed efficiently.
func (d *Dashboard) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", d.handleHealth)
	mux.HandleFunc("/api/status", d.handleStatus)
	mux.HandleFunc("/ws", d.handleWebSocket)
	mux.Handle("/metrics", promhttp.Handler())

	return h2c.NewHandler(mux, &http2.Server{})
}

// Start serves the dashboard on the given port.
func (d *Dashboard) Start(port int) error {
	d.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     d.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	log.Printf("📊 Dashboard listening on port %d", port)
	go func() {
		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("⚠️  Dashboard server error: %v", err)
		}
	}()
	return nil
}

// Stop shuts the HTTP server down gracefully.
func (d *Dashboard) Stop() error {
	if d.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()
	return d.server.Shutdown(ctx)
}

func (d *Dashboard) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "ok")
}

func (d *Dashboard) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(d.status()); err != nil {
		log.Printf("⚠️  Failed to write status: %v", err)
	}
}

// handleWebSocket upgrades the connection and forwards server events as
// JSON until the client goes away.
func (d *Dashboard) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️  Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ch := d.events.Subscribe()
	defer d.events.Unsubscribe(ch)

	// Reads are discarded but keep close handshakes working.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
