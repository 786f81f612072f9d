// Package server wires the six listeners and the dashboard into one
// process with a shared lifecycle.
package server

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"lanhub/internal/chat"
	"lanhub/internal/config"
	"lanhub/internal/constants"
	"lanhub/internal/dashboard"
	"lanhub/internal/discovery"
	"lanhub/internal/eventlog"
	"lanhub/internal/file"
	"lanhub/internal/metrics"
	"lanhub/internal/relay"
	"lanhub/internal/screen"
	"lanhub/internal/session"
	"lanhub/internal/utils"
)

// Server owns every sub-server and their shared state.
type Server struct {
	cfg      *config.Config
	serverIP string
	started  time.Time

	registry *session.Registry
	events   *eventlog.Logger
	metrics  *metrics.Metrics

	discovery *discovery.Responder
	chat      *chat.Server
	audio     *relay.Relay
	video     *relay.Relay
	screen    *screen.Server
	files     *file.Server
	dash      *dashboard.Dashboard
}

// New builds the full server from configuration. The event log is
// optional; a failure there degrades to stdout logging only.
func New(cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	events, err := eventlog.New(cfg.Server.EventLogDir)
	if err != nil {
		log.Printf("⚠️  Event log disabled: %v", err)
		events = nil
	}

	if err := os.MkdirAll(cfg.Server.FileDirectory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", cfg.Server.FileDirectory, err)
	}
	inv := file.NewInventory(cfg.Server.FileDirectory)
	if err := inv.Rescan(); err != nil {
		return nil, err
	}

	m := metrics.New()
	registry := session.NewRegistry()
	serverIP := utils.LanIP()

	s := &Server{
		cfg:      cfg,
		serverIP: serverIP,
		registry: registry,
		events:   events,
		metrics:  m,

		discovery: discovery.New(serverIP, m),
		chat:      chat.New(registry, events, m),
		audio:     relay.New("audio", m),
		video:     relay.New("video", m),
		screen:    screen.New(events, m),
		files:     file.New(inv, events, m),
	}
	s.dash = dashboard.New(events, s.status)
	return s, nil
}

// Start brings up every listener. A single bind failure aborts startup;
// half a server on the LAN is worse than none.
func (s *Server) Start() error {
	s.started = time.Now()

	if err := s.discovery.Start(s.cfg.Network.DiscoveryPort); err != nil {
		return err
	}
	if err := s.chat.Start(s.cfg.Network.ChatPort); err != nil {
		return err
	}
	if err := s.audio.Start(s.cfg.Network.AudioPort); err != nil {
		return err
	}
	if err := s.video.Start(s.cfg.Network.VideoPort); err != nil {
		return err
	}
	if err := s.screen.Start(s.cfg.Network.ScreenPort); err != nil {
		return err
	}
	if err := s.files.Start(s.cfg.Network.FilePort); err != nil {
		return err
	}
	if s.cfg.Dashboard.Enabled {
		if err := s.dash.Start(s.cfg.Dashboard.Port); err != nil {
			return err
		}
	}

	s.printBanner()
	return nil
}

// Run starts the server and blocks until SIGINT or SIGTERM.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("🛑 Shutting down server...")
	s.Close()
	log.Println("✅ Server stopped")
	return nil
}

// Close tears down every listener and the event log.
func (s *Server) Close() {
	if s.cfg.Dashboard.Enabled {
		if err := s.dash.Stop(); err != nil {
			log.Printf("⚠️  Dashboard shutdown: %v", err)
		}
	}
	s.files.Close()
	s.screen.Close()
	s.video.Close()
	s.audio.Close()
	s.chat.Close()
	s.discovery.Close()
	s.events.Close()
}

func (s *Server) status() dashboard.Status {
	presenter, _ := s.registry.Presenter()
	return dashboard.Status{
		Uptime:        time.Since(s.started).Round(time.Second).String(),
		ServerIP:      s.serverIP,
		ChatUsers:     s.registry.Snapshot(),
		Presenter:     presenter,
		AudioPeers:    s.audio.PeerCount(),
		VideoPeers:    s.video.PeerCount(),
		ScreenViewers: s.screen.ViewerCount(),
		FileClients:   s.files.ClientCount(),
		Files:         s.files.Inventory().List(),
	}
}

// printBanner shows where the server is reachable, with a scannable QR
// code of the chat endpoint for phones on the same network.
func (s *Server) printBanner() {
	log.Printf("🚀 %s server up on %s", constants.AppName, s.serverIP)
	log.Printf("   discovery :%d/udp  chat :%d/tcp", s.cfg.Network.DiscoveryPort, s.cfg.Network.ChatPort)
	log.Printf("   audio :%d/udp  video :%d/udp", s.cfg.Network.AudioPort, s.cfg.Network.VideoPort)
	log.Printf("   screen :%d/tcp  files :%d/tcp", s.cfg.Network.ScreenPort, s.cfg.Network.FilePort)
	if s.cfg.Dashboard.Enabled {
		log.Printf("   dashboard http://%s:%d", s.serverIP, s.cfg.Dashboard.Port)
	}

	endpoint := fmt.Sprintf("%s:%d", s.serverIP, s.cfg.Network.ChatPort)
	qr, err := qrcode.New(endpoint, qrcode.Medium)
	if err != nil {
		log.Printf("⚠️  Could not render QR code: %v", err)
		return
	}
	fmt.Printf("\n%sScan to join:%s %s%s%s\n%s",
		constants.ColorBold, constants.ColorReset,
		constants.ColorCyan, endpoint, constants.ColorReset,
		qr.ToSmallString(false))
}
