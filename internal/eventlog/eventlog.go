// Package eventlog appends structured server events to a JSONL file and
// fans them out to in-process subscribers (the dashboard event feed).
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"lanhub/internal/constants"
)

// Event is one structured server event.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	User      string    `json:"user,omitempty"`
	ConnID    string    `json:"conn_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Event types recorded by the sub-servers.
const (
	TypeUserJoin         = "user_join"
	TypeUserLeave        = "user_leave"
	TypeStatusChange     = "status_change"
	TypePresenterGranted = "presenter_granted"
	TypePresenterDenied  = "presenter_denied"
	TypePresenterStopped = "presenter_stopped"
	TypeScreenPresenter  = "screen_presenter"
	TypeScreenViewer     = "screen_viewer"
	TypeFileUpload       = "file_upload"
	TypeFileDelete       = "file_delete"
)

// Logger writes events as JSON lines and notifies subscribers. A nil
// Logger is safe to use and drops everything, so callers never need to
// branch on whether event logging came up.
type Logger struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	subs map[chan Event]struct{}
}

// New opens the per-day event log under dir, or under the platform data
// directory when dir is empty.
func New(dir string) (*Logger, error) {
	if dir == "" {
		d, err := defaultLogDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get event log directory: %w", err)
		}
		dir = d
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create event log directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("events-%s.log", time.Now().Format("2006-01-02")))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	return &Logger{
		file: file,
		enc:  json.NewEncoder(file),
		subs: make(map[chan Event]struct{}),
	}, nil
}

func defaultLogDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Local", constants.AppName, "events"), nil
	case "darwin":
		return filepath.Join(home, "Library", "Logs", constants.AppName, "events"), nil
	default:
		dir := filepath.Join(home, ".local", "share", constants.AppName, "events")
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			dir = filepath.Join(xdgData, constants.AppName, "events")
		}
		return dir, nil
	}
}

// Log records one event and notifies subscribers. Slow subscribers miss
// events rather than block a relay handler.
func (l *Logger) Log(eventType, user, connID, detail string) {
	if l == nil {
		return
	}

	event := Event{
		Timestamp: time.Now(),
		Type:      eventType,
		User:      user,
		ConnID:    connID,
		Detail:    detail,
	}

	l.mu.Lock()
	if l.enc != nil {
		l.enc.Encode(event)
	}
	subs := make([]chan Event, 0, len(l.subs))
	for ch := range l.subs {
		subs = append(subs, ch)
	}
	l.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a channel receiving future events.
func (l *Logger) Subscribe() chan Event {
	ch := make(chan Event, 64)
	if l == nil {
		return ch
	}

	l.mu.Lock()
	l.subs[ch] = struct{}{}
	l.mu.Unlock()
	return ch
}

// Unsubscribe detaches and closes a subscriber channel.
func (l *Logger) Unsubscribe(ch chan Event) {
	if l == nil {
		return
	}

	l.mu.Lock()
	_, ok := l.subs[ch]
	delete(l.subs, ch)
	l.mu.Unlock()

	if ok {
		close(ch)
	}
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for ch := range l.subs {
		close(ch)
		delete(l.subs, ch)
	}
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.enc = nil
	return err
}
