package eventlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLogWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.Log(TypeUserJoin, "alice", "conn-1", "")
	l.Log(TypeFileUpload, "", "conn-2", "report.txt")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "events-*.log"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one event log file, got %v (%v)", matches, err)
	}

	f, err := os.Open(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		events = append(events, e)
	}

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != TypeUserJoin || events[0].User != "alice" {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].Type != TypeFileUpload || events[1].Detail != "report.txt" {
		t.Errorf("second event = %+v", events[1])
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	l, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	ch := l.Subscribe()
	defer l.Unsubscribe(ch)

	l.Log(TypeUserLeave, "bob", "", "")

	select {
	case e := <-ch:
		if e.Type != TypeUserLeave || e.User != "bob" {
			t.Errorf("got event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	l, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	ch := l.Subscribe()
	l.Unsubscribe(ch)

	if _, open := <-ch; open {
		t.Error("channel still open after Unsubscribe")
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger

	l.Log(TypeUserJoin, "alice", "", "")
	ch := l.Subscribe()
	l.Unsubscribe(ch)
	if err := l.Close(); err != nil {
		t.Errorf("nil Close returned %v", err)
	}
}
