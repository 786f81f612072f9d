package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"lanhub/internal/eventlog"
	"lanhub/internal/session"
)

func testStatus() Status {
	return Status{
		Uptime:    "5s",
		ServerIP:  "192.168.1.10",
		ChatUsers: []session.Info{{Username: "alice", Status: session.StatusOnline}},
		Presenter: "alice",
	}
}

func TestHealthz(t *testing.T) {
	d := New(nil, testStatus)
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	d := New(nil, testStatus)
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if got.ServerIP != "192.168.1.10" || got.Presenter != "alice" {
		t.Errorf("status = %+v, want the snapshot from testStatus", got)
	}
	if len(got.ChatUsers) != 1 || got.ChatUsers[0].Username != "alice" {
		t.Errorf("chat users = %+v, want alice", got.ChatUsers)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	d := New(nil, testStatus)
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestWebsocketReceivesEvents(t *testing.T) {
	events, err := eventlog.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer events.Close()

	d := New(events, testStatus)
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	defer conn.Close()

	// The subscription is registered during the upgrade handler; give it
	// a moment before emitting.
	time.Sleep(50 * time.Millisecond)
	events.Log(eventlog.TypeUserJoin, "alice", "", "")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got eventlog.Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("reading event: %v", err)
	}
	if got.Type != eventlog.TypeUserJoin || got.User != "alice" {
		t.Errorf("event = %+v, want user_join for alice", got)
	}
}
