package screen

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"lanhub/internal/constants"
	"lanhub/internal/metrics"
)

func startServer(t *testing.T) *Server {
	t.Helper()

	s := New(nil, metrics.NewWith(prometheus.NewRegistry()))
	if err := s.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func dial(t *testing.T, s *Server, role string) net.Conn {
	t.Helper()

	port := s.Addr().(*net.TCPAddr).Port
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	if _, err := conn.Write([]byte(role)); err != nil {
		t.Fatal(err)
	}
	return conn
}

func waitForViewers(t *testing.T, s *Server, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for s.ViewerCount() != want && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := s.ViewerCount(); got != want {
		t.Fatalf("ViewerCount = %d, want %d", got, want)
	}
}

func waitForPresenter(t *testing.T, s *Server) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !s.Presenting() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !s.Presenting() {
		t.Fatal("presenter slot never taken")
	}
}

func sendFrame(t *testing.T, conn net.Conn, payload []byte) {
	t.Helper()

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))
	if _, err := conn.Write(append(header, payload...)); err != nil {
		t.Fatal(err)
	}
}

func readFrame(t *testing.T, conn net.Conn) []byte {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		t.Fatalf("reading frame header: %v", err)
	}
	payload := make([]byte, binary.BigEndian.Uint32(header))
	if _, err := io.ReadFull(conn, payload); err != nil {
		t.Fatalf("reading frame payload: %v", err)
	}
	return payload
}

func TestFramesReachAllViewers(t *testing.T) {
	s := startServer(t)

	presenter := dial(t, s, constants.RolePresenter)
	v1 := dial(t, s, constants.RoleViewer)
	v2 := dial(t, s, constants.RoleViewer)
	waitForPresenter(t, s)
	waitForViewers(t, s, 2)

	payload := bytes.Repeat([]byte{0xAB}, 1024)
	sendFrame(t, presenter, payload)

	for name, viewer := range map[string]net.Conn{"v1": v1, "v2": v2} {
		if got := readFrame(t, viewer); !bytes.Equal(got, payload) {
			t.Errorf("viewer %s got %d bytes, want the original payload", name, len(got))
		}
	}
}

func TestSecondPresenterRejected(t *testing.T) {
	s := startServer(t)

	presenter := dial(t, s, constants.RolePresenter)
	viewer := dial(t, s, constants.RoleViewer)
	waitForPresenter(t, s)
	waitForViewers(t, s, 1)

	second := dial(t, s, constants.RolePresenter)
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, err := second.Read(buf)
	if err != nil {
		t.Fatalf("no rejection from server: %v", err)
	}
	if got := string(buf[:n]); got != "ERROR: Presenter busy" {
		t.Errorf("rejection = %q, want %q", got, "ERROR: Presenter busy")
	}

	// The active presenter's stream is unaffected by the rejected attempt.
	payload := []byte("frame-after-rejection")
	sendFrame(t, presenter, payload)
	if got := readFrame(t, viewer); !bytes.Equal(got, payload) {
		t.Errorf("viewer got %q, want %q", got, payload)
	}
}

func TestPresenterSlotFreedOnDisconnect(t *testing.T) {
	s := startServer(t)

	first := dial(t, s, constants.RolePresenter)
	waitForPresenter(t, s)
	first.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.Presenting() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.Presenting() {
		t.Fatal("presenter slot still held after disconnect")
	}

	second := dial(t, s, constants.RolePresenter)
	waitForPresenter(t, s)

	viewer := dial(t, s, constants.RoleViewer)
	waitForViewers(t, s, 1)
	sendFrame(t, second, []byte("fresh"))
	if got := readFrame(t, viewer); !bytes.Equal(got, []byte("fresh")) {
		t.Errorf("viewer got %q after presenter swap", got)
	}
}

func TestOversizedFrameDisconnectsPresenter(t *testing.T) {
	s := startServer(t)

	presenter := dial(t, s, constants.RolePresenter)
	waitForPresenter(t, s)

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, constants.MaxFrameSize+1)
	if _, err := presenter.Write(header); err != nil {
		t.Fatal(err)
	}

	presenter.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := presenter.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("expected server to close the connection, read err = %v", err)
	}
}

func TestZeroLengthFrameDisconnectsPresenter(t *testing.T) {
	s := startServer(t)

	presenter := dial(t, s, constants.RolePresenter)
	waitForPresenter(t, s)

	if _, err := presenter.Write([]byte{0, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}

	presenter.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := presenter.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("expected server to close the connection, read err = %v", err)
	}
}

func TestViewerDisconnectDoesNotAffectPresenter(t *testing.T) {
	s := startServer(t)

	presenter := dial(t, s, constants.RolePresenter)
	gone := dial(t, s, constants.RoleViewer)
	stays := dial(t, s, constants.RoleViewer)
	waitForPresenter(t, s)
	waitForViewers(t, s, 2)

	gone.Close()

	// The next frames must still reach the remaining viewer; the dead
	// one is dropped on its first failed send.
	for i := 0; i < 3; i++ {
		payload := []byte(fmt.Sprintf("frame-%d", i))
		sendFrame(t, presenter, payload)
		if got := readFrame(t, stays); !bytes.Equal(got, payload) {
			t.Fatalf("remaining viewer got %q, want %q", got, payload)
		}
	}
}

func TestUnknownRoleClosed(t *testing.T) {
	s := startServer(t)

	port := s.Addr().(*net.TCPAddr).Port
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("SPECTATOR")); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("expected connection close for unknown role, got %v", err)
	}
}
