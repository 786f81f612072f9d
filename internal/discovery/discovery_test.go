package discovery

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"lanhub/internal/constants"
	"lanhub/internal/metrics"
)

func startResponder(t *testing.T) (*Responder, *net.UDPAddr) {
	t.Helper()

	r := New("192.0.2.10", metrics.NewWith(prometheus.NewRegistry()))
	if err := r.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { r.Close() })

	addr := r.Addr().(*net.UDPAddr)
	return r, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: addr.Port}
}

func TestRespondsToDiscoveryRequest(t *testing.T) {
	_, addr := startResponder(t)

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(constants.DiscoveryRequest)); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("no discovery reply: %v", err)
	}

	got := string(buf[:n])
	want := constants.DiscoveryReply + "192.0.2.10"
	if got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
}

func TestIgnoresOtherDatagrams(t *testing.T) {
	_, addr := startResponder(t)

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("WHO_ARE_YOU")); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	buf := make([]byte, 256)
	if n, err := conn.Read(buf); err == nil {
		t.Errorf("unexpected reply %q to a non-discovery datagram", buf[:n])
	} else if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
		t.Fatalf("read error: %v", err)
	}
}

func TestReplyCarriesConfiguredIP(t *testing.T) {
	r := New("10.1.2.3", nil)
	if !strings.HasSuffix(string(r.reply), ":10.1.2.3") {
		t.Errorf("reply = %q, want IAM_THE_SERVER:10.1.2.3", r.reply)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close before Start returned %v", err)
	}
}
