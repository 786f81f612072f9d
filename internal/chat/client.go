package chat

import (
	"fmt"
	"net"
	"sync"
)

// client is one chat connection. Broadcasts from other handlers and
// replies from the owning handler write concurrently, so writes are
// serialized per socket.
type client struct {
	id   string
	conn net.Conn
	mu   sync.Mutex
}

// Send writes one newline-terminated protocol line.
func (c *client) Send(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.conn, "%s\n", line)
	return err
}
