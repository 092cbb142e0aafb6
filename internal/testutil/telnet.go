package testutil

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/cory-johannsen/foundation/internal/chat"
)

// TelnetClient drives a Telnet session from a test. Server output is matched
// with ANSI colors removed, so assertions name plain text.
type TelnetClient struct {
	conn   net.Conn
	reader *bufio.Reader
	t      *testing.T
}

// NewTelnetClient dials addr and closes the connection when the test ends.
//
// Precondition: addr must be a "host:port" with a listening server.
// Postcondition: Returns a connected TelnetClient or fails the test.
func NewTelnetClient(t *testing.T, addr string) *TelnetClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v", addr, err)
	}
	t.Cleanup(func() { conn.Close() })
	return &TelnetClient{conn: conn, reader: bufio.NewReader(conn), t: t}
}

// ReadUntil reads until the colorless output contains substr.
//
// Precondition: substr must be non-empty.
// Postcondition: Returns everything read so far with colors stripped, or
// fails the test on timeout.
func (c *TelnetClient) ReadUntil(substr string, timeout time.Duration) string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))

	var buf strings.Builder
	tmp := make([]byte, 1024)
	for {
		n, err := c.reader.Read(tmp)
		if n > 0 {
			buf.Write(tmp[:n])
			if plain := chat.StripANSI(buf.String()); strings.Contains(plain, substr) {
				return plain
			}
		}
		if err != nil {
			c.t.Fatalf("reading until %q: got %q, error: %v", substr, chat.StripANSI(buf.String()), err)
		}
	}
}

// Login answers the name prompt and waits for the first command prompt.
func (c *TelnetClient) Login(name string, timeout time.Duration) {
	c.t.Helper()
	c.ReadUntil("Name: ", timeout)
	c.Send(name)
	c.ReadUntil("> ", timeout)
}

// Send writes text followed by CRLF.
func (c *TelnetClient) Send(text string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := fmt.Fprintf(c.conn, "%s\r\n", text); err != nil {
		c.t.Fatalf("sending %q: %v", text, err)
	}
}

// Close closes the connection early.
func (c *TelnetClient) Close() {
	c.conn.Close()
}
