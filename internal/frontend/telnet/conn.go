package telnet

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"go.minekube.com/common/minecraft/component"

	"github.com/cory-johannsen/foundation/internal/chat"
)

// MaxLineLength bounds one line of input. Longer lines are discarded.
const MaxLineLength = 1024

// ErrLineTooLong is returned by ReadLine when a line exceeds MaxLineLength.
var ErrLineTooLong = errors.New("telnet: line too long")

// Telnet command bytes, RFC 854.
const (
	IAC  byte = 255
	DONT byte = 254
	DO   byte = 253
	WONT byte = 252
	WILL byte = 251
	SB   byte = 250
	SE   byte = 240

	OptEcho            byte = 1
	OptSuppressGoAhead byte = 3
	OptLinemode        byte = 34
)

// Conn is one Telnet client: line input with option negotiation skipped,
// chat components rendered as ANSI text on output.
//
// Writes are serialized; ReadLine must be called from one goroutine.
type Conn struct {
	raw    net.Conn
	reader *bufio.Reader
	mu     sync.Mutex

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewConn wraps raw. A zero timeout disables that deadline.
//
// Precondition: raw must be open.
func NewConn(raw net.Conn, readTimeout, writeTimeout time.Duration) *Conn {
	return &Conn{
		raw:          raw,
		reader:       bufio.NewReaderSize(raw, 4096),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// Negotiate tells the client the server will suppress go-ahead.
func (c *Conn) Negotiate() error {
	return c.send([]byte{IAC, WILL, OptSuppressGoAhead})
}

// ReadLine returns the next input line without its line ending. Telnet
// commands and control characters other than tab are dropped; a trailing tab
// is how clients ask for completion.
//
// Postcondition: An over-long line is consumed and reported as
// ErrLineTooLong; the next call reads the following line.
func (c *Conn) ReadLine() (string, error) {
	if c.readTimeout > 0 {
		_ = c.raw.SetReadDeadline(time.Now().Add(c.readTimeout))
	}

	var line bytes.Buffer
	overflow := false
	for {
		b, err := c.reader.ReadByte()
		if err != nil {
			return line.String(), err
		}
		switch {
		case b == IAC:
			if err := c.skipCommand(); err != nil {
				return line.String(), err
			}
		case b == '\r':
			if next, err := c.reader.Peek(1); err == nil && next[0] == '\n' {
				_, _ = c.reader.ReadByte()
			}
			return c.finish(line.String(), overflow)
		case b == '\n':
			return c.finish(line.String(), overflow)
		case b < 32 && b != '\t':
		case line.Len() >= MaxLineLength:
			overflow = true
		default:
			line.WriteByte(b)
		}
	}
}

func (c *Conn) finish(line string, overflow bool) (string, error) {
	if overflow {
		return "", ErrLineTooLong
	}
	return line, nil
}

// skipCommand consumes the rest of a command whose IAC byte was just read.
// Option verbs carry one option byte, SB runs to IAC SE, anything else
// (an escaped 0xFF included) is a single byte.
func (c *Conn) skipCommand() error {
	cmd, err := c.reader.ReadByte()
	if err != nil {
		return err
	}
	switch cmd {
	case WILL, WONT, DO, DONT:
		_, err = c.reader.ReadByte()
		return err
	case SB:
		for {
			b, err := c.reader.ReadByte()
			if err != nil {
				return err
			}
			if b != IAC {
				continue
			}
			if b, err = c.reader.ReadByte(); err != nil {
				return err
			}
			if b == SE {
				return nil
			}
		}
	}
	return nil
}

// WriteLine sends text followed by CRLF.
func (c *Conn) WriteLine(text string) error {
	return c.send([]byte(text + "\r\n"))
}

// WritePrompt sends prompt without a line ending.
func (c *Conn) WritePrompt(prompt string) error {
	return c.send([]byte(prompt))
}

func (c *Conn) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	_, err := c.raw.Write(data)
	return err
}

// WriteComponent renders msg as ANSI text and sends it, one line per
// newline in the rendered text.
//
// Postcondition: Every line of msg is written followed by \r\n.
func (c *Conn) WriteComponent(msg component.Component) error {
	return c.WriteLine(strings.ReplaceAll(chat.ANSI(msg), "\n", "\r\n"))
}

// Close closes the underlying TCP connection.
func (c *Conn) Close() error {
	return c.raw.Close()
}

// RemoteAddr returns the remote network address of the client.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}
