// ABOUTME: TCP line stream for the HEOS CLI port
// ABOUTME: CRLF framed lines over a plain socket with a bufio scanner
package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/harperreed/heos-go/pkg/protocol"
)

var log = logging.Logger("heos/transport")

// maxLine bounds a single reply; browse payloads can be large
const maxLine = 4 << 20

// TCPDialer connects to the CLI port of a device
type TCPDialer struct {
	// Timeout bounds the connect; zero leaves it to ctx
	Timeout time.Duration
	// KeepAlive is passed to net.Dialer
	KeepAlive time.Duration
}

// Dial implements Dialer. Addresses without a port use 1255.
func (d TCPDialer) Dial(ctx context.Context, addr string) (Stream, error) {
	addr = WithDefaultPort(addr, protocol.DefaultPort)
	nd := net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}

	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	log.Debugw("tcp connected", "addr", addr)
	return NewTCPStream(conn), nil
}

type tcpStream struct {
	conn    net.Conn
	scanner *bufio.Scanner

	closeOnce sync.Once
	closeErr  error
}

// NewTCPStream wraps an established connection
func NewTCPStream(conn net.Conn) Stream {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	return &tcpStream{conn: conn, scanner: scanner}
}

func (s *tcpStream) ReadLine() (string, error) {
	if s.scanner.Scan() {
		return strings.TrimRight(s.scanner.Text(), "\r"), nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *tcpStream) WriteLine(line string) error {
	if !strings.HasSuffix(line, protocol.LineTerminator) {
		line += protocol.LineTerminator
	}
	_, err := io.WriteString(s.conn, line)
	return err
}

func (s *tcpStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
