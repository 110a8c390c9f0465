// ABOUTME: WebSocket line stream for bridged HEOS devices
// ABOUTME: One protocol line per text frame using gorilla/websocket
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/harperreed/heos-go/pkg/protocol"
)

// DefaultWebSocketPath is used when the address carries no path
const DefaultWebSocketPath = "/heos"

// WebSocketDialer connects to a bridge that carries CLI lines in text frames
type WebSocketDialer struct {
	Path   string
	Header http.Header
	Dialer *websocket.Dialer
}

// Dial implements Dialer. addr may be host:port or a full ws:// URL.
func (d WebSocketDialer) Dial(ctx context.Context, addr string) (Stream, error) {
	target, err := d.url(addr)
	if err != nil {
		return nil, err
	}

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, _, err := dialer.DialContext(ctx, target, d.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	log.Debugw("websocket connected", "url", target)
	return NewWebSocketStream(conn), nil
}

func (d WebSocketDialer) url(addr string) (string, error) {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		if _, err := url.Parse(addr); err != nil {
			return "", fmt.Errorf("bad websocket url %q: %w", addr, err)
		}
		return addr, nil
	}
	path := d.Path
	if path == "" {
		path = DefaultWebSocketPath
	}
	u := url.URL{Scheme: "ws", Host: addr, Path: path}
	return u.String(), nil
}

type wsStream struct {
	conn *websocket.Conn
	// gorilla allows one concurrent writer; Close also writes
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketStream wraps an established connection
func NewWebSocketStream(conn *websocket.Conn) Stream {
	return &wsStream{conn: conn}
}

func (s *wsStream) ReadLine() (string, error) {
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure {
				return "", io.EOF
			}
			return "", err
		}
		if kind != websocket.TextMessage {
			log.Debugw("ignoring non-text frame", "type", kind)
			continue
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
}

func (s *wsStream) WriteLine(line string) error {
	line = strings.TrimSuffix(line, protocol.LineTerminator)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (s *wsStream) Close() error {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		s.writeMu.Lock()
		_ = s.conn.WriteMessage(websocket.CloseMessage, msg)
		s.writeMu.Unlock()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
