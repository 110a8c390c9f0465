// ABOUTME: Tests for TCP and WebSocket line streams
// ABOUTME: Exercises framing, default ports and clean close against local servers
package transport

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDefaultPort(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"192.168.1.10", "192.168.1.10:1255"},
		{"192.168.1.10:2000", "192.168.1.10:2000"},
		{"speaker.local", "speaker.local:1255"},
		{"[fe80::1]", "[fe80::1]:1255"},
		{"::1", "[::1]:1255"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WithDefaultPort(tt.in, 1255), tt.in)
	}
}

func TestTCPStreamFraming(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		line, _ := r.ReadString('\n')
		received <- line
		_, _ = io.WriteString(conn, `{"heos":{"command":"system/heart_beat","result":"success","message":""}}`+"\r\n")
		_, _ = io.WriteString(conn, "second\r\n")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := TCPDialer{}.Dial(ctx, ln.Addr().String())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.WriteLine("heos://system/heart_beat"))
	assert.Equal(t, "heos://system/heart_beat\r\n", <-received)

	line, err := s.ReadLine()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, `{"heos"`))
	assert.False(t, strings.HasSuffix(line, "\r"))

	line, err = s.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "second", line)

	_, err = s.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

func TestTCPDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = TCPDialer{Timeout: 200 * time.Millisecond}.Dial(context.Background(), addr)
	assert.Error(t, err)
}

func TestTCPCloseIsIdempotent(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	s := NewTCPStream(a)
	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestWebSocketStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultWebSocketPath, r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0x00})
			_ = conn.WriteMessage(kind, append([]byte("echo "), data...))
		}
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := WebSocketDialer{}.Dial(ctx, host)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.WriteLine("heos://player/get_players\r\n"))
	line, err := s.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "echo heos://player/get_players", line, "terminator is not sent inside the frame")
}

func TestWebSocketURL(t *testing.T) {
	u, err := WebSocketDialer{}.url("10.0.0.2:8080")
	require.NoError(t, err)
	assert.Equal(t, "ws://10.0.0.2:8080/heos", u)

	u, err = WebSocketDialer{Path: "/bridge"}.url("10.0.0.2:8080")
	require.NoError(t, err)
	assert.Equal(t, "ws://10.0.0.2:8080/bridge", u)

	u, err = WebSocketDialer{}.url("wss://bridge.example/heos")
	require.NoError(t, err)
	assert.Equal(t, "wss://bridge.example/heos", u)
}
