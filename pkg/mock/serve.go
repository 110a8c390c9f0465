// ABOUTME: Network front ends for the simulated system
// ABOUTME: Serves the CLI protocol over TCP and WebSocket and advertises via mDNS
package mock

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/harperreed/heos-go/pkg/discovery"
	"github.com/harperreed/heos-go/pkg/transport"
)

// Serve accepts TCP connections on ln until ctx ends or ln fails
func (s *System) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	log.Infow("mock serving", "system", s.id, "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.serveStream(transport.NewTCPStream(conn))
	}
}

// WebSocketHandler serves the protocol with one line per text frame
func (s *System) WebSocketHandler() http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warnw("websocket upgrade failed", "error", err)
			return
		}
		s.serveStream(transport.NewWebSocketStream(conn))
	})
}

// Advertise announces the system over mDNS on port until ctx ends
func (s *System) Advertise(ctx context.Context, port int) (*discovery.Advertisement, error) {
	return discovery.Advertise(ctx, "heos-mock-"+s.id[:8], port)
}

// serveStream runs one network connection until either side closes it
func (s *System) serveStream(stream transport.Stream) {
	sess := s.addSession()
	log.Debugw("mock client connected", "session", sess.id)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			line, err := sess.out.pop()
			if err != nil {
				stream.Close()
				return
			}
			if err := stream.WriteLine(line); err != nil {
				log.Debugw("mock write failed", "session", sess.id, "error", err)
				stream.Close()
				return
			}
		}
	}()

	for {
		line, err := stream.ReadLine()
		if err != nil {
			break
		}
		s.handleLine(sess, line)
	}

	s.removeSession(sess)
	sess.out.close(transport.ErrClosed, true)
	<-done
	stream.Close()
	log.Debugw("mock client disconnected", "session", sess.id)
}
