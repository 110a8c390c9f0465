// ABOUTME: Entry point for the HEOS monitor
// ABOUTME: Discovers a device, enters stateful mode and shows live state in a TUI or the log
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"

	golog "github.com/ipfs/go-log/v2"
	"github.com/spf13/pflag"

	"github.com/harperreed/heos-go/internal/config"
	"github.com/harperreed/heos-go/internal/logging"
	"github.com/harperreed/heos-go/internal/ui"
	"github.com/harperreed/heos-go/internal/version"
	"github.com/harperreed/heos-go/pkg/discovery"
	"github.com/harperreed/heos-go/pkg/heos"
	"github.com/harperreed/heos-go/pkg/mock"
	"github.com/harperreed/heos-go/pkg/transport"
)

var log = golog.Logger("heos/monitor")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "heos-monitor: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := config.Flags("heos-monitor")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if v, _ := fs.GetBool("version"); v {
		fmt.Println(version.String())
		return nil
	}

	loader, err := config.NewLoader(fs)
	if err != nil {
		return err
	}
	file, _ := fs.GetString("config")
	cfg, err := loader.Load(file)
	if err != nil {
		return err
	}

	logFile := cfg.LogFile
	if cfg.NoTUI {
		// streaming mode logs to the terminal
		logFile = ""
	}
	if err := logging.Setup(cfg.LogLevel, logFile); err != nil {
		return err
	}
	loader.Watch(nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hosts := cfg.Hosts
	if cfg.Mock {
		addr, err := startMock(ctx, cfg)
		if err != nil {
			return err
		}
		hosts = append([]string{addr}, hosts...)
	}

	sources := []discovery.Source{discovery.Static(hosts)}
	if cfg.Discover && !cfg.Mock {
		sources = append(sources, discovery.MDNS{Timeout: cfg.DiscoveryTimeout})
	}
	candidates := discovery.Collect(ctx, cfg.DiscoveryTimeout, sources...)
	log.Infow("candidates", "count", len(candidates))
	for _, c := range candidates {
		log.Debugw("candidate", "name", c.Name, "addr", c.Addr, "source", c.Source)
	}

	var monitor atomic.Pointer[ui.Monitor]
	conn, err := heos.ConnectAny(ctx, discovery.Addrs(candidates), cfg.DialTimeout, heos.Config{
		Dialer:         dialer(cfg),
		DialTimeout:    cfg.DialTimeout,
		CommandTimeout: cfg.CommandTimeout,
		Heartbeat:      cfg.Heartbeat,
		OnStateChange: func(s heos.State) {
			log.Infow("connection state", "state", s.String())
			if m := monitor.Load(); m != nil {
				m.SetConnState(s.String())
			}
		},
	})
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Infow("connected", "addr", conn.Addr(), "session", conn.Session())

	if cfg.Stateful {
		if err := conn.InitStateful(ctx); err != nil {
			return err
		}
	}

	// stop when the device goes away
	go func() {
		select {
		case <-conn.Done():
			if err := conn.Err(); err != nil {
				log.Warnw("connection ended", "error", err)
			}
			stop()
		case <-ctx.Done():
		}
	}()

	if cfg.NoTUI {
		streamChanges(ctx, conn)
		return nil
	}

	m := ui.NewMonitor(conn, conn.Addr())
	monitor.Store(m)
	m.SetConnState(conn.State().String())
	go watchChanges(ctx, conn, m.Refresh)
	return m.Run(ctx)
}

func dialer(cfg config.Config) transport.Dialer {
	if cfg.Transport == "websocket" {
		return transport.WebSocketDialer{}
	}
	return transport.TCPDialer{Timeout: cfg.DialTimeout}
}

// startMock serves a simulated system on localhost and advertises it
func startMock(ctx context.Context, cfg config.Config) (string, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.MockPort)))
	if err != nil {
		return "", fmt.Errorf("mock listen: %w", err)
	}
	sys := mock.New()
	port := ln.Addr().(*net.TCPAddr).Port

	if cfg.Transport == "websocket" {
		mux := http.NewServeMux()
		mux.Handle(transport.DefaultWebSocketPath, sys.WebSocketHandler())
		srv := &http.Server{Handler: mux}
		go func() {
			<-ctx.Done()
			srv.Close()
		}()
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warnw("mock websocket server stopped", "error", err)
			}
		}()
	} else {
		go func() {
			if err := sys.Serve(ctx, ln); err != nil {
				log.Warnw("mock server stopped", "error", err)
			}
		}()
	}

	if cfg.Discover {
		adv, err := sys.Advertise(ctx, port)
		if err != nil {
			log.Warnw("mock advertisement failed", "error", err)
		} else {
			go func() {
				<-ctx.Done()
				adv.Shutdown()
			}()
		}
	}

	log.Infow("mock system running", "addr", ln.Addr().String(), "transport", cfg.Transport)
	return ln.Addr().String(), nil
}
