// ABOUTME: Connection supervisor for one HEOS device
// ABOUTME: Owns the stream, the single write path, the reader goroutine and the mode lifecycle
package heos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/errgroup"

	"github.com/harperreed/heos-go/internal/correlate"
	"github.com/harperreed/heos-go/pkg/protocol"
	"github.com/harperreed/heos-go/pkg/state"
	"github.com/harperreed/heos-go/pkg/transport"
)

var log = logging.Logger("heos/conn")

// State is the lifecycle state of a connection
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateStateless
	StateStateful
	StateClosing
	StateErrored
)

var stateNames = [...]string{"disconnected", "connecting", "stateless", "stateful", "closing", "errored"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Conn is a connection to one device. All methods are safe for concurrent
// use.
type Conn struct {
	cfg     Config
	addr    string
	session string

	stream   transport.Stream
	writeMu  sync.Mutex
	seq      atomic.Uint64
	registry *correlate.Registry

	engine   *state.Engine
	events   *state.Feed[*protocol.Event]
	stateful atomic.Bool
	// modeMu serializes InitStateful and DisableStateful
	modeMu sync.Mutex

	mu    sync.Mutex
	state State
	err   error

	refresh *refresher

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup

	done         chan struct{}
	teardownOnce sync.Once
	closeOnce    sync.Once
}

// Connect dials addr and returns a stateless connection. Change events are
// explicitly disabled so the connection starts stateless whatever the
// device remembered.
func Connect(ctx context.Context, addr string, cfg Config) (*Conn, error) {
	cfg = cfg.withDefaults()
	session := uuid.New().String()
	log.Debugw("connecting", "addr", addr, "session", session)
	if cfg.OnStateChange != nil {
		cfg.OnStateChange(StateConnecting)
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	stream, err := cfg.Dialer.Dial(dialCtx, addr)
	cancel()
	if err != nil {
		if cfg.OnStateChange != nil {
			cfg.OnStateChange(StateErrored)
		}
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}

	c := newConn(cfg, addr, session, stream)
	c.start()

	if _, err := c.Send(ctx, protocol.RegisterForChangeEvents(false)); err != nil {
		log.Warnw("connection setup failed", "addr", addr, "session", session, "error", err)
		c.teardown(StateErrored, err)
		c.bg.Wait()
		return nil, fmt.Errorf("connect %s: reset change events: %w", addr, err)
	}

	c.setState(StateStateless)
	log.Infow("connected", "addr", addr, "session", session)
	return c, nil
}

// ConnectAny races a dial to every address and keeps the first connection
// that completes; the others are closed. timeout bounds the whole race.
func ConnectAny(ctx context.Context, addrs []string, timeout time.Duration, cfg Config) (*Conn, error) {
	if len(addrs) == 0 {
		return nil, ErrNoDeviceFound
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	raceCtx, stop := context.WithCancel(ctx)
	defer stop()

	var (
		mu      sync.Mutex
		winner  *Conn
		lastErr error
	)
	var g errgroup.Group
	for _, addr := range addrs {
		g.Go(func() error {
			c, err := Connect(raceCtx, addr, cfg)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if winner == nil {
					lastErr = err
				}
				return nil
			}
			if winner != nil {
				c.Close()
				return nil
			}
			winner = c
			stop()
			return nil
		})
	}
	_ = g.Wait()

	if winner == nil {
		if lastErr == nil {
			return nil, ErrNoDeviceFound
		}
		return nil, fmt.Errorf("%w: %w", ErrNoDeviceFound, lastErr)
	}
	return winner, nil
}

func newConn(cfg Config, addr, session string, stream transport.Stream) *Conn {
	opts := append([]state.Option{state.WithFeedBuffer(cfg.FeedBuffer)}, cfg.StateOptions...)
	bgCtx, bgCancel := context.WithCancel(context.Background())

	c := &Conn{
		cfg:      cfg,
		addr:     addr,
		session:  session,
		stream:   stream,
		registry: correlate.New(),
		engine:   state.New(opts...),
		events:   state.NewFeed[*protocol.Event](cfg.FeedBuffer),
		state:    StateConnecting,
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
		done:     make(chan struct{}),
	}
	c.refresh = newRefresher(c)
	return c
}

func (c *Conn) start() {
	go c.readLoop()

	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		c.refresh.run(c.bgCtx)
	}()

	if c.cfg.Heartbeat > 0 {
		c.bg.Add(1)
		go func() {
			defer c.bg.Done()
			c.heartbeat(c.bgCtx)
		}()
	}
}

// readLoop is the only reader of the stream
func (c *Conn) readLoop() {
	var err error
	for {
		var line string
		line, err = c.stream.ReadLine()
		if err != nil {
			break
		}
		c.route(line)
	}

	switch {
	case c.State() == StateClosing:
		c.teardown(StateDisconnected, nil)
	case errors.Is(err, io.EOF):
		log.Infow("device closed the connection", "addr", c.addr, "session", c.session)
		c.teardown(StateDisconnected, fmt.Errorf("%w: %w", ErrConnectionLost, err))
	default:
		log.Warnw("connection failed", "addr", c.addr, "session", c.session, "error", err)
		c.teardown(StateErrored, fmt.Errorf("%w: %w", ErrConnectionLost, err))
	}
}

// teardown fails pending commands, ends feeds and records the final state
func (c *Conn) teardown(final State, cause error) {
	c.teardownOnce.Do(func() {
		c.bgCancel()
		c.stateful.Store(false)
		c.registry.FailAll(ErrConnectionLost)
		c.stream.Close()
		c.events.Close()
		c.engine.Close()

		c.mu.Lock()
		c.err = cause
		c.mu.Unlock()
		c.setState(final)
		close(c.done)
	})
}

func (c *Conn) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Send(ctx, protocol.HeartBeat()); err != nil && ctx.Err() == nil {
				log.Warnw("heartbeat failed", "session", c.session, "error", err)
			}
		}
	}
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	prev := c.state
	if prev == StateErrored || (prev == StateDisconnected && s != StateDisconnected) {
		// terminal
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	if prev == s {
		return
	}
	log.Debugw("state change", "session", c.session, "from", prev.String(), "to", s.String())
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(s)
	}
}

// State returns the current lifecycle state
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the connection is gone
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err explains why the connection ended. It is nil while connected and
// after a local Close.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Addr returns the address that was dialed
func (c *Conn) Addr() string { return c.addr }

// Session identifies the connection in logs
func (c *Conn) Session() string { return c.session }

// Pending returns the number of commands waiting for a reply
func (c *Conn) Pending() int { return c.registry.Len() }

// Close shuts the connection down. Pending commands fail with
// ErrConnectionLost.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.setState(StateClosing)
		log.Debugw("closing", "session", c.session)
		c.bgCancel()
		c.stream.Close()
		<-c.done
		c.bg.Wait()
	})
	return nil
}

func (c *Conn) open() bool {
	switch c.State() {
	case StateConnecting, StateStateless, StateStateful:
		return true
	}
	return false
}

// Send issues cmd and waits for its reply. A failed reply is returned with
// its *DeviceError. Commands without a deadline get Config.CommandTimeout.
func (c *Conn) Send(ctx context.Context, cmd protocol.Command) (*protocol.Response, error) {
	if !c.open() {
		return nil, ErrNotConnected
	}
	if _, ok := ctx.Deadline(); !ok && c.cfg.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CommandTimeout)
		defer cancel()
	}

	cmd = cmd.WithSequence(c.seq.Add(1))
	p, err := c.registry.Register(cmd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd.Path(), err)
	}

	if err := c.write(cmd); err != nil {
		c.registry.Abandon(p)
		log.Warnw("write failed", "session", c.session, "command", cmd.Path(), "error", err)
		c.teardown(StateErrored, fmt.Errorf("%w: %w", ErrConnectionLost, err))
		return nil, fmt.Errorf("%s: %w", cmd.Path(), ErrConnectionLost)
	}

	resp, err := c.registry.Wait(ctx, p)
	var devErr *DeviceError
	if err != nil && !errors.As(err, &devErr) {
		return resp, fmt.Errorf("%s: %w", cmd.Path(), err)
	}
	return resp, err
}

// write is the single write path onto the stream
func (c *Conn) write(cmd protocol.Command) error {
	line := protocol.Encode(cmd)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	log.Debugw("send", "session", c.session, "command", cmd.Path())
	return c.stream.WriteLine(line)
}

// InitStateful turns on change events and loads players, their state and
// groups. If loading fails the connection goes back to stateless.
func (c *Conn) InitStateful(ctx context.Context) error {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()

	switch c.State() {
	case StateStateful:
		return nil
	case StateStateless:
	default:
		return ErrNotConnected
	}

	// set before the request so events right after the ack are applied
	c.stateful.Store(true)
	if _, err := c.Send(ctx, protocol.RegisterForChangeEvents(true)); err != nil {
		c.stateful.Store(false)
		return fmt.Errorf("%w: %w", ErrInitStatefulFailed, err)
	}
	c.setState(StateStateful)

	if err := c.prime(ctx); err != nil {
		c.refresh.enable(false)
		log.Warnw("initial state load failed, reverting", "session", c.session, "error", err)
		c.stateful.Store(false)

		revertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.CommandTimeout)
		defer cancel()
		if _, uerr := c.Send(revertCtx, protocol.RegisterForChangeEvents(false)); uerr != nil {
			return fmt.Errorf("%w: %w (after %w)", ErrUnsubscribeFailed, uerr, err)
		}
		c.setState(StateStateless)
		return fmt.Errorf("%w: %w", ErrInitStatefulFailed, err)
	}

	c.refresh.enable(true)
	log.Infow("stateful", "session", c.session, "players", len(c.engine.PlayerIDs()))
	return nil
}

// DisableStateful turns change events off. The model keeps its last values.
func (c *Conn) DisableStateful(ctx context.Context) error {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()

	if c.State() != StateStateful {
		return ErrNotStateful
	}
	if _, err := c.Send(ctx, protocol.RegisterForChangeEvents(false)); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}
	c.stateful.Store(false)
	c.refresh.enable(false)
	c.setState(StateStateless)
	return nil
}

// prime loads the full model. Replies are folded in by the router.
func (c *Conn) prime(ctx context.Context) error {
	resp, err := c.Send(ctx, protocol.GetPlayers())
	if err != nil {
		return err
	}
	players, err := protocol.DecodePlayers(resp)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.PrimeWorkers)
	for _, p := range players {
		g.Go(func() error { return c.primePlayer(gctx, p.ID) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, cmd := range []protocol.Command{protocol.GetGroups(), protocol.GetMusicSources()} {
		if err := c.primeQuery(ctx, cmd); err != nil {
			return err
		}
	}
	return c.primeQuery(ctx, protocol.CheckAccount())
}

// primePlayer loads everything the listing does not carry for one player
func (c *Conn) primePlayer(ctx context.Context, id protocol.PlayerID) error {
	for _, cmd := range []protocol.Command{
		protocol.GetPlayState(id),
		protocol.GetVolume(id),
		protocol.GetMute(id),
		protocol.GetPlayMode(id),
		protocol.GetNowPlayingMedia(id),
	} {
		if err := c.primeQuery(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

// primeQuery sends a state query. An identical query already in flight
// folds the same data in, so that collision is not a failure.
func (c *Conn) primeQuery(ctx context.Context, cmd protocol.Command) error {
	_, err := c.Send(ctx, cmd)
	if errors.Is(err, ErrAlreadyPending) {
		log.Debugw("query already in flight", "command", cmd.Path())
		return nil
	}
	return err
}

// Stateful reports whether change events are being applied
func (c *Conn) Stateful() bool { return c.stateful.Load() }

// Engine exposes the state engine. It is only kept current in stateful
// mode.
func (c *Conn) Engine() *state.Engine { return c.engine }

// Snapshot returns a copy of the tracked state
func (c *Conn) Snapshot() state.Snapshot { return c.engine.Snapshot() }

// Progress returns the interpolated playback position of a player
func (c *Conn) Progress(id protocol.PlayerID) (state.Progress, bool) {
	return c.engine.Progress(id)
}

// Events subscribes to every decoded event, in arrival order
func (c *Conn) Events() *state.Subscription[*protocol.Event] { return c.events.Subscribe() }
