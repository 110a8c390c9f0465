// ABOUTME: Tests for the connection supervisor against the simulated system
// ABOUTME: Covers lifecycle, correlation, teardown, stateful priming and background refresh
package heos

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/heos-go/internal/clock"
	"github.com/harperreed/heos-go/pkg/mock"
	"github.com/harperreed/heos-go/pkg/protocol"
	"github.com/harperreed/heos-go/pkg/state"
	"github.com/harperreed/heos-go/pkg/transport"
)

const waitFor = 2 * time.Second

func connect(t *testing.T, sys *mock.System, cfg Config) *Conn {
	t.Helper()
	cfg.Dialer = sys
	c, err := Connect(context.Background(), "mock", cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func stateful(t *testing.T, sys *mock.System, cfg Config) *Conn {
	t.Helper()
	c := connect(t, sys, cfg)
	require.NoError(t, c.InitStateful(context.Background()))
	return c
}

func next[T any](t *testing.T, sub *state.Subscription[T]) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	v, err := sub.Next(ctx)
	require.NoError(t, err)
	return v
}

func lastRegister(t *testing.T, sys *mock.System) string {
	t.Helper()
	cmds := sys.ReceivedPath("system/register_for_change_events")
	require.NotEmpty(t, cmds)
	v, _ := cmds[len(cmds)-1].Param("enable")
	return v
}

func TestConnectStartsStateless(t *testing.T) {
	sys := mock.New()
	c := connect(t, sys, Config{})

	assert.Equal(t, StateStateless, c.State())
	assert.False(t, c.Stateful())
	assert.Equal(t, "mock", c.Addr())
	assert.NotEmpty(t, c.Session())
	assert.Equal(t, "off", lastRegister(t, sys))
}

func TestSetVolumeStateless(t *testing.T) {
	sys := mock.New()
	c := connect(t, sys, Config{})
	ctx := context.Background()

	require.NoError(t, c.SetVolume(ctx, 1, 30))
	level, err := c.Volume(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Volume(30), level)

	// the model is only fed in stateful mode
	_, ok := c.Snapshot().Player(1)
	assert.False(t, ok)
}

func TestSetVolumeRejectedLocally(t *testing.T) {
	sys := mock.New()
	c := connect(t, sys, Config{})

	err := c.SetVolume(context.Background(), 1, 101)
	assert.ErrorIs(t, err, ErrInvalidVolume)
	assert.Empty(t, sys.ReceivedPath("player/set_volume"))
}

func TestDeviceErrorIsReturned(t *testing.T) {
	sys := mock.New()
	c := connect(t, sys, Config{})

	err := c.Play(context.Background(), 99)
	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, protocol.ErrorCodeInvalidID, devErr.Code)
	assert.ErrorIs(t, err, ErrDeviceRejected)
}

func TestSystemErrorCarriesSysErrNo(t *testing.T) {
	sys := mock.New()
	sys.Handle("system/heart_beat", func(protocol.Command) mock.Reply {
		return mock.Reply{Fail: true, Code: protocol.ErrorCodeSystemError, SysErrNo: -9}
	})
	c := connect(t, sys, Config{})

	err := c.HeartBeat(context.Background())
	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, protocol.ErrorCodeSystemError, devErr.Code)
	assert.Equal(t, int64(-9), devErr.SysErrNo)
}

func TestInterimReplyIsNotFinal(t *testing.T) {
	sys := mock.New()
	sys.Handle("player/get_volume", func(protocol.Command) mock.Reply {
		r := mock.OK(protocol.Param{Key: "level", Value: "7"})
		r.Processing = true
		return r
	})
	c := connect(t, sys, Config{})

	level, err := c.Volume(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, Volume(7), level)
	assert.Zero(t, c.Pending())
}

func TestOutOfOrderReplies(t *testing.T) {
	sys := mock.New()
	c := connect(t, sys, Config{})
	ctx := context.Background()
	require.NoError(t, c.SetVolume(ctx, 1, 11))
	require.NoError(t, c.SetVolume(ctx, 2, 22))

	sys.Hold("player/get_volume")
	var wg sync.WaitGroup
	got := make([]Volume, 3)
	errs := make([]error, 3)
	for _, id := range []PlayerID{1, 2} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[id], errs[id] = c.Volume(ctx, id)
		}()
	}
	require.Eventually(t, func() bool { return sys.Held() == 2 }, waitFor, time.Millisecond)
	sys.ReleaseReverse()
	wg.Wait()

	require.NoError(t, errs[1])
	require.NoError(t, errs[2])
	assert.Equal(t, Volume(11), got[1])
	assert.Equal(t, Volume(22), got[2])
}

func TestDuplicatePendingFailsFast(t *testing.T) {
	sys := mock.New()
	c := connect(t, sys, Config{})
	ctx := context.Background()

	sys.Hold("player/get_volume")
	done := make(chan error, 1)
	go func() {
		_, err := c.Volume(ctx, 1)
		done <- err
	}()
	require.Eventually(t, func() bool { return sys.Held() == 1 }, waitFor, time.Millisecond)

	_, err := c.Volume(ctx, 1)
	assert.ErrorIs(t, err, ErrAlreadyPending)

	// a different player is a different key
	sys.Release()
	_, err = c.Volume(ctx, 2)
	assert.NoError(t, err)
	assert.NoError(t, <-done)
}

func TestCommandTimeout(t *testing.T) {
	sys := mock.New()
	sys.Handle("system/heart_beat", func(protocol.Command) mock.Reply { return mock.Reply{NoReply: true} })
	c := connect(t, sys, Config{CommandTimeout: 20 * time.Millisecond})

	err := c.HeartBeat(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, c.Pending())
	assert.Equal(t, StateStateless, c.State())
}

func TestDropFailsPendingCommands(t *testing.T) {
	sys := mock.New()
	c := connect(t, sys, Config{})
	ctx := context.Background()

	sys.Hold()
	errs := make(chan error, 2)
	go func() { _, err := c.Volume(ctx, 1); errs <- err }()
	go func() { _, err := c.Mute(ctx, 2); errs <- err }()
	require.Eventually(t, func() bool { return sys.Held() == 2 }, waitFor, time.Millisecond)

	sys.Drop()
	for range 2 {
		assert.ErrorIs(t, <-errs, ErrConnectionLost)
	}

	<-c.Done()
	assert.Zero(t, c.Pending(), "no waiter may outlive the connection")
	assert.Equal(t, StateErrored, c.State())
	assert.ErrorIs(t, c.Err(), ErrConnectionLost)
	assert.ErrorIs(t, c.HeartBeat(ctx), ErrNotConnected)
}

func TestCloseFailsPendingCommands(t *testing.T) {
	sys := mock.New()
	c := connect(t, sys, Config{})

	sys.Hold()
	errs := make(chan error, 1)
	go func() { errs <- c.HeartBeat(context.Background()) }()
	require.Eventually(t, func() bool { return sys.Held() == 1 }, waitFor, time.Millisecond)

	require.NoError(t, c.Close())
	assert.ErrorIs(t, <-errs, ErrConnectionLost)
	assert.Zero(t, c.Pending())
	assert.Equal(t, StateDisconnected, c.State())
	assert.NoError(t, c.Err())
	assert.NoError(t, c.Close())
}

func TestHangupDisconnects(t *testing.T) {
	sys := mock.New()
	c := connect(t, sys, Config{})

	sys.Hangup()
	select {
	case <-c.Done():
	case <-time.After(waitFor):
		t.Fatal("connection did not end")
	}
	assert.Equal(t, StateDisconnected, c.State())
	assert.ErrorIs(t, c.Err(), ErrConnectionLost)
	assert.ErrorIs(t, c.Err(), io.EOF)
}

func TestStateTransitions(t *testing.T) {
	var mu sync.Mutex
	var seen []State
	cfg := Config{OnStateChange: func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	}}

	sys := mock.New()
	c := stateful(t, sys, cfg)
	require.NoError(t, c.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateConnecting, StateStateless, StateStateful, StateClosing, StateDisconnected}, seen)
}

func TestConnectAny(t *testing.T) {
	sys := mock.New()
	refused := errors.New("connection refused")
	dialer := transport.DialerFunc(func(ctx context.Context, addr string) (transport.Stream, error) {
		if addr != "good" {
			return nil, refused
		}
		return sys.Dial(ctx, addr)
	})
	ctx := context.Background()

	t.Run("first success wins", func(t *testing.T) {
		c, err := ConnectAny(ctx, []string{"bad-1", "good", "bad-2"}, waitFor, Config{Dialer: dialer})
		require.NoError(t, err)
		defer c.Close()
		assert.Equal(t, "good", c.Addr())
	})

	t.Run("all fail", func(t *testing.T) {
		_, err := ConnectAny(ctx, []string{"bad-1", "bad-2"}, waitFor, Config{Dialer: dialer})
		assert.ErrorIs(t, err, ErrNoDeviceFound)
		assert.ErrorIs(t, err, refused)
	})

	t.Run("no addresses", func(t *testing.T) {
		_, err := ConnectAny(ctx, nil, waitFor, Config{Dialer: dialer})
		assert.ErrorIs(t, err, ErrNoDeviceFound)
	})
}

func TestFailedSetupEndsErrored(t *testing.T) {
	refused := errors.New("connection refused")
	tests := []struct {
		name   string
		dialer func(sys *mock.System) transport.Dialer
	}{
		{"dial fails", func(*mock.System) transport.Dialer {
			return transport.DialerFunc(func(context.Context, string) (transport.Stream, error) { return nil, refused })
		}},
		{"reset rejected", func(sys *mock.System) transport.Dialer {
			sys.Handle("system/register_for_change_events", func(protocol.Command) mock.Reply {
				return mock.Fail(protocol.ErrorCodeCommandNotExecuted)
			})
			return sys
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := mock.New()
			var (
				mu     sync.Mutex
				states []State
			)
			_, err := Connect(context.Background(), "mock", Config{
				Dialer: tt.dialer(sys),
				OnStateChange: func(s State) {
					mu.Lock()
					defer mu.Unlock()
					states = append(states, s)
				},
			})
			require.Error(t, err)

			mu.Lock()
			defer mu.Unlock()
			require.NotEmpty(t, states)
			assert.Equal(t, StateConnecting, states[0])
			assert.Equal(t, StateErrored, states[len(states)-1])
			assert.Eventually(t, func() bool { return sys.Sessions() == 0 }, waitFor, time.Millisecond)
		})
	}
}

func TestInitStatefulLoadsModel(t *testing.T) {
	sys := mock.New(mock.WithAccount("me@example.com", "pw", true))
	ctx := context.Background()
	c := connect(t, sys, Config{})
	require.NoError(t, c.SetGroup(ctx, 1, 2))

	require.NoError(t, c.InitStateful(ctx))
	assert.Equal(t, StateStateful, c.State())
	assert.Equal(t, "on", lastRegister(t, sys))

	snap := c.Snapshot()
	require.Len(t, snap.Players, 3)
	kitchen, ok := snap.Player(1)
	require.True(t, ok)
	assert.Equal(t, "Kitchen", kitchen.Name)
	assert.Equal(t, Volume(20), kitchen.Volume)
	assert.Equal(t, protocol.PlayStateStop, kitchen.State)
	assert.Equal(t, protocol.MuteOff, kitchen.Mute)
	assert.False(t, kitchen.Placeholder)

	g, ok := snap.Group(1)
	require.True(t, ok)
	assert.Equal(t, PlayerID(1), g.Leader)
	assert.ElementsMatch(t, []PlayerID{1, 2}, g.Members)

	assert.Equal(t, state.Account{SignedIn: true, Username: "me@example.com"}, snap.Account)
	assert.Len(t, snap.Sources, 6)

	// entering again is a no-op
	assert.NoError(t, c.InitStateful(ctx))
}

func TestInitStatefulRefused(t *testing.T) {
	sys := mock.New()
	sys.Handle("system/register_for_change_events", func(cmd protocol.Command) mock.Reply {
		if v, _ := cmd.Param("enable"); v == "on" {
			return mock.Fail(protocol.ErrorCodeCommandNotExecuted)
		}
		return mock.OK()
	})
	c := connect(t, sys, Config{})

	err := c.InitStateful(context.Background())
	assert.ErrorIs(t, err, ErrInitStatefulFailed)
	assert.ErrorIs(t, err, ErrDeviceRejected)
	assert.Equal(t, StateStateless, c.State())
	assert.False(t, c.Stateful())
}

func TestConcurrentInitStateful(t *testing.T) {
	sys := mock.New()
	c := connect(t, sys, Config{})

	sys.Hold("system/register_for_change_events")
	errs := make(chan error, 2)
	for range 2 {
		go func() { errs <- c.InitStateful(context.Background()) }()
	}
	require.Eventually(t, func() bool { return sys.Held() == 1 }, waitFor, time.Millisecond)
	sys.Release()

	for range 2 {
		assert.NoError(t, <-errs)
	}
	assert.Equal(t, StateStateful, c.State())
	assert.True(t, c.Stateful())
	// the connect reset plus a single enable
	assert.Len(t, sys.ReceivedPath("system/register_for_change_events"), 2)

	require.NoError(t, c.SetVolume(context.Background(), 1, 61))
	p, _ := c.Snapshot().Player(1)
	assert.Equal(t, Volume(61), p.Volume, "replies are still folded into the model")
}

func TestPrimingFailureReverts(t *testing.T) {
	sys := mock.New()
	sys.Handle("player/get_play_mode", func(protocol.Command) mock.Reply {
		return mock.Fail(protocol.ErrorCodeInternalError)
	})
	c := connect(t, sys, Config{})

	err := c.InitStateful(context.Background())
	assert.ErrorIs(t, err, ErrInitStatefulFailed)
	assert.Equal(t, StateStateless, c.State())
	assert.False(t, c.Stateful())
	assert.Equal(t, "off", lastRegister(t, sys))
}

func TestDisableStateful(t *testing.T) {
	sys := mock.New()
	c := stateful(t, sys, Config{})
	ctx := context.Background()

	require.NoError(t, c.DisableStateful(ctx))
	assert.Equal(t, StateStateless, c.State())
	assert.Equal(t, "off", lastRegister(t, sys))
	assert.ErrorIs(t, c.DisableStateful(ctx), ErrNotStateful)

	// the model keeps its last values
	_, ok := c.Snapshot().Player(1)
	assert.True(t, ok)
}

func TestStatefulVolumeUpdatesModel(t *testing.T) {
	sys := mock.New()
	c := stateful(t, sys, Config{})
	volumes := c.Engine().VolumeChanges()
	defer volumes.Close()

	require.NoError(t, c.SetVolume(context.Background(), 2, 45))

	// the acknowledgement is applied before the caller is released
	p, _ := c.Snapshot().Player(2)
	assert.Equal(t, Volume(45), p.Volume)

	change := next(t, volumes)
	assert.Equal(t, PlayerID(2), change.Player)
	assert.Equal(t, Volume(45), change.Level)
}

func TestEventForUnknownPlayerCreatesPlaceholder(t *testing.T) {
	sys := mock.New()
	c := stateful(t, sys, Config{})
	states := c.Engine().PlayStateChanges()
	defer states.Close()

	sys.Emit("player_state_changed",
		protocol.Param{Key: "pid", Value: "99"},
		protocol.Param{Key: "state", Value: "play"})

	change := next(t, states)
	assert.Equal(t, PlayerID(99), change.Player)
	p, ok := c.Snapshot().Player(99)
	require.True(t, ok)
	assert.True(t, p.Placeholder)
	assert.Equal(t, protocol.PlayStatePlay, p.State)
}

func TestPlayersChangedLoadsNewPlayer(t *testing.T) {
	sys := mock.New()
	c := stateful(t, sys, Config{})

	sys.AddDevice(mock.Device{
		Info:   protocol.PlayerInfo{ID: 4, Name: "Garage", Model: "HEOS 1"},
		State:  protocol.PlayStateStop,
		Volume: 33,
	})

	require.Eventually(t, func() bool {
		p, ok := c.Snapshot().Player(4)
		return ok && p.Volume == 33 && p.State == protocol.PlayStateStop
	}, waitFor, 5*time.Millisecond)

	sys.RemoveDevice(4)
	require.Eventually(t, func() bool {
		_, ok := c.Snapshot().Player(4)
		return !ok
	}, waitFor, 5*time.Millisecond)
}

func TestNowPlayingChangedRequeries(t *testing.T) {
	sys := mock.New()
	c := stateful(t, sys, Config{})
	ctx := context.Background()
	media := c.Engine().NowPlayingChanges()
	defer media.Close()

	stations, err := c.Browse(ctx, protocol.SourceTuneIn, "", nil)
	require.NoError(t, err)
	require.NotEmpty(t, stations)
	require.NoError(t, c.PlayStream(ctx, 3, stations[0]))

	change := next(t, media)
	assert.Equal(t, PlayerID(3), change.Player)
	require.NotNil(t, change.Media)
	assert.Equal(t, stations[0].Name, change.Media.Station)

	require.Eventually(t, func() bool {
		p, _ := c.Snapshot().Player(3)
		return p.State == protocol.PlayStatePlay
	}, waitFor, 5*time.Millisecond)
}

func TestGroupsChangedRequeries(t *testing.T) {
	sys := mock.New()
	c := stateful(t, sys, Config{})
	ctx := context.Background()

	require.NoError(t, c.SetGroup(ctx, 2, 3))
	g, ok := c.Snapshot().Group(2)
	require.True(t, ok)
	assert.ElementsMatch(t, []PlayerID{2, 3}, g.Members)

	require.NoError(t, c.Ungroup(ctx, 2))
	require.Eventually(t, func() bool {
		_, ok := c.Snapshot().Group(2)
		return !ok
	}, waitFor, 5*time.Millisecond)
}

func TestSourcesChangedRequeries(t *testing.T) {
	sys := mock.New()
	c := stateful(t, sys, Config{})
	ctx := context.Background()
	topo := c.Engine().TopologyChanges()
	defer topo.Close()

	tunein, ok := c.Snapshot().Source(protocol.SourceTuneIn)
	require.True(t, ok)
	require.True(t, tunein.IsAvailable())

	hits, err := c.Search(ctx, protocol.SourceTuneIn, protocol.CriteriaStation, "jazz", nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	found, ok := c.Snapshot().Playable(state.KeyOf(hits[0]))
	require.True(t, ok, "search results are remembered")
	assert.Equal(t, "Jazz24", found.Name)

	sys.SetSourceAvailable(protocol.SourceTuneIn, false)
	change := next(t, topo)
	assert.Equal(t, state.SourcesChanged, change.Kind)
	tunein, _ = c.Snapshot().Source(protocol.SourceTuneIn)
	assert.False(t, tunein.IsAvailable())
	assert.Len(t, sys.ReceivedPath("browse/get_music_sources"), 2)
}

func TestEventsFeedIsPublishedWhenStateless(t *testing.T) {
	sys := mock.New()
	c := connect(t, sys, Config{})
	events := c.Events()
	defer events.Close()

	sys.EmitRaw(`{"heos":{"command":"event/sources_changed","message":""}}`)

	ev := next(t, events)
	assert.Equal(t, protocol.EventSourcesChanged, ev.Kind)
	assert.Empty(t, c.Snapshot().Players)
}

func TestMalformedLineIsDropped(t *testing.T) {
	sys := mock.New()
	c := connect(t, sys, Config{})

	sys.EmitRaw("this is not json")
	require.NoError(t, c.HeartBeat(context.Background()))
	assert.Equal(t, StateStateless, c.State())
}

func TestProgressInterpolation(t *testing.T) {
	fake := clock.NewFake(0)
	sys := mock.New()
	c := stateful(t, sys, Config{StateOptions: []state.Option{state.WithClock(fake)}})
	progress := c.Engine().ProgressChanges()
	defer progress.Close()

	require.NoError(t, c.Play(context.Background(), 1))
	sys.SetProgress(1, 10_000, 200_000)

	for {
		if ch := next(t, progress); ch.Position == 10*time.Second {
			break
		}
	}

	fake.Advance(5 * time.Second)
	pr, ok := c.Progress(1)
	require.True(t, ok)
	assert.True(t, pr.Interpolated)
	assert.Equal(t, 15*time.Second, pr.Position)
	assert.Equal(t, 200*time.Second, pr.Duration)
}

func TestHeartbeat(t *testing.T) {
	sys := mock.New()
	connect(t, sys, Config{Heartbeat: 10 * time.Millisecond})

	assert.Eventually(t, func() bool {
		return len(sys.ReceivedPath("system/heart_beat")) >= 2
	}, waitFor, 5*time.Millisecond)
}
