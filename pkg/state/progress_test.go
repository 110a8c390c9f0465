// ABOUTME: Tests for playback position interpolation
// ABOUTME: Uses a fake monotonic clock to check extrapolation, clamping and invalidation
package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/heos-go/internal/clock"
	"github.com/harperreed/heos-go/pkg/protocol"
)

func TestInterpolatesWhilePlaying(t *testing.T) {
	fake := clock.NewFake(time.Hour)
	e := seeded(t, WithClock(fake))

	e.ApplyEvent(event(t, "player_state_changed", "pid=1&state=play"))
	e.ApplyEvent(event(t, "player_now_playing_progress", "pid=1&cur_pos=10000&duration=200000"))

	fake.Advance(5 * time.Second)

	prog, ok := e.Progress(1)
	require.True(t, ok)
	assert.True(t, prog.Interpolated)
	assert.Equal(t, 15*time.Second, prog.Position)
	assert.Equal(t, 200*time.Second, prog.Duration)
}

func TestInvalidationFallsBackToReportedPosition(t *testing.T) {
	fake := clock.NewFake(0)
	e := seeded(t, WithClock(fake))

	e.ApplyEvent(event(t, "player_state_changed", "pid=1&state=play"))
	e.ApplyEvent(event(t, "player_now_playing_progress", "pid=1&cur_pos=10000&duration=200000"))
	fake.Advance(5 * time.Second)

	e.ApplyEvent(event(t, "player_state_changed", "pid=1&state=pause"))
	fake.Advance(30 * time.Second)

	prog, _ := e.Progress(1)
	assert.False(t, prog.Interpolated)
	assert.Equal(t, 10*time.Second, prog.Position, "no extrapolation from the stale sample")

	// a new report while paused is returned as is
	e.ApplyEvent(event(t, "player_now_playing_progress", "pid=1&cur_pos=12000&duration=200000"))
	fake.Advance(time.Minute)
	prog, _ = e.Progress(1)
	assert.Equal(t, 12*time.Second, prog.Position)
}

func TestPlayAfterInvalidationWaitsForNewSample(t *testing.T) {
	fake := clock.NewFake(0)
	e := seeded(t, WithClock(fake))

	e.ApplyEvent(event(t, "player_state_changed", "pid=1&state=play"))
	e.ApplyEvent(event(t, "player_now_playing_progress", "pid=1&cur_pos=10000&duration=200000"))
	e.ApplyEvent(event(t, "player_state_changed", "pid=1&state=play"))
	fake.Advance(5 * time.Second)

	prog, _ := e.Progress(1)
	assert.False(t, prog.Interpolated)
	assert.Equal(t, 10*time.Second, prog.Position)
}

func TestInterpolationClampsToDuration(t *testing.T) {
	fake := clock.NewFake(0)
	e := seeded(t, WithClock(fake))

	e.ApplyEvent(event(t, "player_state_changed", "pid=1&state=play"))
	e.ApplyEvent(event(t, "player_now_playing_progress", "pid=1&cur_pos=195000&duration=200000"))
	fake.Advance(time.Minute)

	prog, _ := e.Progress(1)
	assert.Equal(t, 200*time.Second, prog.Position)
}

func TestUnknownDurationOnlyClampsAtZero(t *testing.T) {
	s := progressSample{position: 3 * time.Second, at: 10 * time.Second}
	assert.Equal(t, 8*time.Second, interpolate(s, 15*time.Second))
	assert.Equal(t, 3*time.Second, interpolate(s, 5*time.Second), "a reading before the sample is not negative elapsed")
}

func TestNowPlayingChangeResetsPosition(t *testing.T) {
	fake := clock.NewFake(0)
	e := seeded(t, WithClock(fake))

	e.ApplyEvent(event(t, "player_state_changed", "pid=1&state=play"))
	e.ApplyEvent(event(t, "player_now_playing_progress", "pid=1&cur_pos=90000&duration=200000"))
	e.ApplyEvent(event(t, "player_now_playing_changed", "pid=1"))
	fake.Advance(3 * time.Second)

	prog, _ := e.Progress(1)
	assert.Equal(t, time.Duration(0), prog.Position)
	assert.Equal(t, time.Duration(0), prog.Duration)
}

func TestProgressForUnknownPlayer(t *testing.T) {
	e := New()
	_, ok := e.Progress(protocol.PlayerID(5))
	assert.False(t, ok)
}
