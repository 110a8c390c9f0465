// ABOUTME: Playback position interpolation between device progress reports
// ABOUTME: Extrapolates from the last sample on a monotonic clock while playing
package state

import (
	"time"

	"github.com/harperreed/heos-go/pkg/protocol"
)

// progressSample is the last position report for a player. It is replaced
// wholesale by each report and removed by play state or media changes.
type progressSample struct {
	position time.Duration
	duration time.Duration
	at       time.Duration // clock reading when the sample was taken
}

// Progress is a position estimate
type Progress struct {
	Position     time.Duration
	Duration     time.Duration
	Interpolated bool
}

// Progress estimates the playback position of a player. Without a sample
// or while not playing it returns the last device-reported position.
func (e *Engine) Progress(id protocol.PlayerID) (Progress, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, ok := e.players[id]
	if !ok {
		return Progress{}, false
	}
	return e.progressLocked(p), true
}

func (e *Engine) progressLocked(p *Player) Progress {
	sample, ok := e.samples[p.ID]
	if !ok || p.State != protocol.PlayStatePlay {
		return Progress{Position: p.Position, Duration: p.Duration}
	}
	return Progress{
		Position:     interpolate(sample, e.clock.Now()),
		Duration:     sample.duration,
		Interpolated: true,
	}
}

// interpolate clamps to [0, duration]; a zero duration is unknown and only
// clamps at zero
func interpolate(s progressSample, now time.Duration) time.Duration {
	elapsed := now - s.at
	if elapsed < 0 {
		elapsed = 0
	}
	pos := s.position + elapsed
	if pos < 0 {
		pos = 0
	}
	if s.duration > 0 && pos > s.duration {
		pos = s.duration
	}
	return pos
}

// recordProgressLocked replaces the sample with a fresh report
func (e *Engine) recordProgressLocked(p *Player, position, duration time.Duration) {
	delete(e.samples, p.ID)
	p.Position = position
	p.Duration = duration
	e.samples[p.ID] = progressSample{position: position, duration: duration, at: e.clock.Now()}
	e.progress.publish(ProgressChange{Player: p.ID, Position: position, Duration: duration})
}

// invalidateProgressLocked drops the sample; the static position stays at
// the last device report
func (e *Engine) invalidateProgressLocked(id protocol.PlayerID) {
	delete(e.samples, id)
}

// resetProgressLocked is used when the media changes
func (e *Engine) resetProgressLocked(p *Player) {
	delete(e.samples, p.ID)
	p.Position = 0
	p.Duration = 0
	e.progress.publish(ProgressChange{Player: p.ID})
}
