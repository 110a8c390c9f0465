// ABOUTME: Background re-queries for events that only announce a change
// ABOUTME: Coalesces topology, now playing, queue and source refreshes off the reader goroutine
package heos

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/harperreed/heos-go/pkg/protocol"
)

type refreshKind uint8

const (
	refreshPlayers refreshKind = iota
	refreshGroups
	refreshNowPlaying
	refreshQueue
	refreshSources
)

func (k refreshKind) String() string {
	return [...]string{"players", "groups", "now_playing", "queue", "sources"}[k]
}

type refreshKey struct {
	kind   refreshKind
	player protocol.PlayerID
}

type refresher struct {
	conn    *Conn
	enabled atomic.Bool

	mu      sync.Mutex
	pending []refreshKey
	queued  map[refreshKey]bool
	wake    chan struct{}
}

func newRefresher(c *Conn) *refresher {
	return &refresher{
		conn:   c,
		queued: make(map[refreshKey]bool),
		wake:   make(chan struct{}, 1),
	}
}

func (r *refresher) enable(on bool) {
	r.enabled.Store(on)
	if !on {
		r.mu.Lock()
		r.pending = nil
		clear(r.queued)
		r.mu.Unlock()
	}
}

// schedule queues the re-query an event calls for. Repeats of a key that is
// still queued collapse into one.
func (r *refresher) schedule(ev *protocol.Event) {
	if !r.enabled.Load() {
		return
	}

	var key refreshKey
	switch ev.Kind {
	case protocol.EventPlayersChanged:
		key = refreshKey{kind: refreshPlayers}
	case protocol.EventGroupsChanged:
		key = refreshKey{kind: refreshGroups}
	case protocol.EventPlayerNowPlayingChanged:
		key = refreshKey{kind: refreshNowPlaying, player: ev.Player}
	case protocol.EventPlayerQueueChanged:
		key = refreshKey{kind: refreshQueue, player: ev.Player}
	case protocol.EventSourcesChanged:
		key = refreshKey{kind: refreshSources}
	default:
		return
	}

	r.mu.Lock()
	if !r.queued[key] {
		r.queued[key] = true
		r.pending = append(r.pending, key)
	}
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *refresher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.wake:
		}

		r.mu.Lock()
		batch := r.pending
		r.pending = nil
		clear(r.queued)
		r.mu.Unlock()

		for _, key := range batch {
			if ctx.Err() != nil {
				return
			}
			r.do(ctx, key)
		}
	}
}

func (r *refresher) do(ctx context.Context, key refreshKey) {
	c := r.conn
	var err error
	switch key.kind {
	case refreshPlayers:
		known := make(map[protocol.PlayerID]bool)
		for id, p := range c.engine.Snapshot().Players {
			known[id] = !p.Placeholder
		}
		if _, err = c.Send(ctx, protocol.GetPlayers()); err == nil {
			// players that appeared, or were only placeholders, need their state loaded
			for _, id := range c.engine.PlayerIDs() {
				if !known[id] {
					if perr := c.primePlayer(ctx, id); perr != nil {
						log.Warnw("loading new player failed", "pid", id, "error", perr)
					}
				}
			}
		}
	case refreshGroups:
		_, err = c.Send(ctx, protocol.GetGroups())
	case refreshNowPlaying:
		_, err = c.Send(ctx, protocol.GetNowPlayingMedia(key.player))
	case refreshQueue:
		_, err = c.Send(ctx, protocol.GetQueue(key.player, nil))
	case refreshSources:
		_, err = c.Send(ctx, protocol.GetMusicSources())
	}

	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyPending):
		log.Debugw("refresh already in flight", "kind", key.kind.String(), "pid", key.player)
	case ctx.Err() != nil:
	default:
		log.Warnw("refresh failed", "session", c.session, "kind", key.kind.String(), "pid", key.player, "error", err)
	}
}
