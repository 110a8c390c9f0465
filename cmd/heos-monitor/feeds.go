// ABOUTME: Consumers of the connection's change feeds
// ABOUTME: Logs every change in streaming mode and nudges the TUI otherwise
package main

import (
	"context"
	"sync"

	"github.com/harperreed/heos-go/pkg/heos"
	"github.com/harperreed/heos-go/pkg/protocol"
	"github.com/harperreed/heos-go/pkg/state"
)

// consume drains sub on its own goroutine until ctx ends or the feed closes
func consume[T any](ctx context.Context, wg *sync.WaitGroup, sub *state.Subscription[T], fn func(T)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer sub.Close()
		for v := range sub.All(ctx) {
			fn(v)
		}
	}()
}

// streamChanges logs every change until ctx ends
func streamChanges(ctx context.Context, conn *heos.Conn) {
	e := conn.Engine()
	var wg sync.WaitGroup

	consume(ctx, &wg, e.PlayStateChanges(), func(c state.PlayStateChange) {
		log.Infow("play state", "pid", c.Player, "state", c.State.String())
	})
	consume(ctx, &wg, e.VolumeChanges(), func(c state.VolumeChange) {
		if c.IsGroup {
			log.Infow("group volume", "gid", c.Group, "level", c.Level, "mute", c.Mute.String())
			return
		}
		log.Infow("volume", "pid", c.Player, "level", c.Level, "mute", c.Mute.String())
	})
	consume(ctx, &wg, e.PlayModeChanges(), func(c state.PlayModeChange) {
		log.Infow("play mode", "pid", c.Player, "repeat", c.Repeat.String(), "shuffle", c.Shuffle.String())
	})
	consume(ctx, &wg, e.NowPlayingChanges(), func(c state.NowPlayingChange) {
		if c.Media == nil {
			log.Infow("now playing", "pid", c.Player, "media", "none")
			return
		}
		log.Infow("now playing", "pid", c.Player, "song", c.Media.Song, "artist", c.Media.Artist, "station", c.Media.Station)
	})
	consume(ctx, &wg, e.QueueChanges(), func(c state.QueueChange) {
		log.Infow("queue", "pid", c.Player, "length", len(c.Queue))
	})
	consume(ctx, &wg, e.TopologyChanges(), func(c state.TopologyChange) {
		log.Infow("topology", "kind", c.Kind.String(), "pid", c.Player, "gid", c.Group, "members", c.Members)
	})
	consume(ctx, &wg, e.ProgressChanges(), func(c state.ProgressChange) {
		log.Debugw("progress", "pid", c.Player, "position", c.Position, "duration", c.Duration)
	})
	consume(ctx, &wg, e.PlaybackErrors(), func(c state.PlaybackError) {
		log.Warnw("playback error", "pid", c.Player, "error", c.Error)
	})

	if !conn.Stateful() {
		// without a model the raw events are all there is
		consume(ctx, &wg, conn.Events(), func(ev *protocol.Event) {
			log.Infow("event", "name", ev.Name, "attrs", ev.Attrs.Encode())
		})
	}

	wg.Wait()
}

// watchChanges calls refresh after any model change until ctx ends
func watchChanges(ctx context.Context, conn *heos.Conn, refresh func()) {
	e := conn.Engine()
	var wg sync.WaitGroup

	consume(ctx, &wg, e.PlayStateChanges(), func(state.PlayStateChange) { refresh() })
	consume(ctx, &wg, e.VolumeChanges(), func(state.VolumeChange) { refresh() })
	consume(ctx, &wg, e.PlayModeChanges(), func(state.PlayModeChange) { refresh() })
	consume(ctx, &wg, e.NowPlayingChanges(), func(state.NowPlayingChange) { refresh() })
	consume(ctx, &wg, e.TopologyChanges(), func(state.TopologyChange) { refresh() })
	consume(ctx, &wg, e.ProgressChanges(), func(state.ProgressChange) { refresh() })
	consume(ctx, &wg, e.PlaybackErrors(), func(state.PlaybackError) { refresh() })

	wg.Wait()
}
