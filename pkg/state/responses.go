// ABOUTME: Folds successful query and acknowledgement replies into the model
// ABOUTME: Only device-reported values are applied, never the caller's request
package state

import (
	"slices"

	"github.com/harperreed/heos-go/pkg/protocol"
)

// ApplyResponse folds an authoritative reply into the model. Failed,
// interim and unrecognized replies are ignored. Payload decode failures are
// logged; the model keeps its previous value.
func (e *Engine) ApplyResponse(resp *protocol.Response) {
	if !resp.Success() {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch resp.Path() {
	case "player/get_players":
		players, err := protocol.DecodePlayers(resp)
		if err != nil {
			log.Warnw("bad player listing", "error", err)
			return
		}
		e.replacePlayersLocked(players)

	case "player/get_player_info":
		info, err := protocol.DecodePlayer(resp)
		if err != nil {
			log.Warnw("bad player info", "error", err)
			return
		}
		e.upsertPlayerLocked(info)

	case "player/get_play_state", "player/set_play_state":
		if p, ok := e.respPlayerLocked(resp); ok {
			if state := protocol.ParsePlayState(resp.Attrs.Value("state")); state != protocol.PlayStateUnknown {
				e.setPlayStateLocked(p, state)
			}
		}

	case "player/get_volume", "player/set_volume":
		if p, ok := e.respPlayerLocked(resp); ok {
			if level, err := protocol.ParseVolume(resp.Attrs.Value("level")); err == nil {
				p.Volume = level
				e.volume.publish(VolumeChange{Player: p.ID, Level: p.Volume, Mute: p.Mute})
			}
		}

	case "player/get_mute", "player/set_mute":
		if p, ok := e.respPlayerLocked(resp); ok {
			if mute := protocol.ParseMuteState(resp.Attrs.Value("state")); mute != protocol.MuteUnknown {
				p.Mute = mute
				e.volume.publish(VolumeChange{Player: p.ID, Level: p.Volume, Mute: p.Mute})
			}
		}

	case "player/get_play_mode", "player/set_play_mode":
		if p, ok := e.respPlayerLocked(resp); ok {
			changed := false
			if r := protocol.ParseRepeatMode(resp.Attrs.Value("repeat")); r != protocol.RepeatUnknown {
				p.Repeat, changed = r, true
			}
			if s := protocol.ParseShuffleMode(resp.Attrs.Value("shuffle")); s != protocol.ShuffleUnknown {
				p.Shuffle, changed = s, true
			}
			if changed {
				e.playMode.publish(PlayModeChange{Player: p.ID, Repeat: p.Repeat, Shuffle: p.Shuffle})
			}
		}

	case "player/get_now_playing_media":
		if p, ok := e.respPlayerLocked(resp); ok {
			media, err := protocol.DecodeNowPlaying(resp)
			if err != nil {
				log.Warnw("bad now playing media", "pid", p.ID, "error", err)
				return
			}
			e.setNowPlayingLocked(p, media)
		}

	case "player/get_queue":
		// a windowed reply is only part of the queue
		if resp.Attrs.Has("range") {
			return
		}
		if p, ok := e.respPlayerLocked(resp); ok {
			queue, err := protocol.DecodeQueue(resp)
			if err != nil {
				log.Warnw("bad queue", "pid", p.ID, "error", err)
				return
			}
			p.Queue = queue
			e.queue.publish(QueueChange{Player: p.ID, Queue: slices.Clone(queue)})
		}

	case "player/clear_queue":
		if p, ok := e.respPlayerLocked(resp); ok {
			p.Queue = nil
			e.queue.publish(QueueChange{Player: p.ID})
		}

	case "group/get_groups":
		groups, err := protocol.DecodeGroups(resp)
		if err != nil {
			log.Warnw("bad group listing", "error", err)
			return
		}
		e.replaceGroupsLocked(groups)

	case "group/get_group_info":
		info, err := protocol.DecodeGroup(resp)
		if err != nil {
			log.Warnw("bad group info", "error", err)
			return
		}
		e.setGroupLocked(info.ID, info.Name, info.Leader(), info.MemberIDs())

	case "group/set_group":
		e.applySetGroupLocked(resp)

	case "group/get_volume", "group/set_volume":
		if g, ok := e.respGroupLocked(resp); ok {
			if level, err := protocol.ParseVolume(resp.Attrs.Value("level")); err == nil {
				g.Volume = level
				e.volume.publish(VolumeChange{Group: g.ID, IsGroup: true, Level: g.Volume, Mute: g.Mute})
			}
		}

	case "group/get_mute", "group/set_mute":
		if g, ok := e.respGroupLocked(resp); ok {
			if mute := protocol.ParseMuteState(resp.Attrs.Value("state")); mute != protocol.MuteUnknown {
				g.Mute = mute
				e.volume.publish(VolumeChange{Group: g.ID, IsGroup: true, Level: g.Volume, Mute: g.Mute})
			}
		}

	case "browse/get_music_sources":
		sources, err := protocol.DecodeSources(resp)
		if err != nil {
			log.Warnw("bad source listing", "error", err)
			return
		}
		e.replaceSourcesLocked(sources)

	case "browse/get_source_info":
		info, err := protocol.DecodeSource(resp)
		if err != nil {
			log.Warnw("bad source info", "error", err)
			return
		}
		e.upsertSourceLocked(info)

	case "browse/browse":
		items, err := protocol.DecodeBrowse(resp)
		if err != nil {
			log.Warnw("bad browse result", "error", err)
			return
		}
		e.rememberLocked(items)

	case "browse/search":
		items, err := protocol.DecodeSearch(resp)
		if err != nil {
			log.Warnw("bad search result", "error", err)
			return
		}
		e.rememberLocked(items)

	case "system/check_account", "system/sign_in", "system/sign_out":
		switch {
		case resp.Attrs.Has("signed_in"):
			e.account = Account{SignedIn: true, Username: resp.Attrs.Value("un")}
		case resp.Attrs.Has("signed_out"):
			e.account = Account{}
		}
	}
}

func (e *Engine) respPlayerLocked(resp *protocol.Response) (*Player, bool) {
	id, ok := resp.PlayerID()
	if !ok {
		return nil, false
	}
	return e.playerLocked(id), true
}

func (e *Engine) respGroupLocked(resp *protocol.Response) (*Group, bool) {
	id, ok := resp.GroupID()
	if !ok {
		return nil, false
	}
	return e.groupLocked(id), true
}

// setNowPlayingLocked installs new media. A different track resets the
// position; the same track keeps its progress.
func (e *Engine) setNowPlayingLocked(p *Player, media *protocol.NowPlaying) {
	if !sameMedia(p.NowPlaying, media) {
		e.resetProgressLocked(p)
	}
	p.NowPlaying = media

	var out *protocol.NowPlaying
	if media != nil {
		copied := *media
		out = &copied
	}
	e.nowPlaying.publish(NowPlayingChange{Player: p.ID, Media: out})
}

func sameMedia(a, b *protocol.NowPlaying) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.MediaID == b.MediaID && a.QueueID == b.QueueID && a.Source == b.Source && a.Song == b.Song
}

// applySetGroupLocked handles both grouping ("gid=1&name=..&pid=1,2") and
// ungrouping ("pid=1") acknowledgements
func (e *Engine) applySetGroupLocked(resp *protocol.Response) {
	raw, err := protocol.ParseIDList(resp.Attrs.Value("pid"))
	if err != nil || len(raw) == 0 {
		return
	}
	ids := make([]protocol.PlayerID, len(raw))
	for i, id := range raw {
		ids[i] = protocol.PlayerID(id)
	}

	gid, ok := resp.GroupID()
	if !ok || len(ids) == 1 {
		// the leader dissolved its group
		if p, ok := e.players[ids[0]]; ok && p.InGroup {
			e.deleteGroupLocked(p.Group)
		} else {
			e.deleteGroupLocked(protocol.GroupID(ids[0]))
		}
		return
	}
	e.setGroupLocked(gid, resp.Attrs.Value("name"), ids[0], ids)
}
