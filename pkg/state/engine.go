// ABOUTME: State engine holding the authoritative player and group model
// ABOUTME: Applies device events and query replies, serves snapshots and change feeds
package state

import (
	"maps"
	"slices"
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"github.com/harperreed/heos-go/internal/clock"
	"github.com/harperreed/heos-go/pkg/protocol"
)

var log = logging.Logger("heos/state")

// Engine owns the player, group, source and playable tables. All mutation happens through
// ApplyEvent, ApplyResponse and the Replace/Set methods; readers get copies.
type Engine struct {
	mu      sync.RWMutex
	clock   clock.Clock
	players map[protocol.PlayerID]*Player
	groups  map[protocol.GroupID]*Group
	samples map[protocol.PlayerID]progressSample
	account Account

	sources   map[protocol.SourceID]protocol.SourceInfo
	playables map[PlayableKey]protocol.Playable

	playState  *feed[PlayStateChange]
	volume     *feed[VolumeChange]
	playMode   *feed[PlayModeChange]
	nowPlaying *feed[NowPlayingChange]
	queue      *feed[QueueChange]
	topology   *feed[TopologyChange]
	progress   *feed[ProgressChange]
	errors     *feed[PlaybackError]
}

// Option configures an Engine
type Option func(*engineOptions)

type engineOptions struct {
	clock  clock.Clock
	buffer int
}

// WithClock sets the clock used for progress samples
func WithClock(c clock.Clock) Option {
	return func(o *engineOptions) { o.clock = c }
}

// WithFeedBuffer sets the capacity of each subscription's buffer
func WithFeedBuffer(n int) Option {
	return func(o *engineOptions) { o.buffer = n }
}

// New creates an empty engine
func New(opts ...Option) *Engine {
	o := engineOptions{buffer: DefaultFeedBuffer}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clock.New()
	}

	return &Engine{
		clock:      o.clock,
		players:    make(map[protocol.PlayerID]*Player),
		groups:     make(map[protocol.GroupID]*Group),
		samples:    make(map[protocol.PlayerID]progressSample),
		sources:    make(map[protocol.SourceID]protocol.SourceInfo),
		playables:  make(map[PlayableKey]protocol.Playable),
		playState:  newFeed[PlayStateChange](o.buffer),
		volume:     newFeed[VolumeChange](o.buffer),
		playMode:   newFeed[PlayModeChange](o.buffer),
		nowPlaying: newFeed[NowPlayingChange](o.buffer),
		queue:      newFeed[QueueChange](o.buffer),
		topology:   newFeed[TopologyChange](o.buffer),
		progress:   newFeed[ProgressChange](o.buffer),
		errors:     newFeed[PlaybackError](o.buffer),
	}
}

// Change feeds. Each call returns a new independent subscription.

func (e *Engine) PlayStateChanges() *Subscription[PlayStateChange]   { return e.playState.subscribe() }
func (e *Engine) VolumeChanges() *Subscription[VolumeChange]         { return e.volume.subscribe() }
func (e *Engine) PlayModeChanges() *Subscription[PlayModeChange]     { return e.playMode.subscribe() }
func (e *Engine) NowPlayingChanges() *Subscription[NowPlayingChange] { return e.nowPlaying.subscribe() }
func (e *Engine) QueueChanges() *Subscription[QueueChange]           { return e.queue.subscribe() }
func (e *Engine) TopologyChanges() *Subscription[TopologyChange]     { return e.topology.subscribe() }
func (e *Engine) ProgressChanges() *Subscription[ProgressChange]     { return e.progress.subscribe() }
func (e *Engine) PlaybackErrors() *Subscription[PlaybackError]       { return e.errors.subscribe() }

// Close ends every subscription
func (e *Engine) Close() {
	e.playState.close()
	e.volume.close()
	e.playMode.close()
	e.nowPlaying.close()
	e.queue.close()
	e.topology.close()
	e.progress.close()
	e.errors.close()
}

// Snapshot returns a deep copy of the model
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := Snapshot{
		Players: make(map[protocol.PlayerID]Player, len(e.players)),
		Groups:    make(map[protocol.GroupID]Group, len(e.groups)),
		Sources:   maps.Clone(e.sources),
		Playables: maps.Clone(e.playables),
		Account:   e.account,
		TakenAt:   e.clock.Now(),
	}
	for id, p := range e.players {
		snap.Players[id] = p.clone()
	}
	for id, g := range e.groups {
		snap.Groups[id] = g.clone()
	}
	return snap
}

// Player returns a copy of one player
func (e *Engine) Player(id protocol.PlayerID) (Player, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.players[id]
	if !ok {
		return Player{}, false
	}
	return p.clone(), true
}

// Group returns a copy of one group
func (e *Engine) Group(id protocol.GroupID) (Group, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	g, ok := e.groups[id]
	if !ok {
		return Group{}, false
	}
	return g.clone(), true
}

// PlayerIDs returns the known player ids in ascending order
func (e *Engine) PlayerIDs() []protocol.PlayerID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]protocol.PlayerID, 0, len(e.players))
	for id := range e.players {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// playerLocked returns the player, creating a placeholder for unknown ids
func (e *Engine) playerLocked(id protocol.PlayerID) *Player {
	if p, ok := e.players[id]; ok {
		return p
	}
	log.Debugw("creating placeholder player", "pid", id)
	p := &Player{ID: id, Placeholder: true}
	e.players[id] = p
	e.topology.publish(TopologyChange{Kind: PlayerAdded, Player: id})
	return p
}

// ApplyEvent folds one change event into the model. It never fails;
// unknown ids get placeholders and unknown events are ignored.
func (e *Engine) ApplyEvent(ev *protocol.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch ev.Kind {
	case protocol.EventPlayersChanged, protocol.EventGroupsChanged, protocol.EventSourcesChanged:
		// details arrive with the re-query

	case protocol.EventPlayerStateChanged:
		e.setPlayStateLocked(e.playerLocked(ev.Player), ev.State)

	case protocol.EventPlayerNowPlayingChanged:
		e.resetProgressLocked(e.playerLocked(ev.Player))

	case protocol.EventPlayerNowPlayingProgress:
		e.recordProgressLocked(e.playerLocked(ev.Player), ev.Position, ev.Duration)

	case protocol.EventPlayerPlaybackError:
		p := e.playerLocked(ev.Player)
		p.LastError = ev.Error
		e.errors.publish(PlaybackError{Player: p.ID, Error: ev.Error})

	case protocol.EventPlayerQueueChanged:
		e.playerLocked(ev.Player)

	case protocol.EventPlayerVolumeChanged:
		p := e.playerLocked(ev.Player)
		p.Volume = ev.Level
		if ev.Mute != protocol.MuteUnknown {
			p.Mute = ev.Mute
		}
		e.volume.publish(VolumeChange{Player: p.ID, Level: p.Volume, Mute: p.Mute})

	case protocol.EventRepeatModeChanged:
		p := e.playerLocked(ev.Player)
		p.Repeat = ev.Repeat
		e.playMode.publish(PlayModeChange{Player: p.ID, Repeat: p.Repeat, Shuffle: p.Shuffle})

	case protocol.EventShuffleModeChanged:
		p := e.playerLocked(ev.Player)
		p.Shuffle = ev.Shuffle
		e.playMode.publish(PlayModeChange{Player: p.ID, Repeat: p.Repeat, Shuffle: p.Shuffle})

	case protocol.EventGroupVolumeChanged:
		g := e.groupLocked(ev.Group)
		g.Volume = ev.Level
		if ev.Mute != protocol.MuteUnknown {
			g.Mute = ev.Mute
		}
		e.volume.publish(VolumeChange{Group: g.ID, IsGroup: true, Level: g.Volume, Mute: g.Mute})

	case protocol.EventUserChanged:
		e.account = Account{SignedIn: ev.SignedIn, Username: ev.Username}

	default:
		log.Debugw("ignoring event", "event", ev.Name)
	}
}

func (e *Engine) setPlayStateLocked(p *Player, state protocol.PlayState) {
	e.invalidateProgressLocked(p.ID)
	p.State = state
	e.playState.publish(PlayStateChange{Player: p.ID, State: state})
}

// groupLocked returns the group, creating a placeholder led by the player
// whose id matches the group id
func (e *Engine) groupLocked(id protocol.GroupID) *Group {
	if g, ok := e.groups[id]; ok {
		return g
	}
	leader := protocol.PlayerID(id)
	e.setGroupLocked(id, "", leader, []protocol.PlayerID{leader})
	g := e.groups[id]
	g.Placeholder = true
	return g
}

// ReplacePlayers installs a full player listing. Players missing from it
// are removed together with their group memberships.
func (e *Engine) ReplacePlayers(infos []protocol.PlayerInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replacePlayersLocked(infos)
}

func (e *Engine) replacePlayersLocked(infos []protocol.PlayerInfo) {
	seen := make(map[protocol.PlayerID]bool, len(infos))
	for _, info := range infos {
		seen[info.ID] = true
		e.upsertPlayerLocked(info)
	}
	for id := range e.players {
		if !seen[id] {
			e.removePlayerLocked(id)
		}
	}
}

func (e *Engine) upsertPlayerLocked(info protocol.PlayerInfo) {
	p, ok := e.players[info.ID]
	if !ok {
		p = &Player{ID: info.ID}
		e.players[info.ID] = p
		e.topology.publish(TopologyChange{Kind: PlayerAdded, Player: info.ID})
	}
	p.Name = info.Name
	p.Model = info.Model
	p.Version = info.Version
	p.IP = info.IP
	p.Network = info.Network
	p.Serial = info.Serial
	p.LineOut = info.LineOut
	p.Placeholder = false
}

func (e *Engine) removePlayerLocked(id protocol.PlayerID) {
	p, ok := e.players[id]
	if !ok {
		return
	}
	if p.InGroup {
		if g, ok := e.groups[p.Group]; ok {
			e.dropMemberLocked(g, id)
		}
	}
	delete(e.players, id)
	delete(e.samples, id)
	e.topology.publish(TopologyChange{Kind: PlayerRemoved, Player: id})
}

// ReplaceGroups installs a full group listing. Groups missing from it are
// deleted.
func (e *Engine) ReplaceGroups(infos []protocol.GroupInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replaceGroupsLocked(infos)
}

func (e *Engine) replaceGroupsLocked(infos []protocol.GroupInfo) {
	seen := make(map[protocol.GroupID]bool, len(infos))
	for _, info := range infos {
		seen[info.ID] = true
	}
	for id := range e.groups {
		if !seen[id] {
			e.deleteGroupLocked(id)
		}
	}
	for _, info := range infos {
		e.setGroupLocked(info.ID, info.Name, info.Leader(), info.MemberIDs())
	}
}

// SetGroup replaces the membership of one group in a single step. Members
// leave any other group they were in; an empty list deletes the group.
func (e *Engine) SetGroup(id protocol.GroupID, name string, leader protocol.PlayerID, members []protocol.PlayerID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setGroupLocked(id, name, leader, members)
}

func (e *Engine) setGroupLocked(id protocol.GroupID, name string, leader protocol.PlayerID, members []protocol.PlayerID) {
	members = dedupe(members)
	if len(members) == 0 {
		e.deleteGroupLocked(id)
		return
	}
	if !slices.Contains(members, leader) {
		leader = members[0]
	}

	g, ok := e.groups[id]
	if !ok {
		g = &Group{ID: id}
		e.groups[id] = g
	}

	// players that left this group
	for _, old := range g.Members {
		if !slices.Contains(members, old) {
			if p, ok := e.players[old]; ok && p.InGroup && p.Group == id {
				p.InGroup = false
				p.Group = 0
			}
		}
	}

	// players that joined from another group
	for _, m := range members {
		p := e.playerLocked(m)
		if p.InGroup && p.Group != id {
			if other, ok := e.groups[p.Group]; ok {
				e.dropMemberLocked(other, m)
			}
		}
		p.Group = id
		p.InGroup = true
	}

	if name != "" {
		g.Name = name
	}
	g.Leader = leader
	g.Members = members
	g.Placeholder = false

	e.topology.publish(TopologyChange{Kind: GroupChanged, Group: id, Members: slices.Clone(members)})
}

// dropMemberLocked removes one player from g, deleting g when it empties
func (e *Engine) dropMemberLocked(g *Group, id protocol.PlayerID) {
	g.Members = slices.DeleteFunc(g.Members, func(m protocol.PlayerID) bool { return m == id })
	if p, ok := e.players[id]; ok && p.Group == g.ID {
		p.InGroup = false
		p.Group = 0
	}
	if len(g.Members) == 0 {
		e.deleteGroupLocked(g.ID)
		return
	}
	if g.Leader == id {
		g.Leader = g.Members[0]
	}
	e.topology.publish(TopologyChange{Kind: GroupChanged, Group: g.ID, Members: slices.Clone(g.Members)})
}

func (e *Engine) deleteGroupLocked(id protocol.GroupID) {
	g, ok := e.groups[id]
	if !ok {
		return
	}
	for _, m := range g.Members {
		if p, ok := e.players[m]; ok && p.InGroup && p.Group == id {
			p.InGroup = false
			p.Group = 0
		}
	}
	delete(e.groups, id)
	e.topology.publish(TopologyChange{Kind: GroupRemoved, Group: id})
}

func dedupe(ids []protocol.PlayerID) []protocol.PlayerID {
	out := make([]protocol.PlayerID, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
