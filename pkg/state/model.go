// ABOUTME: Player, group and snapshot types held by the state engine
// ABOUTME: Change records published on the per-category feeds
package state

import (
	"slices"
	"sort"
	"time"

	"github.com/harperreed/heos-go/pkg/protocol"
)

// Player is the cached view of one player
type Player struct {
	ID      protocol.PlayerID
	Name    string
	Model   string
	Version string
	IP      string
	Network string
	Serial  string
	LineOut int

	// Group is a lookup reference only; InGroup reports whether it is set
	Group   protocol.GroupID
	InGroup bool

	State   protocol.PlayState
	Volume  protocol.Volume
	Mute    protocol.MuteState
	Repeat  protocol.RepeatMode
	Shuffle protocol.ShuffleMode

	NowPlaying *protocol.NowPlaying
	Queue      []protocol.Playable

	// last position and duration reported by the device
	Position time.Duration
	Duration time.Duration

	LastError string

	// Placeholder is set for players only known from events so far
	Placeholder bool
}

func (p *Player) clone() Player {
	out := *p
	if p.NowPlaying != nil {
		np := *p.NowPlaying
		out.NowPlaying = &np
	}
	out.Queue = slices.Clone(p.Queue)
	return out
}

// Group is the cached view of one group
type Group struct {
	ID      protocol.GroupID
	Name    string
	Leader  protocol.PlayerID
	Members []protocol.PlayerID // device order, leader included
	Volume  protocol.Volume
	Mute    protocol.MuteState

	Placeholder bool
}

func (g *Group) clone() Group {
	out := *g
	out.Members = slices.Clone(g.Members)
	return out
}

// Has reports whether id is a member
func (g Group) Has(id protocol.PlayerID) bool {
	return slices.Contains(g.Members, id)
}

// Account is the HEOS account status
type Account struct {
	SignedIn bool
	Username string
}

// Snapshot is a deep copy of the whole model taken under one lock. It never
// changes after creation.
type Snapshot struct {
	Players   map[protocol.PlayerID]Player
	Groups    map[protocol.GroupID]Group
	Sources   map[protocol.SourceID]protocol.SourceInfo
	Playables map[PlayableKey]protocol.Playable
	Account   Account
	TakenAt   time.Duration
}

// Player returns one player from the snapshot
func (s Snapshot) Player(id protocol.PlayerID) (Player, bool) {
	p, ok := s.Players[id]
	return p, ok
}

// Group returns one group from the snapshot
func (s Snapshot) Group(id protocol.GroupID) (Group, bool) {
	g, ok := s.Groups[id]
	return g, ok
}

// SortedPlayers returns players ordered by name, then id
func (s Snapshot) SortedPlayers() []Player {
	out := make([]Player, 0, len(s.Players))
	for _, p := range s.Players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// PlayStateChange is published when a player's play state changes
type PlayStateChange struct {
	Player protocol.PlayerID
	State  protocol.PlayState
}

// VolumeChange is published for player and group volume or mute updates
type VolumeChange struct {
	Player  protocol.PlayerID
	Group   protocol.GroupID
	IsGroup bool
	Level   protocol.Volume
	Mute    protocol.MuteState
}

// PlayModeChange carries the full repeat and shuffle settings
type PlayModeChange struct {
	Player  protocol.PlayerID
	Repeat  protocol.RepeatMode
	Shuffle protocol.ShuffleMode
}

// NowPlayingChange carries the new media; nil means nothing is playing
type NowPlayingChange struct {
	Player protocol.PlayerID
	Media  *protocol.NowPlaying
}

// QueueChange carries the full new queue
type QueueChange struct {
	Player protocol.PlayerID
	Queue  []protocol.Playable
}

// TopologyKind says what part of the player/group layout changed
type TopologyKind uint8

const (
	PlayerAdded TopologyKind = iota + 1
	PlayerRemoved
	GroupChanged
	GroupRemoved
	SourcesChanged
)

func (k TopologyKind) String() string {
	switch k {
	case PlayerAdded:
		return "player_added"
	case PlayerRemoved:
		return "player_removed"
	case GroupChanged:
		return "group_changed"
	case GroupRemoved:
		return "group_removed"
	case SourcesChanged:
		return "sources_changed"
	default:
		return "unknown"
	}
}

// TopologyChange is published when players or groups come and go, or the
// source list changes. For GroupChanged, Members is the complete new member
// list.
type TopologyChange struct {
	Kind    TopologyKind
	Player  protocol.PlayerID
	Group   protocol.GroupID
	Members []protocol.PlayerID
}

// ProgressChange is published for every device position report and reset
type ProgressChange struct {
	Player   protocol.PlayerID
	Position time.Duration
	Duration time.Duration
}

// PlaybackError is published when a player reports a playback failure
type PlaybackError struct {
	Player protocol.PlayerID
	Error  string
}
