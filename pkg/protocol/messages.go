// ABOUTME: Decoded HEOS messages: command responses and change events
// ABOUTME: Events carry typed fields filled per kind alongside the raw attributes
package protocol

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Message is either a *Response or an *Event
type Message interface {
	// Path returns the heos.command value, e.g. "player/get_volume"
	// or "event/player_volume_changed"
	Path() string
}

// Result is the outcome flag of a response
type Result uint8

const (
	ResultSuccess Result = iota + 1
	ResultFail
)

// String returns the wire token
func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultFail:
		return "fail"
	default:
		return ""
	}
}

// ProcessingMessage prefixes interim replies sent while a slow command runs
const ProcessingMessage = "command under process"

// Response is the device's reply to a command
type Response struct {
	Group   string
	Verb    string
	Result  Result
	Message string // raw heos.message
	Attrs   Attrs
	Payload json.RawMessage
	Options json.RawMessage
}

// Path implements Message
func (r *Response) Path() string { return r.Group + "/" + r.Verb }

// Success reports a successful final reply
func (r *Response) Success() bool { return r.Result == ResultSuccess && !r.Processing() }

// Processing reports an interim reply; the final one follows later
func (r *Response) Processing() bool {
	return strings.HasPrefix(r.Message, ProcessingMessage)
}

// Sequence returns the echoed SEQUENCE token, if any
func (r *Response) Sequence() (uint64, bool) {
	v, ok := r.Attrs.Get(SequenceParam)
	if !ok {
		return 0, false
	}
	seq, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// Err returns a *DeviceError for failed replies and nil otherwise
func (r *Response) Err() error {
	if r.Result != ResultFail {
		return nil
	}
	return deviceErrorFromAttrs(r.Path(), r.Attrs)
}

// PlayerID returns the pid attribute
func (r *Response) PlayerID() (PlayerID, bool) {
	n, ok := r.Attrs.Int("pid")
	return PlayerID(n), ok
}

// GroupID returns the gid attribute
func (r *Response) GroupID() (GroupID, bool) {
	n, ok := r.Attrs.Int("gid")
	return GroupID(n), ok
}

// EventKind identifies a change event
type EventKind uint8

const (
	EventUnknown EventKind = iota
	EventSourcesChanged
	EventPlayersChanged
	EventGroupsChanged
	EventPlayerStateChanged
	EventPlayerNowPlayingChanged
	EventPlayerNowPlayingProgress
	EventPlayerPlaybackError
	EventPlayerQueueChanged
	EventPlayerVolumeChanged
	EventRepeatModeChanged
	EventShuffleModeChanged
	EventGroupVolumeChanged
	EventUserChanged
)

var eventNames = map[string]EventKind{
	"sources_changed":             EventSourcesChanged,
	"players_changed":             EventPlayersChanged,
	"groups_changed":              EventGroupsChanged,
	"player_state_changed":        EventPlayerStateChanged,
	"player_now_playing_changed":  EventPlayerNowPlayingChanged,
	"player_now_playing_progress": EventPlayerNowPlayingProgress,
	"player_playback_error":       EventPlayerPlaybackError,
	"player_queue_changed":        EventPlayerQueueChanged,
	"player_volume_changed":       EventPlayerVolumeChanged,
	"repeat_mode_changed":         EventRepeatModeChanged,
	"shuffle_mode_changed":        EventShuffleModeChanged,
	"group_volume_changed":        EventGroupVolumeChanged,
	"user_changed":                EventUserChanged,
}

// ParseEventKind maps an event name; unknown names give EventUnknown
func ParseEventKind(name string) EventKind {
	return eventNames[name]
}

// String returns the event name without the "event/" prefix
func (k EventKind) String() string {
	for name, kind := range eventNames {
		if kind == k {
			return name
		}
	}
	return "unknown"
}

// PlayerScoped reports whether events of this kind carry a pid
func (k EventKind) PlayerScoped() bool {
	switch k {
	case EventPlayerStateChanged, EventPlayerNowPlayingChanged, EventPlayerNowPlayingProgress,
		EventPlayerPlaybackError, EventPlayerQueueChanged, EventPlayerVolumeChanged,
		EventRepeatModeChanged, EventShuffleModeChanged:
		return true
	}
	return false
}

// Event is an unsolicited change notification. Only the fields relevant to
// Kind are set; Attrs always holds everything the device sent.
type Event struct {
	Kind  EventKind
	Name  string
	Attrs Attrs

	Player   PlayerID
	Group    GroupID
	State    PlayState
	Level    Volume
	Mute     MuteState
	Repeat   RepeatMode
	Shuffle  ShuffleMode
	Position time.Duration
	Duration time.Duration
	Error    string

	SignedIn bool
	Username string
}

// Path implements Message
func (e *Event) Path() string { return eventPrefix + e.Name }

func decodeEvent(line, name string, attrs Attrs) (*Event, error) {
	ev := &Event{Kind: ParseEventKind(name), Name: name, Attrs: attrs}

	if ev.Kind.PlayerScoped() {
		pid, err := requireInt(line, attrs, "pid")
		if err != nil {
			return nil, err
		}
		ev.Player = PlayerID(pid)
	}

	switch ev.Kind {
	case EventPlayerStateChanged:
		ev.State = ParsePlayState(attrs.Value("state"))

	case EventPlayerNowPlayingProgress:
		pos, err := requireInt(line, attrs, "cur_pos")
		if err != nil {
			return nil, err
		}
		dur, err := requireInt(line, attrs, "duration")
		if err != nil {
			return nil, err
		}
		if pos < 0 || dur < 0 {
			return nil, malformed(line, "negative position", nil)
		}
		ev.Position = time.Duration(pos) * time.Millisecond
		ev.Duration = time.Duration(dur) * time.Millisecond

	case EventPlayerPlaybackError:
		ev.Error = attrs.Value("error")

	case EventPlayerVolumeChanged, EventGroupVolumeChanged:
		if ev.Kind == EventGroupVolumeChanged {
			gid, err := requireInt(line, attrs, "gid")
			if err != nil {
				return nil, err
			}
			ev.Group = GroupID(gid)
		}
		level, ok := attrs.Get("level")
		if !ok {
			return nil, malformed(line, "missing level", nil)
		}
		vol, err := ParseVolume(level)
		if err != nil {
			return nil, malformed(line, "invalid level", err)
		}
		ev.Level = vol
		ev.Mute = ParseMuteState(attrs.Value("mute"))

	case EventRepeatModeChanged:
		ev.Repeat = ParseRepeatMode(attrs.Value("repeat"))

	case EventShuffleModeChanged:
		ev.Shuffle = ParseShuffleMode(attrs.Value("shuffle"))

	case EventUserChanged:
		ev.SignedIn = attrs.Has("signed_in")
		ev.Username = attrs.Value("un")
	}

	return ev, nil
}

func requireInt(line string, attrs Attrs, key string) (int64, error) {
	v, ok := attrs.Get(key)
	if !ok {
		return 0, malformed(line, "missing "+key, nil)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, malformed(line, key+" is not numeric", err)
	}
	return n, nil
}
