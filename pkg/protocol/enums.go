// ABOUTME: Enumerations used by HEOS commands, replies and events
// ABOUTME: Every enum is a closed set with an Unknown member for new vendor values
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PlayerID identifies a player. Values may be negative.
type PlayerID int64

// GroupID identifies a group; the device uses the leader's player id
type GroupID int64

// String implements fmt.Stringer
func (id PlayerID) String() string { return strconv.FormatInt(int64(id), 10) }

// String implements fmt.Stringer
func (id GroupID) String() string { return strconv.FormatInt(int64(id), 10) }

// UnmarshalJSON accepts both numbers and quoted numbers
func (id *PlayerID) UnmarshalJSON(b []byte) error {
	n, err := unmarshalLooseInt(b)
	*id = PlayerID(n)
	return err
}

// UnmarshalJSON accepts both numbers and quoted numbers
func (id *GroupID) UnmarshalJSON(b []byte) error {
	n, err := unmarshalLooseInt(b)
	*id = GroupID(n)
	return err
}

func unmarshalLooseInt(b []byte) (int64, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return 0, err
		}
		return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return 0, err
	}
	return n.Int64()
}

// QueueID is a 1-based position in a player's queue
type QueueID int64

// UnmarshalJSON accepts both numbers and quoted numbers
func (id *QueueID) UnmarshalJSON(b []byte) error {
	n, err := unmarshalLooseInt(b)
	*id = QueueID(n)
	return err
}

// Volume is a level in 0..100
type Volume uint8

// MaxVolume is the highest accepted level
const MaxVolume Volume = 100

// NewVolume validates a level
func NewVolume(level int) (Volume, error) {
	if level < 0 || level > int(MaxVolume) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidVolume, level)
	}
	return Volume(level), nil
}

// ParseVolume parses a wire level
func ParseVolume(s string) (Volume, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return NewVolume(n)
}

// String implements fmt.Stringer
func (v Volume) String() string { return strconv.Itoa(int(v)) }

// tokenEnum maps the wire tokens of a string enum; index 0 is Unknown
type tokenEnum []string

func (t tokenEnum) parse(s string) int {
	for i := 1; i < len(t); i++ {
		if t[i] == s {
			return i
		}
	}
	return 0
}

func (t tokenEnum) token(i int) string {
	if i <= 0 || i >= len(t) {
		return ""
	}
	return t[i]
}

// PlayState is the transport state of a player
type PlayState uint8

const (
	PlayStateUnknown PlayState = iota
	PlayStatePlay
	PlayStatePause
	PlayStateStop
)

var playStateTokens = tokenEnum{"", "play", "pause", "stop"}

// ParsePlayState never fails; unrecognized tokens map to PlayStateUnknown
func ParsePlayState(s string) PlayState { return PlayState(playStateTokens.parse(s)) }

// String returns the wire token
func (s PlayState) String() string { return playStateTokens.token(int(s)) }

// MuteState is the mute flag of a player or group
type MuteState uint8

const (
	MuteUnknown MuteState = iota
	MuteOn
	MuteOff
)

var muteTokens = tokenEnum{"", "on", "off"}

// ParseMuteState never fails; unrecognized tokens map to MuteUnknown
func ParseMuteState(s string) MuteState { return MuteState(muteTokens.parse(s)) }

// MuteStateOf converts a bool
func MuteStateOf(muted bool) MuteState {
	if muted {
		return MuteOn
	}
	return MuteOff
}

// String returns the wire token
func (m MuteState) String() string { return muteTokens.token(int(m)) }

// RepeatMode is the queue repeat setting
type RepeatMode uint8

const (
	RepeatUnknown RepeatMode = iota
	RepeatOff
	RepeatAll
	RepeatOne
)

var repeatTokens = tokenEnum{"", "off", "on_all", "on_one"}

// ParseRepeatMode never fails; unrecognized tokens map to RepeatUnknown
func ParseRepeatMode(s string) RepeatMode { return RepeatMode(repeatTokens.parse(s)) }

// String returns the wire token
func (r RepeatMode) String() string { return repeatTokens.token(int(r)) }

// ShuffleMode is the queue shuffle setting
type ShuffleMode uint8

const (
	ShuffleUnknown ShuffleMode = iota
	ShuffleOn
	ShuffleOff
)

var shuffleTokens = tokenEnum{"", "on", "off"}

// ParseShuffleMode never fails; unrecognized tokens map to ShuffleUnknown
func ParseShuffleMode(s string) ShuffleMode { return ShuffleMode(shuffleTokens.parse(s)) }

// ShuffleModeOf converts a bool
func ShuffleModeOf(on bool) ShuffleMode {
	if on {
		return ShuffleOn
	}
	return ShuffleOff
}

// String returns the wire token
func (s ShuffleMode) String() string { return shuffleTokens.token(int(s)) }

// GroupRole is a member's role within a group
type GroupRole uint8

const (
	RoleUnknown GroupRole = iota
	RoleLeader
	RoleMember
)

var roleTokens = tokenEnum{"", "leader", "member"}

// ParseGroupRole never fails; unrecognized tokens map to RoleUnknown
func ParseGroupRole(s string) GroupRole { return GroupRole(roleTokens.parse(s)) }

// String returns the wire token
func (r GroupRole) String() string { return roleTokens.token(int(r)) }

// UnmarshalJSON decodes the wire token
func (r *GroupRole) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*r = ParseGroupRole(s)
	return nil
}

// SourceID identifies a music source. Unlisted values are kept as-is and
// report Known() == false.
type SourceID int

const (
	SourceUnknown     SourceID = 0
	SourcePandora     SourceID = 1
	SourceRhapsody    SourceID = 2
	SourceTuneIn      SourceID = 3
	SourceSpotify     SourceID = 4
	SourceDeezer      SourceID = 5
	SourceNapster     SourceID = 6
	SourceIHeartRadio SourceID = 7
	SourceSiriusXM    SourceID = 8
	SourceSoundcloud  SourceID = 9
	SourceTidal       SourceID = 10
	SourceAmazonMusic SourceID = 13
	SourceMoodmix     SourceID = 15
	SourceQQMusic     SourceID = 18
	SourceQobuz       SourceID = 30
	SourceLocalMedia  SourceID = 1024
	SourcePlaylists   SourceID = 1025
	SourceHistory     SourceID = 1026
	SourceAuxInputs   SourceID = 1027
	SourceFavorites   SourceID = 1028
)

var sourceNames = map[SourceID]string{
	SourcePandora:     "Pandora",
	SourceRhapsody:    "Rhapsody",
	SourceTuneIn:      "TuneIn",
	SourceSpotify:     "Spotify",
	SourceDeezer:      "Deezer",
	SourceNapster:     "Napster",
	SourceIHeartRadio: "iHeartRadio",
	SourceSiriusXM:    "SiriusXM",
	SourceSoundcloud:  "Soundcloud",
	SourceTidal:       "Tidal",
	SourceAmazonMusic: "Amazon Music",
	SourceMoodmix:     "Moodmix",
	SourceQQMusic:     "QQMusic",
	SourceQobuz:       "Qobuz",
	SourceLocalMedia:  "Local USB Media/DLNA",
	SourcePlaylists:   "HEOS Playlists",
	SourceHistory:     "HEOS History",
	SourceAuxInputs:   "HEOS aux inputs",
	SourceFavorites:   "HEOS Favorites",
}

// Known reports whether the id is part of the published table
func (s SourceID) Known() bool {
	_, ok := sourceNames[s]
	return ok
}

// String returns the source name, or the raw number for unknown ids
func (s SourceID) String() string {
	if name, ok := sourceNames[s]; ok {
		return name
	}
	return fmt.Sprintf("source(%d)", int(s))
}

// UnmarshalJSON accepts both numbers and quoted numbers
func (s *SourceID) UnmarshalJSON(b []byte) error {
	n, err := unmarshalLooseInt(b)
	*s = SourceID(n)
	return err
}

// CriteriaID identifies a search criteria. Unlisted values are kept as-is.
type CriteriaID int

const (
	CriteriaUnknown  CriteriaID = 0
	CriteriaArtist   CriteriaID = 1
	CriteriaAlbum    CriteriaID = 2
	CriteriaTrack    CriteriaID = 3
	CriteriaStation  CriteriaID = 4
	CriteriaShows    CriteriaID = 5
	CriteriaPlaylist CriteriaID = 6
	CriteriaAccounts CriteriaID = 7
)

var criteriaNames = map[CriteriaID]string{
	CriteriaArtist:   "artist",
	CriteriaAlbum:    "album",
	CriteriaTrack:    "track",
	CriteriaStation:  "station",
	CriteriaShows:    "shows",
	CriteriaPlaylist: "playlist",
	CriteriaAccounts: "accounts",
}

// Known reports whether the id is part of the published table
func (c CriteriaID) Known() bool {
	_, ok := criteriaNames[c]
	return ok
}

// String returns the criteria name, or the raw number for unknown ids
func (c CriteriaID) String() string {
	if name, ok := criteriaNames[c]; ok {
		return name
	}
	return fmt.Sprintf("criteria(%d)", int(c))
}

// UnmarshalJSON accepts both numbers and quoted numbers
func (c *CriteriaID) UnmarshalJSON(b []byte) error {
	n, err := unmarshalLooseInt(b)
	*c = CriteriaID(n)
	return err
}

// AddToQueueType selects where browse/add_to_queue inserts media
type AddToQueueType int

const (
	PlayNow        AddToQueueType = 1
	PlayNext       AddToQueueType = 2
	AddToEnd       AddToQueueType = 3
	ReplaceAndPlay AddToQueueType = 4
)

// Origin records how a Playable was obtained
type Origin uint8

const (
	OriginUnknown Origin = iota
	OriginBrowse
	OriginSearch
	OriginQueue
	OriginNowPlaying
)

var originNames = tokenEnum{"unknown", "browse", "search", "queue", "now_playing"}

// String implements fmt.Stringer
func (o Origin) String() string {
	if int(o) < len(originNames) {
		return originNames[o]
	}
	return originNames[0]
}

// QuickSelectID is a QuickSelect slot, 1..6 on devices that have them
type QuickSelectID int64

// UnmarshalJSON accepts both numbers and quoted numbers
func (id *QuickSelectID) UnmarshalJSON(b []byte) error {
	n, err := unmarshalLooseInt(b)
	*id = QuickSelectID(n)
	return err
}

// ServiceOptionID is the option number of browse/set_service_option
type ServiceOptionID int

const (
	OptionAddTrackToLibrary         ServiceOptionID = 1
	OptionAddAlbumToLibrary         ServiceOptionID = 2
	OptionAddStationToLibrary       ServiceOptionID = 3
	OptionAddPlaylistToLibrary      ServiceOptionID = 4
	OptionRemoveTrackFromLibrary    ServiceOptionID = 5
	OptionRemoveAlbumFromLibrary    ServiceOptionID = 6
	OptionRemoveStationFromLibrary  ServiceOptionID = 7
	OptionRemovePlaylistFromLibrary ServiceOptionID = 8
	OptionThumbsUp                  ServiceOptionID = 11
	OptionThumbsDown                ServiceOptionID = 12
	OptionCreateNewStation          ServiceOptionID = 13
	OptionAddToFavorites            ServiceOptionID = 19
	OptionRemoveFromFavorites       ServiceOptionID = 20
)
