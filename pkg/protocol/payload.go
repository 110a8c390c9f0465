// ABOUTME: Typed views of HEOS response payloads
// ABOUTME: Players, groups, now playing media, queues, sources and browse results
package protocol

import (
	"bytes"
	"encoding/json"
	"strings"
)

// PlayerInfo is one entry of player/get_players
type PlayerInfo struct {
	Name    string   `json:"name"`
	ID      PlayerID `json:"pid"`
	Group   *GroupID `json:"gid,omitempty"`
	Model   string   `json:"model"`
	Version string   `json:"version"`
	IP      string   `json:"ip"`
	Network string   `json:"network"`
	LineOut int      `json:"lineout"`
	Control int      `json:"control,omitempty"`
	Serial  string   `json:"serial,omitempty"`
}

// GroupMember is one player entry of a group
type GroupMember struct {
	Name string    `json:"name"`
	ID   PlayerID  `json:"pid"`
	Role GroupRole `json:"role"`
}

// GroupInfo is one entry of group/get_groups
type GroupInfo struct {
	Name    string        `json:"name"`
	ID      GroupID       `json:"gid"`
	Players []GroupMember `json:"players"`
}

// Leader returns the member with the leader role, falling back to the
// player whose id equals the group id
func (g GroupInfo) Leader() PlayerID {
	for _, m := range g.Players {
		if m.Role == RoleLeader {
			return m.ID
		}
	}
	return PlayerID(g.ID)
}

// MemberIDs returns the member ids in device order
func (g GroupInfo) MemberIDs() []PlayerID {
	ids := make([]PlayerID, 0, len(g.Players))
	for _, m := range g.Players {
		ids = append(ids, m.ID)
	}
	return ids
}

// NowPlaying is the payload of player/get_now_playing_media
type NowPlaying struct {
	Type     string   `json:"type"` // "song" or "station"
	Song     string   `json:"song"`
	Album    string   `json:"album"`
	Artist   string   `json:"artist"`
	ImageURL string   `json:"image_url"`
	AlbumID  string   `json:"album_id"`
	MediaID  string   `json:"mid"`
	QueueID  QueueID  `json:"qid"`
	Source   SourceID `json:"sid"`
	Station  string   `json:"station,omitempty"`
}

// Playable converts the now playing media into a Playable
func (n NowPlaying) Playable() Playable {
	name := n.Song
	if n.Type == "station" && n.Station != "" {
		name = n.Station
	}
	return Playable{
		Source:   n.Source,
		MediaID:  n.MediaID,
		Name:     name,
		Artist:   n.Artist,
		Album:    n.Album,
		ImageURL: n.ImageURL,
		Type:     n.Type,
		QueueID:  n.QueueID,
		CanPlay:  true,
		Origin:   OriginNowPlaying,
	}
}

// SourceInfo is one entry of browse/get_music_sources
type SourceInfo struct {
	Name      string   `json:"name"`
	ImageURL  string   `json:"image_url"`
	Type      string   `json:"type"`
	ID        SourceID `json:"sid"`
	Available string   `json:"available"`
	Username  string   `json:"service_username,omitempty"`
}

// IsAvailable reports whether the source can currently be used
func (s SourceInfo) IsAvailable() bool { return s.Available == "true" }

// Playable is an immutable reference to media or a container, captured at
// the time it was retrieved
type Playable struct {
	Source      SourceID
	ContainerID string
	MediaID     string
	Name        string
	Artist      string
	Album       string
	AlbumID     string
	ImageURL    string
	Type        string // song, station, album, artist, container, ...
	Container   bool
	CanPlay     bool
	Criteria    CriteriaID
	QueueID     QueueID
	Origin      Origin
}

type browseItem struct {
	Container string   `json:"container"`
	Playable  string   `json:"playable"`
	Type      string   `json:"type"`
	CID       string   `json:"cid"`
	MID       string   `json:"mid"`
	Name      string   `json:"name"`
	ImageURL  string   `json:"image_url"`
	Artist    string   `json:"artist"`
	Album     string   `json:"album"`
	SID       SourceID `json:"sid"`
}

type queueItem struct {
	Song     string  `json:"song"`
	Album    string  `json:"album"`
	Artist   string  `json:"artist"`
	ImageURL string  `json:"image_url"`
	QueueID  QueueID `json:"qid"`
	MediaID  string  `json:"mid"`
	AlbumID  string  `json:"album_id"`
}

// DecodePlayers reads the payload of player/get_players
func DecodePlayers(resp *Response) ([]PlayerInfo, error) {
	var players []PlayerInfo
	return players, decodePayload(resp, &players)
}

// DecodePlayer reads the payload of player/get_player_info
func DecodePlayer(resp *Response) (PlayerInfo, error) {
	var player PlayerInfo
	return player, decodePayload(resp, &player)
}

// DecodeGroups reads the payload of group/get_groups
func DecodeGroups(resp *Response) ([]GroupInfo, error) {
	var groups []GroupInfo
	return groups, decodePayload(resp, &groups)
}

// DecodeGroup reads the payload of group/get_group_info
func DecodeGroup(resp *Response) (GroupInfo, error) {
	var group GroupInfo
	return group, decodePayload(resp, &group)
}

// DecodeNowPlaying reads the payload of player/get_now_playing_media.
// An idle player reports an empty object and yields nil.
func DecodeNowPlaying(resp *Response) (*NowPlaying, error) {
	if emptyPayload(resp.Payload) {
		return nil, nil
	}
	var np NowPlaying
	if err := decodePayload(resp, &np); err != nil {
		return nil, err
	}
	if np.Type == "" && np.Song == "" && np.Station == "" && np.MediaID == "" {
		return nil, nil
	}
	return &np, nil
}

// DecodeQueue reads the payload of player/get_queue
func DecodeQueue(resp *Response) ([]Playable, error) {
	var items []queueItem
	if err := decodePayload(resp, &items); err != nil {
		return nil, err
	}
	out := make([]Playable, 0, len(items))
	for _, it := range items {
		out = append(out, Playable{
			MediaID:  it.MediaID,
			Name:     it.Song,
			Artist:   it.Artist,
			Album:    it.Album,
			AlbumID:  it.AlbumID,
			ImageURL: it.ImageURL,
			Type:     "song",
			QueueID:  it.QueueID,
			CanPlay:  true,
			Origin:   OriginQueue,
		})
	}
	return out, nil
}

// DecodeSources reads the payload of browse/get_music_sources
func DecodeSources(resp *Response) ([]SourceInfo, error) {
	var sources []SourceInfo
	return sources, decodePayload(resp, &sources)
}

// DecodeSource reads the payload of browse/get_source_info
func DecodeSource(resp *Response) (SourceInfo, error) {
	var src SourceInfo
	return src, decodePayload(resp, &src)
}

// SearchCriteria is one entry of browse/get_search_criteria
type SearchCriteria struct {
	Name     string     `json:"name"`
	ID       CriteriaID `json:"scid"`
	Wildcard string     `json:"wildcard"`
	Playable string     `json:"playable"`
	// Prefix goes in front of the search string when set
	Prefix string `json:"cid,omitempty"`
}

// SupportsWildcard reports whether '*' may be used in the search string
func (c SearchCriteria) SupportsWildcard() bool { return yes(c.Wildcard) }

// IsPlayable reports whether results can be queued directly
func (c SearchCriteria) IsPlayable() bool { return yes(c.Playable) }

// DecodeSearchCriteria reads the payload of browse/get_search_criteria
func DecodeSearchCriteria(resp *Response) ([]SearchCriteria, error) {
	var out []SearchCriteria
	return out, decodePayload(resp, &out)
}

// QuickSelect is one QuickSelect slot
type QuickSelect struct {
	ID   QuickSelectID `json:"id"`
	Name string        `json:"name"`
}

// DecodeQuickSelects reads the payload of player/get_quickselects
func DecodeQuickSelects(resp *Response) ([]QuickSelect, error) {
	var out []QuickSelect
	return out, decodePayload(resp, &out)
}

// DecodeUpdate reads the payload of player/check_update and reports
// whether firmware is waiting
func DecodeUpdate(resp *Response) (bool, error) {
	var payload struct {
		Update string `json:"update"`
	}
	if err := decodePayload(resp, &payload); err != nil {
		return false, err
	}
	switch payload.Update {
	case "update_exist":
		return true, nil
	case "update_none", "":
		return false, nil
	default:
		return false, malformed(payload.Update, "update", nil)
	}
}

// AlbumImage is one album art rendition
type AlbumImage struct {
	URL   string `json:"image_url"`
	Width int    `json:"width"`
}

// AlbumMetadata is one entry of browse/retrieve_metadata
type AlbumMetadata struct {
	AlbumID string       `json:"album_id"`
	Images  []AlbumImage `json:"images"`
}

// DecodeAlbumMetadata reads the payload of browse/retrieve_metadata
func DecodeAlbumMetadata(resp *Response) ([]AlbumMetadata, error) {
	var out []AlbumMetadata
	return out, decodePayload(resp, &out)
}

// DecodeBrowse reads the payload of browse/browse. The source id comes
// from the reply's sid attribute unless an item names its own.
func DecodeBrowse(resp *Response) ([]Playable, error) {
	return decodeItems(resp, OriginBrowse, CriteriaUnknown)
}

// DecodeSearch reads the payload of browse/search
func DecodeSearch(resp *Response) ([]Playable, error) {
	scid, _ := resp.Attrs.Int("scid")
	return decodeItems(resp, OriginSearch, CriteriaID(scid))
}

func decodeItems(resp *Response, origin Origin, criteria CriteriaID) ([]Playable, error) {
	var items []browseItem
	if err := decodePayload(resp, &items); err != nil {
		return nil, err
	}
	sid, _ := resp.Attrs.Int("sid")
	out := make([]Playable, 0, len(items))
	for _, it := range items {
		source := SourceID(sid)
		if it.SID != 0 {
			source = it.SID
		}
		out = append(out, Playable{
			Source:      source,
			ContainerID: it.CID,
			MediaID:     it.MID,
			Name:        it.Name,
			Artist:      it.Artist,
			Album:       it.Album,
			ImageURL:    it.ImageURL,
			Type:        it.Type,
			Container:   yes(it.Container),
			CanPlay:     yes(it.Playable),
			Criteria:    criteria,
			Origin:      origin,
		})
	}
	return out, nil
}

func decodePayload(resp *Response, v any) error {
	if emptyPayload(resp.Payload) {
		return nil
	}
	if err := json.Unmarshal(resp.Payload, v); err != nil {
		return malformed(string(resp.Payload), resp.Path()+" payload", err)
	}
	return nil
}

func emptyPayload(p json.RawMessage) bool {
	p = bytes.TrimSpace(p)
	return len(p) == 0 || bytes.Equal(p, []byte("null")) || bytes.Equal(p, []byte("{}"))
}

func yes(s string) bool { return strings.EqualFold(s, "yes") }
