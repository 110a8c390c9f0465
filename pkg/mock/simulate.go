// ABOUTME: Default command behaviour of the simulated system
// ABOUTME: Mutates simulated players and groups and raises the matching change events
package mock

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/harperreed/heos-go/pkg/protocol"
)

// Entry is one browse or search result of the simulated library
type Entry struct {
	Container string            `json:"container"`
	Playable  string            `json:"playable"`
	Type      string            `json:"type"`
	CID       string            `json:"cid,omitempty"`
	MID       string            `json:"mid,omitempty"`
	Name      string            `json:"name"`
	Artist    string            `json:"artist,omitempty"`
	Album     string            `json:"album,omitempty"`
	ImageURL  string            `json:"image_url"`
	SID       protocol.SourceID `json:"sid,omitempty"`
}

type wireMember struct {
	Name string            `json:"name"`
	ID   protocol.PlayerID `json:"pid"`
	Role string            `json:"role"`
}

type wireGroup struct {
	Name    string           `json:"name"`
	ID      protocol.GroupID `json:"gid"`
	Players []wireMember     `json:"players"`
}

type wireQueueItem struct {
	Song     string           `json:"song"`
	Album    string           `json:"album"`
	Artist   string           `json:"artist"`
	ImageURL string           `json:"image_url"`
	QueueID  protocol.QueueID `json:"qid"`
	MediaID  string           `json:"mid"`
	AlbumID  string           `json:"album_id"`
}

func defaultSources() []protocol.SourceInfo {
	return []protocol.SourceInfo{
		{Name: "TuneIn", Type: "music_service", ID: protocol.SourceTuneIn, Available: "true"},
		{Name: "Local Music", Type: "heos_server", ID: protocol.SourceLocalMedia, Available: "true"},
		{Name: "Playlists", Type: "heos_service", ID: protocol.SourcePlaylists, Available: "true"},
		{Name: "History", Type: "heos_service", ID: protocol.SourceHistory, Available: "true"},
		{Name: "AUX Input", Type: "heos_service", ID: protocol.SourceAuxInputs, Available: "true"},
		{Name: "Favorites", Type: "heos_service", ID: protocol.SourceFavorites, Available: "true"},
	}
}

// defaultLibrary is keyed by "sid" for top level and "sid/cid" for
// containers
func defaultLibrary() map[string][]Entry {
	track := func(mid, name, artist, album string) Entry {
		return Entry{Container: "no", Playable: "yes", Type: "song", MID: mid, Name: name, Artist: artist, Album: album}
	}
	station := func(mid, name string) Entry {
		return Entry{Container: "no", Playable: "yes", Type: "station", MID: mid, Name: name}
	}
	return map[string][]Entry{
		"1025": {
			{Container: "yes", Playable: "yes", Type: "playlist", CID: "pl-morning", Name: "Morning"},
			{Container: "yes", Playable: "yes", Type: "playlist", CID: "pl-dinner", Name: "Dinner"},
		},
		"1025/pl-morning": {
			track("m-1", "Here Comes the Sun", "The Beatles", "Abbey Road"),
			track("m-2", "Lovely Day", "Bill Withers", "Menagerie"),
			track("m-3", "Good Day Sunshine", "The Beatles", "Revolver"),
		},
		"1025/pl-dinner": {
			track("d-1", "So What", "Miles Davis", "Kind of Blue"),
			track("d-2", "Naima", "John Coltrane", "Giant Steps"),
		},
		"1028": {
			station("s-101", "Jazz24"),
			station("s-102", "KEXP 90.3"),
		},
		"3": {
			station("s-101", "Jazz24"),
			station("s-102", "KEXP 90.3"),
			station("s-103", "BBC Radio 6 Music"),
		},
	}
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func attr(key, value string) protocol.Param { return protocol.Param{Key: key, Value: value} }

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func (r *Reply) emit(name string, attrs ...protocol.Param) {
	r.events = append(r.events, eventLine(name, attrs))
}

// simulateLocked answers cmd from the simulated state
func (s *System) simulateLocked(sess *session, cmd protocol.Command) Reply {
	switch cmd.Group() {
	case "system":
		return s.systemLocked(sess, cmd)
	case "player":
		return s.playerLocked(cmd)
	case "group":
		return s.groupLocked(cmd)
	case "browse":
		return s.browseLocked(cmd)
	}
	return Fail(protocol.ErrorCodeUnrecognizedCommand)
}

func (s *System) systemLocked(sess *session, cmd protocol.Command) Reply {
	switch cmd.Verb() {
	case "register_for_change_events":
		enable, _ := cmd.Param("enable")
		switch enable {
		case "on":
			sess.registered = true
		case "off":
			sess.registered = false
		default:
			return Fail(protocol.ErrorCodeInvalidArguments)
		}
		return OK()

	case "heart_beat":
		return OK()

	case "check_account":
		return OK(s.accountAttrLocked()...)

	case "sign_in":
		un, _ := cmd.Param("un")
		pw, _ := cmd.Param("pw")
		if un != s.username || pw != s.password {
			return Fail(protocol.ErrorCodeInvalidCredentials)
		}
		s.signedIn = true
		r := Reply{Attrs: protocol.Attrs{attr("signed_in", ""), attr("un", un)}}
		r.emit("user_changed", attr("signed_in", ""), attr("un", un))
		return r

	case "sign_out":
		s.signedIn = false
		r := Reply{Attrs: protocol.Attrs{attr("signed_out", "")}}
		r.emit("user_changed", attr("signed_out", ""))
		return r

	case "reboot":
		return Reply{hangup: true}
	}
	return Fail(protocol.ErrorCodeUnrecognizedCommand)
}

func (s *System) accountAttrLocked() protocol.Attrs {
	if s.signedIn {
		return protocol.Attrs{attr("signed_in", ""), attr("un", s.username)}
	}
	return protocol.Attrs{attr("signed_out", "")}
}

func (s *System) playerInfoLocked(d *Device) protocol.PlayerInfo {
	info := d.Info
	info.Group = nil
	for _, g := range s.groups {
		if slices.Contains(g.Members, d.Info.ID) {
			gid := g.ID
			info.Group = &gid
			break
		}
	}
	return info
}

func (s *System) playerLocked(cmd protocol.Command) Reply {
	if cmd.Verb() == "get_players" {
		infos := []protocol.PlayerInfo{}
		for _, id := range s.sortedIDsLocked() {
			infos = append(infos, s.playerInfoLocked(s.devices[id]))
		}
		return Reply{Payload: infos}
	}

	d, fail := s.deviceLocked(cmd)
	if fail != nil {
		return *fail
	}
	pid := attr("pid", d.Info.ID.String())

	switch cmd.Verb() {
	case "get_player_info":
		return Reply{Payload: s.playerInfoLocked(d)}

	case "get_play_state":
		return OK(attr("state", d.State.String()))

	case "set_play_state":
		raw, _ := cmd.Param("state")
		state := protocol.ParsePlayState(raw)
		if state == protocol.PlayStateUnknown {
			return Fail(protocol.ErrorCodeInvalidArguments)
		}
		r := OK()
		if state != d.State {
			d.State = state
			r.emit("player_state_changed", pid, attr("state", state.String()))
		}
		return r

	case "get_now_playing_media":
		np := d.NowPlaying()
		if np == nil {
			return Reply{Payload: struct{}{}}
		}
		return Reply{Payload: np}

	case "get_volume":
		return OK(attr("level", d.Volume.String()))

	case "set_volume":
		level, err := protocol.ParseVolume(paramOr(cmd, "level", ""))
		if err != nil {
			return Fail(protocol.ErrorCodeParamOutOfRange)
		}
		r := OK()
		s.setPlayerVolumeLocked(&r, d, level, d.Mute)
		return r

	case "volume_up", "volume_down":
		step, ok := stepParam(cmd)
		if !ok {
			return Fail(protocol.ErrorCodeParamOutOfRange)
		}
		r := OK()
		s.setPlayerVolumeLocked(&r, d, stepVolume(d.Volume, step, cmd.Verb() == "volume_up"), d.Mute)
		return r

	case "get_mute":
		return OK(attr("state", onOff(d.Mute)))

	case "set_mute", "toggle_mute":
		mute := !d.Mute
		if cmd.Verb() == "set_mute" {
			raw, _ := cmd.Param("state")
			if raw != "on" && raw != "off" {
				return Fail(protocol.ErrorCodeInvalidArguments)
			}
			mute = raw == "on"
		}
		r := OK()
		s.setPlayerVolumeLocked(&r, d, d.Volume, mute)
		return r

	case "get_play_mode":
		return OK(attr("repeat", d.Repeat.String()), attr("shuffle", onOff(d.Shuffle)))

	case "set_play_mode":
		r := OK()
		if raw, ok := cmd.Param("repeat"); ok {
			repeat := protocol.ParseRepeatMode(raw)
			if repeat == protocol.RepeatUnknown {
				return Fail(protocol.ErrorCodeInvalidArguments)
			}
			if repeat != d.Repeat {
				d.Repeat = repeat
				r.emit("repeat_mode_changed", pid, attr("repeat", repeat.String()))
			}
		}
		if raw, ok := cmd.Param("shuffle"); ok {
			if raw != "on" && raw != "off" {
				return Fail(protocol.ErrorCodeInvalidArguments)
			}
			if shuffle := raw == "on"; shuffle != d.Shuffle {
				d.Shuffle = shuffle
				r.emit("shuffle_mode_changed", pid, attr("shuffle", raw))
			}
		}
		return r

	case "get_queue":
		return s.queueReplyLocked(cmd, d)

	case "play_queue":
		qid, ok := intParam(cmd, "qid")
		if !ok || qid < 1 || int(qid) > len(d.Queue) {
			return Fail(protocol.ErrorCodeInvalidID)
		}
		r := OK()
		s.playPositionLocked(&r, d, int(qid))
		return r

	case "remove_from_queue":
		return s.removeFromQueueLocked(cmd, d)

	case "save_queue":
		name := paramOr(cmd, "name", "")
		if name == "" || len(d.Queue) == 0 {
			return Fail(protocol.ErrorCodeInvalidArguments)
		}
		cid := "pl-" + strings.ToLower(strings.ReplaceAll(name, " ", "-"))
		entries := make([]Entry, 0, len(d.Queue))
		for _, t := range d.Queue {
			entries = append(entries, Entry{Container: "no", Playable: "yes", Type: "song", MID: t.MediaID, Name: t.Song, Artist: t.Artist, Album: t.Album})
		}
		s.library["1025/"+cid] = entries
		s.library["1025"] = append(s.library["1025"], Entry{Container: "yes", Playable: "yes", Type: "playlist", CID: cid, Name: name})
		return OK()

	case "clear_queue":
		r := OK()
		d.Queue = nil
		d.Station = nil
		s.playPositionLocked(&r, d, 0)
		r.emit("player_queue_changed", pid)
		return r

	case "move_queue_item":
		return s.moveQueueLocked(cmd, d)

	case "play_next", "play_previous":
		pos := d.Current + 1
		if cmd.Verb() == "play_previous" {
			pos = d.Current - 1
		}
		if pos < 1 || pos > len(d.Queue) {
			return Fail(protocol.ErrorCodeCommandNotExecuted)
		}
		r := OK()
		s.playPositionLocked(&r, d, pos)
		return r

	case "get_quickselects":
		return quickSelectsReply(cmd, d)

	case "set_quickselect":
		slot, ok := quickSelectSlot(cmd)
		np := d.NowPlaying()
		if !ok {
			return Fail(protocol.ErrorCodeInvalidArguments)
		}
		if np == nil {
			return Fail(protocol.ErrorCodeCommandNotExecuted)
		}
		d.QuickSelects[slot-1] = cmp.Or(np.Station, np.Song)
		return OK()

	case "play_quickselect":
		slot, ok := quickSelectSlot(cmd)
		if !ok {
			return Fail(protocol.ErrorCodeInvalidArguments)
		}
		name := d.QuickSelects[slot-1]
		if name == "" {
			return Fail(protocol.ErrorCodeCommandNotExecuted)
		}
		r := OK()
		s.playStationLocked(&r, d, &protocol.NowPlaying{Type: "station", Song: name, Station: name})
		return r

	case "check_update":
		update := "update_none"
		if d.UpdateAvailable {
			update = "update_exist"
		}
		return Reply{Payload: map[string]string{"update": update}}
	}
	return Fail(protocol.ErrorCodeUnrecognizedCommand)
}

func quickSelectSlot(cmd protocol.Command) (int, bool) {
	n, ok := intParam(cmd, "id")
	if !ok || n < 1 || n > 6 {
		return 0, false
	}
	return int(n), true
}

func quickSelectsReply(cmd protocol.Command, d *Device) Reply {
	var out []protocol.QuickSelect
	for i, name := range d.QuickSelects {
		if name == "" {
			name = "QuickSelect" + strconv.Itoa(i+1)
		}
		out = append(out, protocol.QuickSelect{ID: protocol.QuickSelectID(i + 1), Name: name})
	}
	if _, ok := cmd.Param("id"); ok {
		slot, ok := quickSelectSlot(cmd)
		if !ok {
			return Fail(protocol.ErrorCodeInvalidArguments)
		}
		out = out[slot-1 : slot]
	}
	return Reply{Payload: out}
}

func (s *System) deviceLocked(cmd protocol.Command) (*Device, *Reply) {
	id, ok := intParam(cmd, "pid")
	if !ok {
		r := Fail(protocol.ErrorCodeInvalidArguments)
		return nil, &r
	}
	d, ok := s.devices[protocol.PlayerID(id)]
	if !ok {
		r := Fail(protocol.ErrorCodeInvalidID)
		return nil, &r
	}
	return d, nil
}

func (s *System) setPlayerVolumeLocked(r *Reply, d *Device, level protocol.Volume, mute bool) {
	if level == d.Volume && mute == d.Mute {
		return
	}
	d.Volume, d.Mute = level, mute
	r.emit("player_volume_changed",
		attr("pid", d.Info.ID.String()), attr("level", level.String()), attr("mute", onOff(mute)))
}

// playPositionLocked starts queue position pos; 0 stops playback
func (s *System) playPositionLocked(r *Reply, d *Device, pos int) {
	pid := attr("pid", d.Info.ID.String())
	changed := pos != d.Current || d.Station != nil
	d.Current = pos
	d.Station = nil
	if changed {
		r.emit("player_now_playing_changed", pid)
	}
	state := protocol.PlayStatePlay
	if pos == 0 {
		state = protocol.PlayStateStop
	}
	if state != d.State {
		d.State = state
		r.emit("player_state_changed", pid, attr("state", state.String()))
	}
}

func (s *System) queueReplyLocked(cmd protocol.Command, d *Device) Reply {
	start, end := 0, len(d.Queue)-1
	if raw, ok := cmd.Param("range"); ok {
		ids, err := protocol.ParseIDList(raw)
		if err != nil || len(ids) != 2 || ids[0] < 0 || ids[1] < ids[0] {
			return Fail(protocol.ErrorCodeInvalidArguments)
		}
		start, end = int(ids[0]), min(int(ids[1]), len(d.Queue)-1)
	}
	items := []wireQueueItem{}
	for i := start; i <= end && i < len(d.Queue); i++ {
		t := d.Queue[i]
		items = append(items, wireQueueItem{
			Song: t.Song, Album: t.Album, Artist: t.Artist, ImageURL: t.ImageURL,
			QueueID: protocol.QueueID(i + 1), MediaID: t.MediaID, AlbumID: t.AlbumID,
		})
	}
	return Reply{Payload: items}
}

func (s *System) removeFromQueueLocked(cmd protocol.Command, d *Device) Reply {
	ids, err := protocol.ParseIDList(paramOr(cmd, "qid", ""))
	if err != nil {
		return Fail(protocol.ErrorCodeInvalidArguments)
	}
	drop := make(map[int]bool, len(ids))
	for _, id := range ids {
		if id < 1 || int(id) > len(d.Queue) {
			return Fail(protocol.ErrorCodeInvalidID)
		}
		drop[int(id)] = true
	}

	r := OK()
	current := d.Current
	kept := d.Queue[:0:0]
	newCurrent := 0
	for i, t := range d.Queue {
		if drop[i+1] {
			continue
		}
		kept = append(kept, t)
		if i+1 == current {
			newCurrent = len(kept)
		}
	}
	d.Queue = kept
	if newCurrent != 0 {
		// the playing track survived; only its position moved
		d.Current = newCurrent
	} else if current != 0 && d.Station == nil {
		s.playPositionLocked(&r, d, 0)
	}
	r.emit("player_queue_changed", attr("pid", d.Info.ID.String()))
	return r
}

func (s *System) moveQueueLocked(cmd protocol.Command, d *Device) Reply {
	src, err := protocol.ParseIDList(paramOr(cmd, "sqid", ""))
	dst, ok := intParam(cmd, "dqid")
	if err != nil || !ok || dst < 1 || int(dst) > len(d.Queue) {
		return Fail(protocol.ErrorCodeInvalidArguments)
	}
	moving := make(map[int]bool, len(src))
	for _, id := range src {
		if id < 1 || int(id) > len(d.Queue) {
			return Fail(protocol.ErrorCodeInvalidID)
		}
		moving[int(id)] = true
	}

	var picked, rest []Track
	playing := d.NowPlaying()
	for i, t := range d.Queue {
		if moving[i+1] {
			picked = append(picked, t)
		} else {
			rest = append(rest, t)
		}
	}
	at := min(int(dst)-1, len(rest))
	d.Queue = slices.Concat(rest[:at], picked, rest[at:])
	if playing != nil && d.Station == nil {
		d.Current = slices.IndexFunc(d.Queue, func(t Track) bool { return t.MediaID == playing.MediaID }) + 1
	}

	r := OK()
	r.emit("player_queue_changed", attr("pid", d.Info.ID.String()))
	return r
}

func (s *System) groupLocked(cmd protocol.Command) Reply {
	switch cmd.Verb() {
	case "get_groups":
		out := []wireGroup{}
		ids := make([]protocol.GroupID, 0, len(s.groups))
		for id := range s.groups {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			out = append(out, s.wireGroupLocked(s.groups[id]))
		}
		return Reply{Payload: out}

	case "set_group":
		return s.setGroupLocked(cmd)
	}

	id, ok := intParam(cmd, "gid")
	if !ok {
		return Fail(protocol.ErrorCodeInvalidArguments)
	}
	g, ok := s.groups[protocol.GroupID(id)]
	if !ok {
		return Fail(protocol.ErrorCodeInvalidID)
	}

	switch cmd.Verb() {
	case "get_group_info":
		return Reply{Payload: s.wireGroupLocked(g)}

	case "get_volume":
		return OK(attr("level", g.Volume.String()))

	case "set_volume":
		level, err := protocol.ParseVolume(paramOr(cmd, "level", ""))
		if err != nil {
			return Fail(protocol.ErrorCodeParamOutOfRange)
		}
		r := OK()
		s.setGroupVolumeLocked(&r, g, level, g.Mute)
		return r

	case "volume_up", "volume_down":
		step, ok := stepParam(cmd)
		if !ok {
			return Fail(protocol.ErrorCodeParamOutOfRange)
		}
		r := OK()
		s.setGroupVolumeLocked(&r, g, stepVolume(g.Volume, step, cmd.Verb() == "volume_up"), g.Mute)
		return r

	case "get_mute":
		return OK(attr("state", onOff(g.Mute)))

	case "set_mute", "toggle_mute":
		mute := !g.Mute
		if cmd.Verb() == "set_mute" {
			raw, _ := cmd.Param("state")
			if raw != "on" && raw != "off" {
				return Fail(protocol.ErrorCodeInvalidArguments)
			}
			mute = raw == "on"
		}
		r := OK()
		s.setGroupVolumeLocked(&r, g, g.Volume, mute)
		return r
	}
	return Fail(protocol.ErrorCodeUnrecognizedCommand)
}

func (s *System) wireGroupLocked(g *Group) wireGroup {
	wg := wireGroup{Name: g.Name, ID: g.ID}
	for _, id := range g.Members {
		role := "member"
		if id == g.Leader {
			role = "leader"
		}
		name := ""
		if d, ok := s.devices[id]; ok {
			name = d.Info.Name
		}
		wg.Players = append(wg.Players, wireMember{Name: name, ID: id, Role: role})
	}
	return wg
}

func (s *System) setGroupVolumeLocked(r *Reply, g *Group, level protocol.Volume, mute bool) {
	if level == g.Volume && mute == g.Mute {
		return
	}
	g.Volume, g.Mute = level, mute
	r.emit("group_volume_changed",
		attr("gid", g.ID.String()), attr("level", level.String()), attr("mute", onOff(mute)))
}

// setGroupLocked creates, modifies or (with a single pid) dissolves the
// group led by the first pid
func (s *System) setGroupLocked(cmd protocol.Command) Reply {
	raw, err := protocol.ParseIDList(paramOr(cmd, "pid", ""))
	if err != nil || len(raw) == 0 {
		return Fail(protocol.ErrorCodeInvalidArguments)
	}
	ids := make([]protocol.PlayerID, 0, len(raw))
	for _, id := range raw {
		pid := protocol.PlayerID(id)
		if _, ok := s.devices[pid]; !ok {
			return Fail(protocol.ErrorCodeInvalidID)
		}
		if !slices.Contains(ids, pid) {
			ids = append(ids, pid)
		}
	}
	leader := ids[0]
	gid := protocol.GroupID(leader)

	r := OK()
	if len(ids) == 1 {
		if _, ok := s.groups[gid]; !ok {
			return Fail(protocol.ErrorCodeCommandNotExecuted)
		}
		delete(s.groups, gid)
		r.emit("groups_changed")
		return r
	}

	for _, id := range ids {
		s.ungroupLocked(id)
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, s.devices[id].Info.Name)
	}
	g := &Group{ID: gid, Name: strings.Join(names, " + "), Leader: leader, Members: ids, Volume: s.devices[leader].Volume}
	s.groups[gid] = g

	r.Attrs = protocol.Attrs{attr("gid", gid.String()), attr("name", g.Name)}
	r.emit("groups_changed")
	return r
}

// ungroupLocked removes id from any group, deleting groups that would be
// left with a single player. It reports whether anything changed.
func (s *System) ungroupLocked(id protocol.PlayerID) bool {
	changed := false
	for gid, g := range s.groups {
		if !slices.Contains(g.Members, id) {
			continue
		}
		changed = true
		g.Members = slices.DeleteFunc(g.Members, func(m protocol.PlayerID) bool { return m == id })
		if g.Leader == id || len(g.Members) < 2 {
			delete(s.groups, gid)
		}
	}
	return changed
}

func (s *System) browseLocked(cmd protocol.Command) Reply {
	switch cmd.Verb() {
	case "get_music_sources":
		return Reply{Payload: s.sources}

	case "browse":
		sid := paramOr(cmd, "sid", "")
		key := sid
		if cid, ok := cmd.Param("cid"); ok {
			key = sid + "/" + cid
		}
		entries, ok := s.library[key]
		if !ok {
			return Fail(protocol.ErrorCodeInvalidID)
		}
		page, count := window(cmd, entries)
		return Reply{Payload: page, Attrs: protocol.Attrs{attr("returned", itoa(int64(len(page)))), attr("count", itoa(int64(count)))}}

	case "search":
		sid := paramOr(cmd, "sid", "")
		query := strings.ToLower(paramOr(cmd, "search", ""))
		if query == "" {
			return Fail(protocol.ErrorCodeInvalidArguments)
		}
		var hits []Entry
		for key, entries := range s.library {
			if key != sid && !strings.HasPrefix(key, sid+"/") {
				continue
			}
			for _, e := range entries {
				if strings.Contains(strings.ToLower(e.Name), query) || strings.Contains(strings.ToLower(e.Artist), query) {
					hits = append(hits, e)
				}
			}
		}
		slices.SortFunc(hits, func(a, b Entry) int { return strings.Compare(a.Name, b.Name) })
		page, count := window(cmd, hits)
		return Reply{Payload: page, Attrs: protocol.Attrs{attr("returned", itoa(int64(len(page)))), attr("count", itoa(int64(count)))}}

	case "play_stream":
		d, fail := s.deviceLocked(cmd)
		if fail != nil {
			return *fail
		}
		if url, ok := cmd.Param("url"); ok {
			if url == "" {
				return Fail(protocol.ErrorCodeInvalidArguments)
			}
			r := OK()
			s.playStationLocked(&r, d, &protocol.NowPlaying{Type: "station", Song: url, Station: url, MediaID: url})
			return r
		}
		mid := paramOr(cmd, "mid", "")
		e, ok := s.findLocked(mid)
		if !ok {
			return Fail(protocol.ErrorCodeMediaCannotBePlayed)
		}
		sid, _ := intParam(cmd, "sid")
		r := OK()
		s.playStationLocked(&r, d, &protocol.NowPlaying{Type: "station", Song: e.Name, Station: e.Name, MediaID: mid, Source: protocol.SourceID(sid)})
		return r

	case "play_preset":
		d, fail := s.deviceLocked(cmd)
		if fail != nil {
			return *fail
		}
		favorites := s.library[sourceKey(protocol.SourceFavorites)]
		n, ok := intParam(cmd, "preset")
		if !ok || n < 1 || int(n) > len(favorites) {
			return Fail(protocol.ErrorCodeInvalidArguments)
		}
		e := favorites[n-1]
		r := OK()
		s.playStationLocked(&r, d, &protocol.NowPlaying{Type: "station", Song: e.Name, Station: e.Name, MediaID: e.MID, Source: protocol.SourceFavorites})
		return r

	case "play_input":
		d, fail := s.deviceLocked(cmd)
		if fail != nil {
			return *fail
		}
		input := paramOr(cmd, "input", "")
		if !strings.HasPrefix(input, "inputs/") {
			return Fail(protocol.ErrorCodeInvalidArguments)
		}
		if spid, ok := intParam(cmd, "spid"); ok {
			if _, known := s.devices[protocol.PlayerID(spid)]; !known {
				return Fail(protocol.ErrorCodeInvalidID)
			}
		}
		r := OK()
		s.playStationLocked(&r, d, &protocol.NowPlaying{Type: "station", Song: input, Station: input, MediaID: input, Source: protocol.SourceAuxInputs})
		return r

	case "get_source_info":
		src, ok := s.sourceLocked(cmd)
		if !ok {
			return Fail(protocol.ErrorCodeInvalidID)
		}
		return Reply{Payload: src}

	case "get_search_criteria":
		src, ok := s.sourceLocked(cmd)
		if !ok {
			return Fail(protocol.ErrorCodeInvalidID)
		}
		return Reply{Payload: searchCriteria(src.ID)}

	case "rename_playlist", "delete_playlist":
		return s.editPlaylistLocked(cmd)

	case "retrieve_metadata":
		cid := paramOr(cmd, "cid", "")
		if _, ok := s.sourceLocked(cmd); !ok || cid == "" {
			return Fail(protocol.ErrorCodeInvalidArguments)
		}
		return Reply{Payload: []protocol.AlbumMetadata{{
			AlbumID: cid,
			Images: []protocol.AlbumImage{
				{URL: "http://art.example/" + cid + "/300.jpg", Width: 300},
				{URL: "http://art.example/" + cid + "/600.jpg", Width: 600},
			},
		}}}

	case "set_service_option":
		return s.serviceOptionLocked(cmd)

	case "add_to_queue":
		return s.addToQueueLocked(cmd)
	}
	return Fail(protocol.ErrorCodeUnrecognizedCommand)
}

// playStationLocked switches d to a stream outside its queue
func (s *System) playStationLocked(r *Reply, d *Device, np *protocol.NowPlaying) {
	d.Station = np
	r.emit("player_now_playing_changed", attr("pid", d.Info.ID.String()))
	if d.State != protocol.PlayStatePlay {
		d.State = protocol.PlayStatePlay
		r.emit("player_state_changed", attr("pid", d.Info.ID.String()), attr("state", d.State.String()))
	}
}

func sourceKey(sid protocol.SourceID) string { return strconv.Itoa(int(sid)) }

func (s *System) sourceLocked(cmd protocol.Command) (protocol.SourceInfo, bool) {
	sid, ok := intParam(cmd, "sid")
	if !ok {
		return protocol.SourceInfo{}, false
	}
	for _, src := range s.sources {
		if src.ID == protocol.SourceID(sid) {
			return src, true
		}
	}
	return protocol.SourceInfo{}, false
}

func searchCriteria(sid protocol.SourceID) []protocol.SearchCriteria {
	switch sid {
	case protocol.SourceTuneIn:
		return []protocol.SearchCriteria{{Name: "Station", ID: protocol.CriteriaStation, Wildcard: "no", Playable: "yes"}}
	case protocol.SourceLocalMedia, protocol.SourcePlaylists:
		return []protocol.SearchCriteria{
			{Name: "Artist", ID: protocol.CriteriaArtist, Wildcard: "yes", Playable: "no"},
			{Name: "Track", ID: protocol.CriteriaTrack, Wildcard: "yes", Playable: "yes", Prefix: "SEARCHED_TRACKS-"},
		}
	}
	return []protocol.SearchCriteria{}
}

// editPlaylistLocked renames or deletes a saved playlist. Only the playlists
// source holds editable playlists.
func (s *System) editPlaylistLocked(cmd protocol.Command) Reply {
	sid, _ := intParam(cmd, "sid")
	if protocol.SourceID(sid) != protocol.SourcePlaylists {
		return Fail(protocol.ErrorCodeInvalidArguments)
	}
	key := sourceKey(protocol.SourcePlaylists)
	cid := paramOr(cmd, "cid", "")
	at := slices.IndexFunc(s.library[key], func(e Entry) bool { return e.CID == cid && cid != "" })
	if at < 0 {
		return Fail(protocol.ErrorCodeInvalidID)
	}
	if cmd.Verb() == "delete_playlist" {
		s.library[key] = slices.Delete(s.library[key], at, at+1)
		delete(s.library, key+"/"+cid)
		return OK()
	}
	name := paramOr(cmd, "name", "")
	if name == "" {
		return Fail(protocol.ErrorCodeInvalidArguments)
	}
	s.library[key][at].Name = name
	return OK()
}

// serviceOptionLocked checks the parameters each option needs. Only the
// favorites options change the simulated library.
func (s *System) serviceOptionLocked(cmd protocol.Command) Reply {
	if _, ok := s.sourceLocked(cmd); !ok {
		return Fail(protocol.ErrorCodeInvalidID)
	}
	option, ok := intParam(cmd, "option")
	if !ok {
		return Fail(protocol.ErrorCodeInvalidArguments)
	}
	need := map[protocol.ServiceOptionID][]string{
		protocol.OptionAddTrackToLibrary:         {"mid"},
		protocol.OptionAddAlbumToLibrary:         {"cid"},
		protocol.OptionAddStationToLibrary:       {"mid"},
		protocol.OptionAddPlaylistToLibrary:      {"cid", "name"},
		protocol.OptionRemoveTrackFromLibrary:    {"mid"},
		protocol.OptionRemoveAlbumFromLibrary:    {"cid"},
		protocol.OptionRemoveStationFromLibrary:  {"mid"},
		protocol.OptionRemovePlaylistFromLibrary: {"cid"},
		protocol.OptionThumbsUp:                  {"pid"},
		protocol.OptionThumbsDown:                {"pid"},
		protocol.OptionCreateNewStation:          {"name"},
		protocol.OptionAddToFavorites:            {"pid"},
		protocol.OptionRemoveFromFavorites:       {"mid"},
	}
	params, known := need[protocol.ServiceOptionID(option)]
	if !known {
		return Fail(protocol.ErrorCodeInvalidArguments)
	}
	for _, key := range params {
		if v, ok := cmd.Param(key); !ok || v == "" {
			return Fail(protocol.ErrorCodeInvalidArguments)
		}
	}

	favorites := sourceKey(protocol.SourceFavorites)
	switch protocol.ServiceOptionID(option) {
	case protocol.OptionAddToFavorites:
		d, fail := s.deviceLocked(cmd)
		if fail != nil {
			return *fail
		}
		if d.Station == nil || d.Station.MediaID == "" {
			return Fail(protocol.ErrorCodeCommandNotExecuted)
		}
		s.library[favorites] = append(s.library[favorites], Entry{Container: "no", Playable: "yes", Type: "station", MID: d.Station.MediaID, Name: d.Station.Station})
	case protocol.OptionRemoveFromFavorites:
		mid, _ := cmd.Param("mid")
		at := slices.IndexFunc(s.library[favorites], func(e Entry) bool { return e.MID == mid })
		if at < 0 {
			return Fail(protocol.ErrorCodeInvalidID)
		}
		s.library[favorites] = slices.Delete(s.library[favorites], at, at+1)
	}
	return OK()
}

func (s *System) findLocked(mid string) (Entry, bool) {
	for _, entries := range s.library {
		for _, e := range entries {
			if e.MID == mid && mid != "" {
				return e, true
			}
		}
	}
	return Entry{}, false
}

func (s *System) addToQueueLocked(cmd protocol.Command) Reply {
	d, fail := s.deviceLocked(cmd)
	if fail != nil {
		return *fail
	}
	sid := paramOr(cmd, "sid", "")
	aid, _ := intParam(cmd, "aid")

	var tracks []Track
	if mid, ok := cmd.Param("mid"); ok {
		e, found := s.findLocked(mid)
		if !found {
			return Fail(protocol.ErrorCodeInvalidID)
		}
		tracks = append(tracks, entryTrack(e))
	} else {
		entries, ok := s.library[sid+"/"+paramOr(cmd, "cid", "")]
		if !ok {
			return Fail(protocol.ErrorCodeInvalidID)
		}
		for _, e := range entries {
			if e.Playable == "yes" && e.Container != "yes" {
				tracks = append(tracks, entryTrack(e))
			}
		}
	}

	r := OK()
	switch protocol.AddToQueueType(aid) {
	case protocol.PlayNow:
		at := d.Current
		d.Queue = slices.Insert(d.Queue, at, tracks...)
		s.playPositionLocked(&r, d, at+1)
	case protocol.PlayNext:
		d.Queue = slices.Insert(d.Queue, d.Current, tracks...)
	case protocol.AddToEnd:
		d.Queue = append(d.Queue, tracks...)
	case protocol.ReplaceAndPlay:
		d.Queue = tracks
		d.Current = 0
		s.playPositionLocked(&r, d, 1)
	default:
		return Fail(protocol.ErrorCodeInvalidArguments)
	}
	r.emit("player_queue_changed", attr("pid", d.Info.ID.String()))
	return r
}

func entryTrack(e Entry) Track {
	return Track{Song: e.Name, Album: e.Album, Artist: e.Artist, ImageURL: e.ImageURL, MediaID: e.MID}
}

// window applies the optional range=start,end parameter
func window(cmd protocol.Command, entries []Entry) ([]Entry, int) {
	count := len(entries)
	page := entries
	if raw, ok := cmd.Param("range"); ok {
		ids, err := protocol.ParseIDList(raw)
		if err == nil && len(ids) == 2 && ids[0] >= 0 && ids[0] <= ids[1] {
			start := min(int(ids[0]), count)
			end := min(int(ids[1])+1, count)
			page = entries[start:end]
		}
	}
	if page == nil {
		page = []Entry{}
	}
	return page, count
}

func paramOr(cmd protocol.Command, key, fallback string) string {
	if v, ok := cmd.Param(key); ok {
		return v
	}
	return fallback
}

func intParam(cmd protocol.Command, key string) (int64, bool) {
	v, ok := cmd.Param(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	return n, err == nil
}

// stepParam reads the optional 1..10 step; the device default is 5
func stepParam(cmd protocol.Command) (int, bool) {
	if _, ok := cmd.Param("step"); !ok {
		return 5, true
	}
	n, ok := intParam(cmd, "step")
	if !ok || n < 1 || n > 10 {
		return 0, false
	}
	return int(n), true
}

func stepVolume(v protocol.Volume, step int, up bool) protocol.Volume {
	level := int(v) - step
	if up {
		level = int(v) + step
	}
	level = max(0, min(int(protocol.MaxVolume), level))
	return protocol.Volume(level)
}
