// ABOUTME: Typed constructors for the HEOS command catalogue
// ABOUTME: system, player, group and browse commands with their wire parameters
package protocol

import (
	"strconv"
	"strings"
)

func p(key, value string) Param { return Param{Key: key, Value: value} }

func pid(id PlayerID) Param { return p("pid", id.String()) }

func gid(id GroupID) Param { return p("gid", id.String()) }

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func joinIDs[T ~int64](ids []T) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(int64(id), 10)
	}
	return strings.Join(parts, ",")
}

// Range selects a window of a list reply; both ends are inclusive and 0-based
type Range struct {
	Start int
	End   int
}

func (r Range) param() Param {
	return p("range", strconv.Itoa(r.Start)+","+strconv.Itoa(r.End))
}

// system

// RegisterForChangeEvents turns unsolicited events on or off for this connection
func RegisterForChangeEvents(enable bool) Command {
	return NewCommand("system", "register_for_change_events", p("enable", onOff(enable)))
}

func CheckAccount() Command { return NewCommand("system", "check_account") }

func HeartBeat() Command { return NewCommand("system", "heart_beat") }

func SignIn(username, password string) Command {
	return NewCommand("system", "sign_in", p("un", username), p("pw", password))
}

func SignOut() Command { return NewCommand("system", "sign_out") }

func Reboot() Command { return NewCommand("system", "reboot") }

// player

func GetPlayers() Command { return NewCommand("player", "get_players") }

func GetPlayerInfo(id PlayerID) Command { return NewCommand("player", "get_player_info", pid(id)) }

func GetPlayState(id PlayerID) Command { return NewCommand("player", "get_play_state", pid(id)) }

// SetPlayState panics on PlayStateUnknown
func SetPlayState(id PlayerID, state PlayState) Command {
	if state == PlayStateUnknown {
		panic("protocol: cannot set an unknown play state")
	}
	return NewCommand("player", "set_play_state", pid(id), p("state", state.String()))
}

func GetNowPlayingMedia(id PlayerID) Command {
	return NewCommand("player", "get_now_playing_media", pid(id))
}

func GetVolume(id PlayerID) Command { return NewCommand("player", "get_volume", pid(id)) }

func SetVolume(id PlayerID, level Volume) Command {
	return NewCommand("player", "set_volume", pid(id), p("level", level.String()))
}

// VolumeUp raises the volume by step (1..10); zero uses the device default of 5
func VolumeUp(id PlayerID, step int) Command {
	return volumeStep(NewCommand("player", "volume_up", pid(id)), step)
}

// VolumeDown lowers the volume by step (1..10); zero uses the device default of 5
func VolumeDown(id PlayerID, step int) Command {
	return volumeStep(NewCommand("player", "volume_down", pid(id)), step)
}

func volumeStep(cmd Command, step int) Command {
	if step <= 0 {
		return cmd
	}
	return cmd.With("step", strconv.Itoa(min(step, 10)))
}

func GetMute(id PlayerID) Command { return NewCommand("player", "get_mute", pid(id)) }

func SetMute(id PlayerID, mute bool) Command {
	return NewCommand("player", "set_mute", pid(id), p("state", onOff(mute)))
}

func ToggleMute(id PlayerID) Command { return NewCommand("player", "toggle_mute", pid(id)) }

func GetPlayMode(id PlayerID) Command { return NewCommand("player", "get_play_mode", pid(id)) }

// SetPlayMode sends only the settings that are not Unknown
func SetPlayMode(id PlayerID, repeat RepeatMode, shuffle ShuffleMode) Command {
	cmd := NewCommand("player", "set_play_mode", pid(id))
	if repeat != RepeatUnknown {
		cmd = cmd.With("repeat", repeat.String())
	}
	if shuffle != ShuffleUnknown {
		cmd = cmd.With("shuffle", shuffle.String())
	}
	return cmd
}

// GetQueue requests the whole queue, or a window of it when r is non-nil
func GetQueue(id PlayerID, r *Range) Command {
	cmd := NewCommand("player", "get_queue", pid(id))
	if r != nil {
		rp := r.param()
		cmd = cmd.With(rp.Key, rp.Value)
	}
	return cmd
}

func PlayQueue(id PlayerID, qid QueueID) Command {
	return NewCommand("player", "play_queue", pid(id), p("qid", strconv.FormatInt(int64(qid), 10)))
}

func RemoveFromQueue(id PlayerID, qids ...QueueID) Command {
	return NewCommand("player", "remove_from_queue", pid(id), p("qid", joinIDs(qids)))
}

func SaveQueue(id PlayerID, name string) Command {
	return NewCommand("player", "save_queue", pid(id), p("name", name))
}

func ClearQueue(id PlayerID) Command { return NewCommand("player", "clear_queue", pid(id)) }

func MoveQueueItem(id PlayerID, dst QueueID, src ...QueueID) Command {
	return NewCommand("player", "move_queue_item", pid(id),
		p("sqid", joinIDs(src)), p("dqid", strconv.FormatInt(int64(dst), 10)))
}

func PlayNextTrack(id PlayerID) Command { return NewCommand("player", "play_next", pid(id)) }

func PlayPreviousTrack(id PlayerID) Command { return NewCommand("player", "play_previous", pid(id)) }

// group

func GetGroups() Command { return NewCommand("group", "get_groups") }

func GetGroupInfo(id GroupID) Command { return NewCommand("group", "get_group_info", gid(id)) }

// SetGroup makes the first player the leader of a group of all listed
// players. A single id ungroups that leader's group.
func SetGroup(leader PlayerID, members ...PlayerID) Command {
	ids := append([]PlayerID{leader}, members...)
	return NewCommand("group", "set_group", p("pid", joinIDs(ids)))
}

func GetGroupVolume(id GroupID) Command { return NewCommand("group", "get_volume", gid(id)) }

func SetGroupVolume(id GroupID, level Volume) Command {
	return NewCommand("group", "set_volume", gid(id), p("level", level.String()))
}

func GroupVolumeUp(id GroupID, step int) Command {
	return volumeStep(NewCommand("group", "volume_up", gid(id)), step)
}

func GroupVolumeDown(id GroupID, step int) Command {
	return volumeStep(NewCommand("group", "volume_down", gid(id)), step)
}

func GetGroupMute(id GroupID) Command { return NewCommand("group", "get_mute", gid(id)) }

func SetGroupMute(id GroupID, mute bool) Command {
	return NewCommand("group", "set_mute", gid(id), p("state", onOff(mute)))
}

func ToggleGroupMute(id GroupID) Command { return NewCommand("group", "toggle_mute", gid(id)) }

// GetQuickSelects lists a player's QuickSelect slots, or one slot when
// slot is non-zero
func GetQuickSelects(id PlayerID, slot QuickSelectID) Command {
	cmd := NewCommand("player", "get_quickselects", pid(id))
	if slot != 0 {
		cmd = cmd.With("id", strconv.FormatInt(int64(slot), 10))
	}
	return cmd
}

// SetQuickSelect stores what the player is playing in a slot
func SetQuickSelect(id PlayerID, slot QuickSelectID) Command {
	return NewCommand("player", "set_quickselect", pid(id), p("id", strconv.FormatInt(int64(slot), 10)))
}

func PlayQuickSelect(id PlayerID, slot QuickSelectID) Command {
	return NewCommand("player", "play_quickselect", pid(id), p("id", strconv.FormatInt(int64(slot), 10)))
}

func CheckUpdate(id PlayerID) Command { return NewCommand("player", "check_update", pid(id)) }

// browse

func GetMusicSources() Command { return NewCommand("browse", "get_music_sources") }

// Browse lists a source, or a container within it when cid is set
func Browse(sid SourceID, cid string, r *Range) Command {
	cmd := NewCommand("browse", "browse", p("sid", strconv.Itoa(int(sid))))
	if cid != "" {
		cmd = cmd.With("cid", cid)
	}
	if r != nil {
		rp := r.param()
		cmd = cmd.With(rp.Key, rp.Value)
	}
	return cmd
}

func Search(sid SourceID, criteria CriteriaID, query string, r *Range) Command {
	cmd := NewCommand("browse", "search",
		p("sid", strconv.Itoa(int(sid))), p("search", query), p("scid", strconv.Itoa(int(criteria))))
	if r != nil {
		rp := r.param()
		cmd = cmd.With(rp.Key, rp.Value)
	}
	return cmd
}

// PlayStream plays a station on a player
func PlayStream(id PlayerID, item Playable) Command {
	cmd := NewCommand("browse", "play_stream", pid(id), p("sid", strconv.Itoa(int(item.Source))))
	if item.ContainerID != "" {
		cmd = cmd.With("cid", item.ContainerID)
	}
	return cmd.With("mid", item.MediaID).With("name", item.Name)
}

// AddToQueue queues a track or a whole container. Containers are sent by
// cid alone; tracks carry their mid.
func AddToQueue(id PlayerID, item Playable, how AddToQueueType) Command {
	cmd := NewCommand("browse", "add_to_queue", pid(id), p("sid", strconv.Itoa(int(item.Source))))
	if item.ContainerID != "" {
		cmd = cmd.With("cid", item.ContainerID)
	}
	if item.MediaID != "" && !item.Container {
		cmd = cmd.With("mid", item.MediaID)
	}
	return cmd.With("aid", strconv.Itoa(int(how)))
}

func GetSourceInfo(sid SourceID) Command {
	return NewCommand("browse", "get_source_info", sidParam(sid))
}

func GetSearchCriteria(sid SourceID) Command {
	return NewCommand("browse", "get_search_criteria", sidParam(sid))
}

// PlayPreset plays a HEOS favorite by its 1-based position
func PlayPreset(id PlayerID, preset int) Command {
	return NewCommand("browse", "play_preset", pid(id), p("preset", strconv.Itoa(preset)))
}

// PlayInput plays an input such as "inputs/aux_in_1". A non-zero src plays
// the input of another player.
func PlayInput(id, src PlayerID, input string) Command {
	cmd := NewCommand("browse", "play_input", pid(id))
	if src != 0 && src != id {
		cmd = cmd.With("spid", src.String())
	}
	return cmd.With("input", input)
}

// PlayURL plays a remote stream
func PlayURL(id PlayerID, url string) Command {
	return NewCommand("browse", "play_stream", pid(id), p("url", url))
}

func RenamePlaylist(sid SourceID, cid, name string) Command {
	return NewCommand("browse", "rename_playlist", sidParam(sid), p("cid", cid), p("name", name))
}

func DeletePlaylist(sid SourceID, cid string) Command {
	return NewCommand("browse", "delete_playlist", sidParam(sid), p("cid", cid))
}

// RetrieveMetadata asks for album art of an album id
func RetrieveMetadata(sid SourceID, cid string) Command {
	return NewCommand("browse", "retrieve_metadata", sidParam(sid), p("cid", cid))
}

// ServiceOption is one browse/set_service_option request. Only the fields
// the option needs are sent.
type ServiceOption struct {
	ID        ServiceOptionID
	Player    PlayerID
	MediaID   string
	Container string
	Name      string
	Criteria  CriteriaID
	Range     *Range
}

func SetServiceOption(sid SourceID, opt ServiceOption) Command {
	cmd := NewCommand("browse", "set_service_option", sidParam(sid), p("option", strconv.Itoa(int(opt.ID))))
	if opt.Player != 0 {
		cmd = cmd.With("pid", opt.Player.String())
	}
	if opt.Container != "" {
		cmd = cmd.With("cid", opt.Container)
	}
	if opt.MediaID != "" {
		cmd = cmd.With("mid", opt.MediaID)
	}
	if opt.Name != "" {
		cmd = cmd.With("name", opt.Name)
	}
	if opt.Criteria != CriteriaUnknown {
		cmd = cmd.With("scid", strconv.Itoa(int(opt.Criteria)))
	}
	if opt.Range != nil {
		rp := opt.Range.param()
		cmd = cmd.With(rp.Key, rp.Value)
	}
	return cmd
}

func sidParam(sid SourceID) Param { return p("sid", strconv.Itoa(int(sid))) }
