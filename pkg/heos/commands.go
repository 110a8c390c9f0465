// ABOUTME: Typed helpers for the command catalogue
// ABOUTME: Each helper sends one command and decodes the reply into Go values
package heos

import (
	"context"

	"github.com/harperreed/heos-go/pkg/protocol"
	"github.com/harperreed/heos-go/pkg/state"
)

type (
	PlayerID = protocol.PlayerID
	GroupID  = protocol.GroupID
	QueueID  = protocol.QueueID
	Volume   = protocol.Volume
	Playable = protocol.Playable
	Range    = protocol.Range
)

func (c *Conn) exec(ctx context.Context, cmd protocol.Command) error {
	_, err := c.Send(ctx, cmd)
	return err
}

// System

// HeartBeat checks the device is responsive
func (c *Conn) HeartBeat(ctx context.Context) error { return c.exec(ctx, protocol.HeartBeat()) }

// CheckAccount reports the HEOS account the device is signed in to
func (c *Conn) CheckAccount(ctx context.Context) (state.Account, error) {
	resp, err := c.Send(ctx, protocol.CheckAccount())
	if err != nil {
		return state.Account{}, err
	}
	return accountOf(resp), nil
}

func (c *Conn) SignIn(ctx context.Context, username, password string) (state.Account, error) {
	resp, err := c.Send(ctx, protocol.SignIn(username, password))
	if err != nil {
		return state.Account{}, err
	}
	return accountOf(resp), nil
}

func (c *Conn) SignOut(ctx context.Context) error { return c.exec(ctx, protocol.SignOut()) }

// Reboot restarts the device; it drops the connection shortly after
func (c *Conn) Reboot(ctx context.Context) error { return c.exec(ctx, protocol.Reboot()) }

func accountOf(resp *protocol.Response) state.Account {
	if resp.Attrs.Has("signed_in") {
		return state.Account{SignedIn: true, Username: resp.Attrs.Value("un")}
	}
	return state.Account{}
}

// Players

func (c *Conn) Players(ctx context.Context) ([]protocol.PlayerInfo, error) {
	resp, err := c.Send(ctx, protocol.GetPlayers())
	if err != nil {
		return nil, err
	}
	return protocol.DecodePlayers(resp)
}

func (c *Conn) PlayerInfo(ctx context.Context, id PlayerID) (protocol.PlayerInfo, error) {
	resp, err := c.Send(ctx, protocol.GetPlayerInfo(id))
	if err != nil {
		return protocol.PlayerInfo{}, err
	}
	return protocol.DecodePlayer(resp)
}

func (c *Conn) PlayState(ctx context.Context, id PlayerID) (protocol.PlayState, error) {
	resp, err := c.Send(ctx, protocol.GetPlayState(id))
	if err != nil {
		return protocol.PlayStateUnknown, err
	}
	return protocol.ParsePlayState(resp.Attrs.Value("state")), nil
}

func (c *Conn) SetPlayState(ctx context.Context, id PlayerID, s protocol.PlayState) error {
	return c.exec(ctx, protocol.SetPlayState(id, s))
}

func (c *Conn) Play(ctx context.Context, id PlayerID) error {
	return c.SetPlayState(ctx, id, protocol.PlayStatePlay)
}

func (c *Conn) Pause(ctx context.Context, id PlayerID) error {
	return c.SetPlayState(ctx, id, protocol.PlayStatePause)
}

func (c *Conn) Stop(ctx context.Context, id PlayerID) error {
	return c.SetPlayState(ctx, id, protocol.PlayStateStop)
}

// NowPlaying returns the current media, or nil when the player is idle
func (c *Conn) NowPlaying(ctx context.Context, id PlayerID) (*protocol.NowPlaying, error) {
	resp, err := c.Send(ctx, protocol.GetNowPlayingMedia(id))
	if err != nil {
		return nil, err
	}
	return protocol.DecodeNowPlaying(resp)
}

func (c *Conn) Volume(ctx context.Context, id PlayerID) (Volume, error) {
	resp, err := c.Send(ctx, protocol.GetVolume(id))
	if err != nil {
		return 0, err
	}
	return protocol.ParseVolume(resp.Attrs.Value("level"))
}

// SetVolume sets an absolute level. Levels above 100 fail locally with
// ErrInvalidVolume before anything is sent.
func (c *Conn) SetVolume(ctx context.Context, id PlayerID, level int) error {
	v, err := protocol.NewVolume(level)
	if err != nil {
		return err
	}
	return c.exec(ctx, protocol.SetVolume(id, v))
}

// VolumeUp raises the volume by step (1..10; 0 uses the device default)
func (c *Conn) VolumeUp(ctx context.Context, id PlayerID, step int) error {
	return c.exec(ctx, protocol.VolumeUp(id, step))
}

func (c *Conn) VolumeDown(ctx context.Context, id PlayerID, step int) error {
	return c.exec(ctx, protocol.VolumeDown(id, step))
}

func (c *Conn) Mute(ctx context.Context, id PlayerID) (bool, error) {
	resp, err := c.Send(ctx, protocol.GetMute(id))
	if err != nil {
		return false, err
	}
	return protocol.ParseMuteState(resp.Attrs.Value("state")) == protocol.MuteOn, nil
}

func (c *Conn) SetMute(ctx context.Context, id PlayerID, mute bool) error {
	return c.exec(ctx, protocol.SetMute(id, mute))
}

func (c *Conn) ToggleMute(ctx context.Context, id PlayerID) error {
	return c.exec(ctx, protocol.ToggleMute(id))
}

func (c *Conn) PlayMode(ctx context.Context, id PlayerID) (protocol.RepeatMode, protocol.ShuffleMode, error) {
	resp, err := c.Send(ctx, protocol.GetPlayMode(id))
	if err != nil {
		return protocol.RepeatUnknown, protocol.ShuffleUnknown, err
	}
	return protocol.ParseRepeatMode(resp.Attrs.Value("repeat")),
		protocol.ParseShuffleMode(resp.Attrs.Value("shuffle")), nil
}

// SetPlayMode changes repeat and shuffle; Unknown values are left alone
func (c *Conn) SetPlayMode(ctx context.Context, id PlayerID, repeat protocol.RepeatMode, shuffle protocol.ShuffleMode) error {
	return c.exec(ctx, protocol.SetPlayMode(id, repeat, shuffle))
}

// Queue

// Queue lists the play queue; r selects a window, nil the whole queue
func (c *Conn) Queue(ctx context.Context, id PlayerID, r *Range) ([]Playable, error) {
	resp, err := c.Send(ctx, protocol.GetQueue(id, r))
	if err != nil {
		return nil, err
	}
	return protocol.DecodeQueue(resp)
}

func (c *Conn) PlayQueue(ctx context.Context, id PlayerID, qid QueueID) error {
	return c.exec(ctx, protocol.PlayQueue(id, qid))
}

func (c *Conn) RemoveFromQueue(ctx context.Context, id PlayerID, qids ...QueueID) error {
	return c.exec(ctx, protocol.RemoveFromQueue(id, qids...))
}

func (c *Conn) SaveQueue(ctx context.Context, id PlayerID, name string) error {
	return c.exec(ctx, protocol.SaveQueue(id, name))
}

func (c *Conn) ClearQueue(ctx context.Context, id PlayerID) error {
	return c.exec(ctx, protocol.ClearQueue(id))
}

// MoveQueueItem moves the src entries so the first lands at dst
func (c *Conn) MoveQueueItem(ctx context.Context, id PlayerID, dst QueueID, src ...QueueID) error {
	return c.exec(ctx, protocol.MoveQueueItem(id, dst, src...))
}

func (c *Conn) PlayNext(ctx context.Context, id PlayerID) error {
	return c.exec(ctx, protocol.PlayNextTrack(id))
}

func (c *Conn) PlayPrevious(ctx context.Context, id PlayerID) error {
	return c.exec(ctx, protocol.PlayPreviousTrack(id))
}

// QuickSelects lists the player's QuickSelect slots
func (c *Conn) QuickSelects(ctx context.Context, id PlayerID) ([]protocol.QuickSelect, error) {
	resp, err := c.Send(ctx, protocol.GetQuickSelects(id, 0))
	if err != nil {
		return nil, err
	}
	return protocol.DecodeQuickSelects(resp)
}

func (c *Conn) SetQuickSelect(ctx context.Context, id PlayerID, slot protocol.QuickSelectID) error {
	return c.exec(ctx, protocol.SetQuickSelect(id, slot))
}

func (c *Conn) PlayQuickSelect(ctx context.Context, id PlayerID, slot protocol.QuickSelectID) error {
	return c.exec(ctx, protocol.PlayQuickSelect(id, slot))
}

// UpdateAvailable reports whether the player has firmware waiting
func (c *Conn) UpdateAvailable(ctx context.Context, id PlayerID) (bool, error) {
	resp, err := c.Send(ctx, protocol.CheckUpdate(id))
	if err != nil {
		return false, err
	}
	return protocol.DecodeUpdate(resp)
}

// Groups

func (c *Conn) Groups(ctx context.Context) ([]protocol.GroupInfo, error) {
	resp, err := c.Send(ctx, protocol.GetGroups())
	if err != nil {
		return nil, err
	}
	return protocol.DecodeGroups(resp)
}

func (c *Conn) GroupInfo(ctx context.Context, id GroupID) (protocol.GroupInfo, error) {
	resp, err := c.Send(ctx, protocol.GetGroupInfo(id))
	if err != nil {
		return protocol.GroupInfo{}, err
	}
	return protocol.DecodeGroup(resp)
}

// SetGroup makes leader lead a group of itself and members. Players in
// other groups move over.
func (c *Conn) SetGroup(ctx context.Context, leader PlayerID, members ...PlayerID) error {
	return c.exec(ctx, protocol.SetGroup(leader, members...))
}

// Ungroup dissolves the group led by leader
func (c *Conn) Ungroup(ctx context.Context, leader PlayerID) error {
	return c.exec(ctx, protocol.SetGroup(leader))
}

func (c *Conn) GroupVolume(ctx context.Context, id GroupID) (Volume, error) {
	resp, err := c.Send(ctx, protocol.GetGroupVolume(id))
	if err != nil {
		return 0, err
	}
	return protocol.ParseVolume(resp.Attrs.Value("level"))
}

func (c *Conn) SetGroupVolume(ctx context.Context, id GroupID, level int) error {
	v, err := protocol.NewVolume(level)
	if err != nil {
		return err
	}
	return c.exec(ctx, protocol.SetGroupVolume(id, v))
}

func (c *Conn) GroupVolumeUp(ctx context.Context, id GroupID, step int) error {
	return c.exec(ctx, protocol.GroupVolumeUp(id, step))
}

func (c *Conn) GroupVolumeDown(ctx context.Context, id GroupID, step int) error {
	return c.exec(ctx, protocol.GroupVolumeDown(id, step))
}

func (c *Conn) GroupMute(ctx context.Context, id GroupID) (bool, error) {
	resp, err := c.Send(ctx, protocol.GetGroupMute(id))
	if err != nil {
		return false, err
	}
	return protocol.ParseMuteState(resp.Attrs.Value("state")) == protocol.MuteOn, nil
}

func (c *Conn) SetGroupMute(ctx context.Context, id GroupID, mute bool) error {
	return c.exec(ctx, protocol.SetGroupMute(id, mute))
}

func (c *Conn) ToggleGroupMute(ctx context.Context, id GroupID) error {
	return c.exec(ctx, protocol.ToggleGroupMute(id))
}

// Browse

func (c *Conn) MusicSources(ctx context.Context) ([]protocol.SourceInfo, error) {
	resp, err := c.Send(ctx, protocol.GetMusicSources())
	if err != nil {
		return nil, err
	}
	return protocol.DecodeSources(resp)
}

// Browse lists a source, or one of its containers when cid is set
func (c *Conn) Browse(ctx context.Context, sid protocol.SourceID, cid string, r *Range) ([]Playable, error) {
	resp, err := c.Send(ctx, protocol.Browse(sid, cid, r))
	if err != nil {
		return nil, err
	}
	return protocol.DecodeBrowse(resp)
}

// BrowseContainer lists the contents of a container returned by Browse
func (c *Conn) BrowseContainer(ctx context.Context, item Playable, r *Range) ([]Playable, error) {
	return c.Browse(ctx, item.Source, item.ContainerID, r)
}

func (c *Conn) Search(ctx context.Context, sid protocol.SourceID, criteria protocol.CriteriaID, query string, r *Range) ([]Playable, error) {
	resp, err := c.Send(ctx, protocol.Search(sid, criteria, query, r))
	if err != nil {
		return nil, err
	}
	return protocol.DecodeSearch(resp)
}

// PlayStream plays a station or other stream item on a player
func (c *Conn) PlayStream(ctx context.Context, id PlayerID, item Playable) error {
	return c.exec(ctx, protocol.PlayStream(id, item))
}

func (c *Conn) AddToQueue(ctx context.Context, id PlayerID, item Playable, how protocol.AddToQueueType) error {
	return c.exec(ctx, protocol.AddToQueue(id, item, how))
}

func (c *Conn) SourceInfo(ctx context.Context, sid protocol.SourceID) (protocol.SourceInfo, error) {
	resp, err := c.Send(ctx, protocol.GetSourceInfo(sid))
	if err != nil {
		return protocol.SourceInfo{}, err
	}
	return protocol.DecodeSource(resp)
}

func (c *Conn) SearchCriteria(ctx context.Context, sid protocol.SourceID) ([]protocol.SearchCriteria, error) {
	resp, err := c.Send(ctx, protocol.GetSearchCriteria(sid))
	if err != nil {
		return nil, err
	}
	return protocol.DecodeSearchCriteria(resp)
}

// PlayPreset plays a HEOS favorite by its 1-based position
func (c *Conn) PlayPreset(ctx context.Context, id PlayerID, preset int) error {
	return c.exec(ctx, protocol.PlayPreset(id, preset))
}

func (c *Conn) PlayInput(ctx context.Context, id, src PlayerID, input string) error {
	return c.exec(ctx, protocol.PlayInput(id, src, input))
}

func (c *Conn) PlayURL(ctx context.Context, id PlayerID, url string) error {
	return c.exec(ctx, protocol.PlayURL(id, url))
}

func (c *Conn) RenamePlaylist(ctx context.Context, sid protocol.SourceID, cid, name string) error {
	return c.exec(ctx, protocol.RenamePlaylist(sid, cid, name))
}

func (c *Conn) DeletePlaylist(ctx context.Context, sid protocol.SourceID, cid string) error {
	return c.exec(ctx, protocol.DeletePlaylist(sid, cid))
}

// AlbumMetadata fetches album art for an album id
func (c *Conn) AlbumMetadata(ctx context.Context, sid protocol.SourceID, cid string) ([]protocol.AlbumMetadata, error) {
	resp, err := c.Send(ctx, protocol.RetrieveMetadata(sid, cid))
	if err != nil {
		return nil, err
	}
	return protocol.DecodeAlbumMetadata(resp)
}

func (c *Conn) SetServiceOption(ctx context.Context, sid protocol.SourceID, opt protocol.ServiceOption) error {
	return c.exec(ctx, protocol.SetServiceOption(sid, opt))
}
