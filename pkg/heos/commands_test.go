// ABOUTME: Tests for the typed command helpers
// ABOUTME: Exercises playback, queue, grouping, browse and account calls end to end
package heos

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/heos-go/pkg/mock"
	"github.com/harperreed/heos-go/pkg/protocol"
)

func TestPlayerHelpers(t *testing.T) {
	sys := mock.New()
	c := connect(t, sys, Config{})
	ctx := context.Background()

	players, err := c.Players(ctx)
	require.NoError(t, err)
	require.Len(t, players, 3)
	assert.Equal(t, "Kitchen", players[0].Name)

	info, err := c.PlayerInfo(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Den", info.Name)

	require.NoError(t, c.VolumeUp(ctx, 2, 0))
	level, err := c.Volume(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, Volume(25), level)

	require.NoError(t, c.VolumeDown(ctx, 2, 10))
	level, err = c.Volume(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, Volume(15), level)

	require.NoError(t, c.SetMute(ctx, 2, true))
	muted, err := c.Mute(ctx, 2)
	require.NoError(t, err)
	assert.True(t, muted)
	require.NoError(t, c.ToggleMute(ctx, 2))
	muted, err = c.Mute(ctx, 2)
	require.NoError(t, err)
	assert.False(t, muted)

	require.NoError(t, c.SetPlayMode(ctx, 2, protocol.RepeatAll, protocol.ShuffleOn))
	repeat, shuffle, err := c.PlayMode(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, protocol.RepeatAll, repeat)
	assert.Equal(t, protocol.ShuffleOn, shuffle)

	np, err := c.NowPlaying(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, np)
}

func TestQueueHelpers(t *testing.T) {
	sys := mock.New()
	c := connect(t, sys, Config{})
	ctx := context.Background()

	lists, err := c.Browse(ctx, protocol.SourcePlaylists, "", nil)
	require.NoError(t, err)
	require.NotEmpty(t, lists)
	tracks, err := c.BrowseContainer(ctx, lists[0], nil)
	require.NoError(t, err)
	require.Len(t, tracks, 3)

	require.NoError(t, c.AddToQueue(ctx, 1, lists[0], protocol.ReplaceAndPlay))
	queue, err := c.Queue(ctx, 1, nil)
	require.NoError(t, err)
	require.Len(t, queue, 3)
	assert.Equal(t, tracks[0].Name, queue[0].Name)

	state, err := c.PlayState(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, protocol.PlayStatePlay, state)

	require.NoError(t, c.PlayNext(ctx, 1))
	np, err := c.NowPlaying(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, np)
	assert.Equal(t, tracks[1].Name, np.Song)

	require.NoError(t, c.PlayPrevious(ctx, 1))
	require.NoError(t, c.PlayQueue(ctx, 1, 3))
	np, err = c.NowPlaying(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, tracks[2].Name, np.Song)

	window, err := c.Queue(ctx, 1, &Range{Start: 1, End: 1})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, tracks[1].Name, window[0].Name)

	require.NoError(t, c.MoveQueueItem(ctx, 1, 1, 3))
	queue, err = c.Queue(ctx, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, tracks[2].Name, queue[0].Name)

	require.NoError(t, c.RemoveFromQueue(ctx, 1, 1))
	queue, err = c.Queue(ctx, 1, nil)
	require.NoError(t, err)
	assert.Len(t, queue, 2)

	require.NoError(t, c.SaveQueue(ctx, 1, "Leftovers"))
	require.NoError(t, c.ClearQueue(ctx, 1))
	queue, err = c.Queue(ctx, 1, nil)
	require.NoError(t, err)
	assert.Empty(t, queue)

	require.NoError(t, c.Stop(ctx, 1))
}

func TestGroupHelpers(t *testing.T) {
	sys := mock.New()
	c := connect(t, sys, Config{})
	ctx := context.Background()

	require.NoError(t, c.SetGroup(ctx, 1, 2, 3))
	groups, err := c.Groups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, PlayerID(1), groups[0].Leader())
	assert.ElementsMatch(t, []PlayerID{1, 2, 3}, groups[0].MemberIDs())

	gid := groups[0].ID
	info, err := c.GroupInfo(ctx, gid)
	require.NoError(t, err)
	assert.Equal(t, groups[0].Name, info.Name)

	require.NoError(t, c.SetGroupVolume(ctx, gid, 40))
	level, err := c.GroupVolume(ctx, gid)
	require.NoError(t, err)
	assert.Equal(t, Volume(40), level)
	require.NoError(t, c.GroupVolumeUp(ctx, gid, 5))
	require.NoError(t, c.GroupVolumeDown(ctx, gid, 10))
	level, err = c.GroupVolume(ctx, gid)
	require.NoError(t, err)
	assert.Equal(t, Volume(35), level)
	assert.ErrorIs(t, c.SetGroupVolume(ctx, gid, 300), ErrInvalidVolume)

	require.NoError(t, c.SetGroupMute(ctx, gid, true))
	muted, err := c.GroupMute(ctx, gid)
	require.NoError(t, err)
	assert.True(t, muted)
	require.NoError(t, c.ToggleGroupMute(ctx, gid))
	muted, err = c.GroupMute(ctx, gid)
	require.NoError(t, err)
	assert.False(t, muted)

	require.NoError(t, c.Ungroup(ctx, 1))
	groups, err = c.Groups(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestBrowseHelpers(t *testing.T) {
	sys := mock.New()
	c := connect(t, sys, Config{})
	ctx := context.Background()

	sources, err := c.MusicSources(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, sources)

	hits, err := c.Search(ctx, protocol.SourceTuneIn, protocol.CriteriaStation, "kexp", nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "KEXP 90.3", hits[0].Name)

	require.NoError(t, c.PlayStream(ctx, 2, hits[0]))
	np, err := c.NowPlaying(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, np)
	assert.Equal(t, "KEXP 90.3", np.Station)

	_, err = c.Browse(ctx, protocol.SourceID(4242), "", nil)
	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, protocol.ErrorCodeInvalidID, devErr.Code)
}

func TestCatalogueHelpers(t *testing.T) {
	sys := mock.New()
	c := connect(t, sys, Config{})
	ctx := context.Background()

	src, err := c.SourceInfo(ctx, protocol.SourceFavorites)
	require.NoError(t, err)
	assert.Equal(t, "Favorites", src.Name)

	criteria, err := c.SearchCriteria(ctx, protocol.SourceTuneIn)
	require.NoError(t, err)
	require.Len(t, criteria, 1)
	assert.Equal(t, protocol.CriteriaStation, criteria[0].ID)

	require.NoError(t, c.PlayPreset(ctx, 1, 1))
	np, err := c.NowPlaying(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, np)
	assert.Equal(t, "Jazz24", np.Station)

	require.NoError(t, c.SetQuickSelect(ctx, 1, 4))
	slots, err := c.QuickSelects(ctx, 1)
	require.NoError(t, err)
	require.Len(t, slots, 6)
	assert.Equal(t, "Jazz24", slots[3].Name)

	require.NoError(t, c.PlayInput(ctx, 1, 2, "inputs/optical_in_1"))
	np, err = c.NowPlaying(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "inputs/optical_in_1", np.MediaID)
	require.NoError(t, c.PlayQuickSelect(ctx, 1, 4))
	np, err = c.NowPlaying(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Jazz24", np.Station)

	require.NoError(t, c.PlayURL(ctx, 3, "http://radio.example/live"))
	d, _ := sys.Device(3)
	assert.Equal(t, "http://radio.example/live", d.NowPlaying().MediaID)

	waiting, err := c.UpdateAvailable(ctx, 1)
	require.NoError(t, err)
	assert.False(t, waiting)

	require.NoError(t, c.RenamePlaylist(ctx, protocol.SourcePlaylists, "pl-morning", "Breakfast"))
	lists, err := c.Browse(ctx, protocol.SourcePlaylists, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "Breakfast", lists[0].Name)
	require.NoError(t, c.DeletePlaylist(ctx, protocol.SourcePlaylists, "pl-morning"))
	err = c.DeletePlaylist(ctx, protocol.SourcePlaylists, "pl-morning")
	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, protocol.ErrorCodeInvalidID, devErr.Code)

	meta, err := c.AlbumMetadata(ctx, protocol.SourceLocalMedia, "a-1")
	require.NoError(t, err)
	require.Len(t, meta, 1)

	require.NoError(t, c.SetServiceOption(ctx, protocol.SourceFavorites, protocol.ServiceOption{ID: protocol.OptionAddToFavorites, Player: 3}))
	favorites, err := c.Browse(ctx, protocol.SourceFavorites, "", nil)
	require.NoError(t, err)
	assert.Len(t, favorites, 3)
}

func TestAccountHelpers(t *testing.T) {
	sys := mock.New(mock.WithAccount("me@example.com", "pw", false))
	c := connect(t, sys, Config{})
	ctx := context.Background()

	acct, err := c.CheckAccount(ctx)
	require.NoError(t, err)
	assert.False(t, acct.SignedIn)

	_, err = c.SignIn(ctx, "me@example.com", "wrong")
	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, protocol.ErrorCodeInvalidCredentials, devErr.Code)

	acct, err = c.SignIn(ctx, "me@example.com", "pw")
	require.NoError(t, err)
	assert.True(t, acct.SignedIn)
	assert.Equal(t, "me@example.com", acct.Username)

	require.NoError(t, c.SignOut(ctx))
	acct, err = c.CheckAccount(ctx)
	require.NoError(t, err)
	assert.False(t, acct.SignedIn)
}

func TestRebootEndsConnection(t *testing.T) {
	sys := mock.New()
	c := connect(t, sys, Config{})

	require.NoError(t, c.Reboot(context.Background()))
	<-c.Done()
	assert.Equal(t, StateDisconnected, c.State())
}
