// ABOUTME: Tests for the monitor TUI model
// ABOUTME: Tests snapshot refresh, key handling and rendering
package ui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/heos-go/pkg/protocol"
	"github.com/harperreed/heos-go/pkg/state"
)

type call struct {
	action string
	id     protocol.PlayerID
	arg    any
}

type fakeController struct {
	mu    sync.Mutex
	snap  state.Snapshot
	calls []call
	err   error
}

func (f *fakeController) Snapshot() state.Snapshot { return f.snap }

func (f *fakeController) Progress(id protocol.PlayerID) (state.Progress, bool) {
	if id == 1 {
		return state.Progress{Position: 75 * time.Second, Duration: 200 * time.Second, Interpolated: true}, true
	}
	return state.Progress{}, false
}

func (f *fakeController) record(action string, id protocol.PlayerID, arg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{action, id, arg})
	return f.err
}

func (f *fakeController) SetVolume(_ context.Context, id protocol.PlayerID, level int) error {
	return f.record("volume", id, level)
}

func (f *fakeController) SetMute(_ context.Context, id protocol.PlayerID, mute bool) error {
	return f.record("mute", id, mute)
}

func (f *fakeController) Play(_ context.Context, id protocol.PlayerID) error {
	return f.record("play", id, nil)
}

func (f *fakeController) Pause(_ context.Context, id protocol.PlayerID) error {
	return f.record("pause", id, nil)
}

func (f *fakeController) PlayNext(_ context.Context, id protocol.PlayerID) error {
	return f.record("next", id, nil)
}

func (f *fakeController) PlayPrevious(_ context.Context, id protocol.PlayerID) error {
	return f.record("previous", id, nil)
}

func newFake() *fakeController {
	return &fakeController{snap: state.Snapshot{
		Players: map[protocol.PlayerID]state.Player{
			1: {ID: 1, Name: "Kitchen", Volume: 20, State: protocol.PlayStatePlay, Mute: protocol.MuteOff,
				NowPlaying: &protocol.NowPlaying{Type: "song", Song: "Lovely Day", Artist: "Bill Withers"}},
			2: {ID: 2, Name: "Patio", Volume: 0, State: protocol.PlayStateStop, Mute: protocol.MuteOn},
		},
		Groups: map[protocol.GroupID]state.Group{
			1: {ID: 1, Name: "Kitchen + Patio", Leader: 1, Members: []protocol.PlayerID{1, 2}, Volume: 15},
		},
		Account: state.Account{SignedIn: true, Username: "me@example.com"},
	}}
}

func loaded(t *testing.T, f *fakeController) Model {
	t.Helper()
	m, _ := NewModel(f, "192.168.1.41:1255").Update(RefreshMsg{})
	return m.(Model)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends a key and runs the resulting command
func press(t *testing.T, m Model, k string) (Model, tea.Msg) {
	t.Helper()
	next, cmd := m.Update(key(k))
	var msg tea.Msg
	if cmd != nil {
		msg = cmd()
	}
	return next.(Model), msg
}

func TestRefreshSelectsFirstPlayer(t *testing.T) {
	m := loaded(t, newFake())

	require.Len(t, m.players, 2)
	assert.Equal(t, protocol.PlayerID(1), m.selected)
	assert.True(t, m.progress[1].Interpolated)
}

func TestKeys(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		want call
	}{
		{"volume up", []string{"up"}, call{"volume", 1, 25}},
		{"volume down", []string{"down"}, call{"volume", 1, 15}},
		{"volume floor", []string{"tab", "down"}, call{"volume", 2, 0}},
		{"pause while playing", []string{" "}, call{"pause", 1, nil}},
		{"play while stopped", []string{"tab", " "}, call{"play", 2, nil}},
		{"next", []string{"n"}, call{"next", 1, nil}},
		{"previous", []string{"p"}, call{"previous", 1, nil}},
		{"mute", []string{"m"}, call{"mute", 1, true}},
		{"unmute", []string{"tab", "m"}, call{"mute", 2, false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFake()
			m := loaded(t, f)
			for _, k := range tt.keys {
				m, _ = press(t, m, k)
			}
			require.Len(t, f.calls, 1)
			assert.Equal(t, tt.want, f.calls[0])
		})
	}
}

func TestTabWraps(t *testing.T) {
	m := loaded(t, newFake())
	m, _ = press(t, m, "tab")
	assert.Equal(t, protocol.PlayerID(2), m.selected)
	m, _ = press(t, m, "tab")
	assert.Equal(t, protocol.PlayerID(1), m.selected)
}

func TestQuit(t *testing.T) {
	m, msg := press(t, loaded(t, newFake()), "q")
	assert.True(t, m.quitting)
	assert.Equal(t, tea.QuitMsg{}, msg)
}

func TestCommandErrorIsShown(t *testing.T) {
	f := newFake()
	f.err = errors.New("player/set_volume: ID not valid")
	m := loaded(t, f)

	m, msg := press(t, m, "up")
	next, _ := m.Update(msg)
	m = next.(Model)

	require.Error(t, m.lastErr)
	assert.Contains(t, m.View(), "ID not valid")
}

func TestKeysWithoutPlayersDoNothing(t *testing.T) {
	f := &fakeController{}
	m := loaded(t, f)

	m, msg := press(t, m, "up")
	assert.Nil(t, msg)
	assert.Empty(t, f.calls)
	assert.Contains(t, m.View(), "No players")
}

func TestView(t *testing.T) {
	m := loaded(t, newFake())
	next, _ := m.Update(ConnStateMsg{State: "stateful"})
	view := next.(Model).View()

	for _, want := range []string{
		"192.168.1.41:1255",
		"me@example.com",
		"Kitchen",
		"Patio",
		"Bill Withers - Lovely Day",
		"1:15 / 3:20",
		"Kitchen + Patio: Kitchen, Patio",
		"muted",
	} {
		assert.Contains(t, view, want)
	}
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "█████░░░░░", renderBar(50, 100, 10))
	assert.Equal(t, "ab...", truncate("abcdefgh", 5))
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "0:07", clockTime(7*time.Second))
	assert.Equal(t, "12:05", clockTime(12*time.Minute+5*time.Second))
	assert.Equal(t, "Jazz24", describe(&protocol.NowPlaying{Type: "station", Station: "Jazz24", Song: "x"}))
}
