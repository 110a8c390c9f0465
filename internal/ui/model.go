// ABOUTME: Bubbletea model for the monitor TUI
// ABOUTME: Renders players, groups and progress, and maps keys to commands
package ui

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/heos-go/internal/version"
	"github.com/harperreed/heos-go/pkg/protocol"
	"github.com/harperreed/heos-go/pkg/state"
)

// volumeStep is the change per arrow key press
const volumeStep = 5

// Controller is the part of a connection the monitor drives
type Controller interface {
	Snapshot() state.Snapshot
	Progress(id protocol.PlayerID) (state.Progress, bool)

	SetVolume(ctx context.Context, id protocol.PlayerID, level int) error
	SetMute(ctx context.Context, id protocol.PlayerID, mute bool) error
	Play(ctx context.Context, id protocol.PlayerID) error
	Pause(ctx context.Context, id protocol.PlayerID) error
	PlayNext(ctx context.Context, id protocol.PlayerID) error
	PlayPrevious(ctx context.Context, id protocol.PlayerID) error
}

// Model represents the TUI state
type Model struct {
	ctrl    Controller
	timeout time.Duration

	addr      string
	connState string

	snap     state.Snapshot
	players  []state.Player
	progress map[protocol.PlayerID]state.Progress
	selected protocol.PlayerID

	lastErr  error
	quitting bool

	width  int
	height int
}

// RefreshMsg asks the model to re-read the snapshot
type RefreshMsg struct{}

// ConnStateMsg reports a connection state change
type ConnStateMsg struct {
	State string
}

type tickMsg time.Time

type commandDoneMsg struct {
	action string
	err    error
}

// NewModel creates a model over ctrl
func NewModel(ctrl Controller, addr string) Model {
	return Model{
		ctrl:      ctrl,
		timeout:   5 * time.Second,
		addr:      addr,
		connState: "stateful",
		progress:  make(map[protocol.PlayerID]state.Progress),
	}
}

// Init starts the progress ticker
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickEvery(), refresh)
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func refresh() tea.Msg { return RefreshMsg{} }

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		m.reload()
		return m, tickEvery()
	case RefreshMsg:
		m.reload()
	case ConnStateMsg:
		m.connState = msg.State
	case commandDoneMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.reload()
		}
	}
	return m, nil
}

// reload copies the current snapshot and progress estimates
func (m *Model) reload() {
	if m.ctrl == nil {
		return
	}
	m.snap = m.ctrl.Snapshot()
	m.players = m.snap.SortedPlayers()
	clear(m.progress)
	for _, p := range m.players {
		if pr, ok := m.ctrl.Progress(p.ID); ok {
			m.progress[p.ID] = pr
		}
	}
	if _, ok := m.snap.Player(m.selected); !ok && len(m.players) > 0 {
		m.selected = m.players[0].ID
	}
}

func (m Model) current() (state.Player, bool) {
	return m.snap.Player(m.selected)
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "tab":
		m.selectNext(1)
		return m, nil
	case "shift+tab":
		m.selectNext(-1)
		return m, nil
	}

	p, ok := m.current()
	if !ok || m.ctrl == nil {
		return m, nil
	}

	switch msg.String() {
	case "up":
		level := min(int(p.Volume)+volumeStep, int(protocol.MaxVolume))
		return m, m.run("volume", func(ctx context.Context) error { return m.ctrl.SetVolume(ctx, p.ID, level) })
	case "down":
		level := max(int(p.Volume)-volumeStep, 0)
		return m, m.run("volume", func(ctx context.Context) error { return m.ctrl.SetVolume(ctx, p.ID, level) })
	case " ", "space":
		if p.State == protocol.PlayStatePlay {
			return m, m.run("pause", func(ctx context.Context) error { return m.ctrl.Pause(ctx, p.ID) })
		}
		return m, m.run("play", func(ctx context.Context) error { return m.ctrl.Play(ctx, p.ID) })
	case "n":
		return m, m.run("next", func(ctx context.Context) error { return m.ctrl.PlayNext(ctx, p.ID) })
	case "p":
		return m, m.run("previous", func(ctx context.Context) error { return m.ctrl.PlayPrevious(ctx, p.ID) })
	case "m":
		mute := p.Mute != protocol.MuteOn
		return m, m.run("mute", func(ctx context.Context) error { return m.ctrl.SetMute(ctx, p.ID, mute) })
	}
	return m, nil
}

func (m *Model) selectNext(dir int) {
	if len(m.players) == 0 {
		return
	}
	i := 0
	for j, p := range m.players {
		if p.ID == m.selected {
			i = j
			break
		}
	}
	i = (i + dir + len(m.players)) % len(m.players)
	m.selected = m.players[i].ID
}

// run executes a command off the UI goroutine
func (m Model) run(action string, fn func(ctx context.Context) error) tea.Cmd {
	timeout := m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return commandDoneMsg{action: action, err: fn(ctx)}
	}
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1)
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	groupStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle     = lipgloss.NewStyle().Faint(true)
)

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Disconnecting...\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(version.String()))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Device: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%s (%s)", m.addr, m.connState)))
	b.WriteString("\n")
	if m.snap.Account.SignedIn {
		b.WriteString(headerStyle.Render("Account: "))
		b.WriteString(valueStyle.Render(m.snap.Account.Username))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(headerStyle.Render(fmt.Sprintf("Players (%d)", len(m.players))))
	b.WriteString("\n\n")
	if len(m.players) == 0 {
		b.WriteString(valueStyle.Render("  No players"))
		b.WriteString("\n")
	}
	for _, p := range m.players {
		b.WriteString(m.renderPlayer(p))
	}

	if len(m.snap.Groups) > 0 {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render("Groups"))
		b.WriteString("\n")
		for _, gid := range slices.Sorted(maps.Keys(m.snap.Groups)) {
			g := m.snap.Groups[gid]
			b.WriteString(groupStyle.Render(fmt.Sprintf("  %s: %s (vol %d)", g.Name, m.memberNames(g), g.Volume)))
			b.WriteString("\n")
		}
	}

	if m.lastErr != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Error: " + m.lastErr.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓:Volume  space:Play/Pause  n/p:Next/Prev  m:Mute  tab:Select  q:Quit"))
	return b.String()
}

func (m Model) renderPlayer(p state.Player) string {
	marker := "  "
	name := valueStyle.Render(p.Name)
	if p.ID == m.selected {
		marker = "▶ "
		name = selectedStyle.Render(p.Name)
	}
	if p.Placeholder && p.Name == "" {
		name = valueStyle.Render(fmt.Sprintf("player %d", p.ID))
	}

	muteIcon := ""
	if p.Mute == protocol.MuteOn {
		muteIcon = " muted"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s%s  %s  [%s] %d%%%s\n",
		marker, name, stateIcon(p.State), renderBar(int(p.Volume), int(protocol.MaxVolume), 10), p.Volume, muteIcon))

	if np := p.NowPlaying; np != nil {
		b.WriteString(valueStyle.Render("    " + truncate(describe(np), 60)))
		if pr, ok := m.progress[p.ID]; ok && pr.Duration > 0 {
			b.WriteString(valueStyle.Render(fmt.Sprintf("  %s / %s", clockTime(pr.Position), clockTime(pr.Duration))))
		}
		b.WriteString("\n")
	}
	if p.LastError != "" {
		b.WriteString(errorStyle.Render("    " + p.LastError))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) memberNames(g state.Group) string {
	names := make([]string, 0, len(g.Members))
	for _, id := range g.Members {
		if p, ok := m.snap.Player(id); ok && p.Name != "" {
			names = append(names, p.Name)
		} else {
			names = append(names, fmt.Sprintf("%d", id))
		}
	}
	return strings.Join(names, ", ")
}

func describe(np *protocol.NowPlaying) string {
	if np.Type == "station" && np.Station != "" {
		return np.Station
	}
	if np.Artist != "" {
		return np.Artist + " - " + np.Song
	}
	return np.Song
}

func stateIcon(s protocol.PlayState) string {
	switch s {
	case protocol.PlayStatePlay:
		return "▶"
	case protocol.PlayStatePause:
		return "⏸"
	case protocol.PlayStateStop:
		return "■"
	default:
		return "?"
	}
}

func clockTime(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func renderBar(value, max, width int) string {
	filled := (value * width) / max
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length-3]) + "..."
}
