// ABOUTME: Simulated HEOS system for tests and demos
// ABOUTME: Holds players, groups, queues and sources, and scripts reply timing
package mock

import (
	"context"
	"encoding/json"
	"io"
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/harperreed/heos-go/pkg/protocol"
	"github.com/harperreed/heos-go/pkg/transport"
)

var log = logging.Logger("heos/mock")

// Track is one queue entry
type Track struct {
	Song     string
	Album    string
	Artist   string
	ImageURL string
	MediaID  string
	AlbumID  string
}

// Device is the simulated state of one player
type Device struct {
	Info    protocol.PlayerInfo
	State   protocol.PlayState
	Volume  protocol.Volume
	Mute    bool
	Repeat  protocol.RepeatMode
	Shuffle bool
	Queue   []Track
	// Current is the 1-based queue position being played; 0 means idle
	Current int
	// Station is set while a stream that is not in the queue plays
	Station *protocol.NowPlaying
	// QuickSelects holds the name stored in each slot; empty slots are unset
	QuickSelects    [6]string
	UpdateAvailable bool
}

// NowPlaying returns what the device reports as playing, or nil
func (d *Device) NowPlaying() *protocol.NowPlaying {
	if d.Station != nil {
		st := *d.Station
		return &st
	}
	if d.Current < 1 || d.Current > len(d.Queue) {
		return nil
	}
	t := d.Queue[d.Current-1]
	return &protocol.NowPlaying{
		Type:     "song",
		Song:     t.Song,
		Album:    t.Album,
		Artist:   t.Artist,
		ImageURL: t.ImageURL,
		AlbumID:  t.AlbumID,
		MediaID:  t.MediaID,
		QueueID:  protocol.QueueID(d.Current),
		Source:   protocol.SourceLocalMedia,
	}
}

func (d *Device) clone() Device {
	out := *d
	out.Queue = slices.Clone(d.Queue)
	if d.Station != nil {
		st := *d.Station
		out.Station = &st
	}
	if d.Info.Group != nil {
		g := *d.Info.Group
		out.Info.Group = &g
	}
	return out
}

// Group is a simulated player group; the leader's id is the group id
type Group struct {
	ID      protocol.GroupID
	Name    string
	Leader  protocol.PlayerID
	Members []protocol.PlayerID
	Volume  protocol.Volume
	Mute    bool
}

// Reply is what a handler answers to one command
type Reply struct {
	// Fail sends result=fail with eid Code and Text
	Fail bool
	Code protocol.ErrorCode
	Text string
	// SysErrNo accompanies ErrorCodeSystemError
	SysErrNo int

	// Attrs are added to the echoed command parameters
	Attrs protocol.Attrs
	// Payload is marshalled as the reply payload when non-nil
	Payload any

	// Processing sends a "command under process" interim reply first
	Processing bool
	// NoReply swallows the command
	NoReply bool

	events []string
	hangup bool
}

// OK is a success reply with extra message attributes
func OK(attrs ...protocol.Param) Reply { return Reply{Attrs: attrs} }

// Fail is a failure reply with the table text for code
func Fail(code protocol.ErrorCode) Reply {
	return Reply{Fail: true, Code: code, Text: code.String()}
}

// HandlerFunc overrides the simulated behaviour for one command path
type HandlerFunc func(cmd protocol.Command) Reply

type session struct {
	id         string
	out        *lineQueue
	registered bool
}

type heldLine struct {
	sess *session
	line string
}

// System simulates a set of HEOS players reachable through any of its
// connections. It implements transport.Dialer.
type System struct {
	id string

	mu       sync.Mutex
	devices  map[protocol.PlayerID]*Device
	groups   map[protocol.GroupID]*Group
	sources  []protocol.SourceInfo
	library  map[string][]Entry
	username string
	password string
	signedIn bool

	sessions map[*session]struct{}
	handlers map[string]HandlerFunc
	received []protocol.Command

	holding   bool
	holdPaths map[string]bool
	held      []heldLine
}

// Option configures a System
type Option func(*System)

// WithDevices replaces the default players
func WithDevices(devices ...Device) Option {
	return func(s *System) {
		s.devices = make(map[protocol.PlayerID]*Device, len(devices))
		for i := range devices {
			d := devices[i].clone()
			s.devices[d.Info.ID] = &d
		}
	}
}

// WithGroups installs groups; members must be known devices
func WithGroups(groups ...Group) Option {
	return func(s *System) {
		for _, g := range groups {
			g.Members = slices.Clone(g.Members)
			gc := g
			s.groups[g.ID] = &gc
		}
	}
}

// WithAccount sets the credentials sign_in accepts. signedIn starts the
// system signed in.
func WithAccount(username, password string, signedIn bool) Option {
	return func(s *System) {
		s.username = username
		s.password = password
		s.signedIn = signedIn
	}
}

// New creates a system with three idle players (Kitchen 1, Den 2, Patio 3)
// unless WithDevices says otherwise
func New(opts ...Option) *System {
	s := &System{
		id:       uuid.New().String(),
		groups:   make(map[protocol.GroupID]*Group),
		sessions: make(map[*session]struct{}),
		handlers: make(map[string]HandlerFunc),
		sources:  defaultSources(),
		library:  defaultLibrary(),
		username: "listener@example.com",
		password: "secret",
	}
	WithDevices(DefaultDevices()...)(s)
	for _, opt := range opts {
		opt(s)
	}
	log.Debugw("mock system created", "system", s.id, "players", len(s.devices))
	return s
}

// DefaultDevices returns the players a new System starts with
func DefaultDevices() []Device {
	mk := func(id protocol.PlayerID, name, model, ip string) Device {
		return Device{
			Info: protocol.PlayerInfo{
				Name:    name,
				ID:      id,
				Model:   model,
				Version: "3.34.620",
				IP:      ip,
				Network: "wifi",
				Serial:  uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()[:12],
			},
			State:  protocol.PlayStateStop,
			Volume: 20,
			Repeat: protocol.RepeatOff,
		}
	}
	return []Device{
		mk(1, "Kitchen", "HEOS 1", "192.168.1.41"),
		mk(2, "Den", "HEOS 3", "192.168.1.42"),
		mk(3, "Patio", "HEOS 5", "192.168.1.43"),
	}
}

// ID identifies the system in logs and mDNS announcements
func (s *System) ID() string { return s.id }

// Dial implements transport.Dialer; every address reaches this system
func (s *System) Dial(ctx context.Context, addr string) (transport.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sess := s.addSession()
	log.Debugw("mock dial", "addr", addr, "session", sess.id)
	return &memStream{sys: s, sess: sess}, nil
}

func (s *System) addSession() *session {
	sess := &session{id: uuid.New().String(), out: newLineQueue()}
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
	return sess
}

func (s *System) removeSession(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

// Sessions returns the number of open connections
func (s *System) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Handle overrides the behaviour for a command path such as
// "player/set_volume". A nil handler restores the simulation.
func (s *System) Handle(path string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == nil {
		delete(s.handlers, path)
		return
	}
	s.handlers[path] = h
}

// Received returns every command the system parsed, in arrival order
func (s *System) Received() []protocol.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.received)
}

// ReceivedPath returns the received commands with the given path
func (s *System) ReceivedPath(path string) []protocol.Command {
	var out []protocol.Command
	for _, cmd := range s.Received() {
		if cmd.Path() == path {
			out = append(out, cmd)
		}
	}
	return out
}

// Hold buffers replies to the given paths (all paths when none are given)
// until Release or ReleaseReverse
func (s *System) Hold(paths ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holding = true
	s.holdPaths = make(map[string]bool, len(paths))
	for _, p := range paths {
		s.holdPaths[p] = true
	}
}

// Held returns the number of buffered replies
func (s *System) Held() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.held)
}

// Release stops holding and delivers buffered replies in arrival order
func (s *System) Release() { s.release(false) }

// ReleaseReverse stops holding and delivers buffered replies newest first
func (s *System) ReleaseReverse() { s.release(true) }

func (s *System) release(reverse bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	held := s.held
	s.held = nil
	s.holding = false
	if reverse {
		slices.Reverse(held)
	}
	for _, h := range held {
		h.sess.out.push(h.line)
	}
}

// Emit sends an event to every connection registered for change events
func (s *System) Emit(name string, attrs ...protocol.Param) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked(eventLine(name, attrs))
}

// EmitRaw sends line verbatim to every connection, registered or not
func (s *System) EmitRaw(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sess := range s.sessions {
		sess.out.push(line)
	}
}

// Drop severs every connection abruptly; clients see a read error
func (s *System) Drop() { s.closeSessions(io.ErrUnexpectedEOF) }

// Hangup closes every connection cleanly; clients see io.EOF
func (s *System) Hangup() { s.closeSessions(io.EOF) }

func (s *System) closeSessions(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeSessionsLocked(err)
}

func (s *System) closeSessionsLocked(err error) {
	for sess := range s.sessions {
		sess.out.close(err, err != io.EOF)
		delete(s.sessions, sess)
	}
	s.held = nil
	log.Infow("mock connections closed", "system", s.id, "error", err)
}

// Device returns a copy of a player's simulated state
func (s *System) Device(id protocol.PlayerID) (Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	if !ok {
		return Device{}, false
	}
	return d.clone(), true
}

// Group returns a copy of a group
func (s *System) Group(id protocol.GroupID) (Group, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return Group{}, false
	}
	out := *g
	out.Members = slices.Clone(g.Members)
	return out, true
}

// AddDevice adds or replaces a player and announces players_changed
func (s *System) AddDevice(d Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dc := d.clone()
	s.devices[dc.Info.ID] = &dc
	s.broadcastLocked(eventLine("players_changed", nil))
}

// RemoveDevice removes a player, dropping it from its group, and announces
// players_changed
func (s *System) RemoveDevice(id protocol.PlayerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[id]; !ok {
		return
	}
	delete(s.devices, id)
	if s.ungroupLocked(id) {
		s.broadcastLocked(eventLine("groups_changed", nil))
	}
	s.broadcastLocked(eventLine("players_changed", nil))
}

// SetSourceAvailable flips a music source's availability and announces
// sources_changed. Unknown sources are ignored.
func (s *System) SetSourceAvailable(sid protocol.SourceID, available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sources {
		if s.sources[i].ID == sid {
			s.sources[i].Available = strconv.FormatBool(available)
			s.broadcastLocked(eventLine("sources_changed", nil))
			return
		}
	}
}

// SetProgress reports a playback position for a player
func (s *System) SetProgress(id protocol.PlayerID, posMillis, durMillis int64) {
	s.Emit("player_now_playing_progress",
		protocol.Param{Key: "pid", Value: id.String()},
		protocol.Param{Key: "cur_pos", Value: itoa(posMillis)},
		protocol.Param{Key: "duration", Value: itoa(durMillis)},
	)
}

func (s *System) sortedIDsLocked() []protocol.PlayerID {
	ids := make([]protocol.PlayerID, 0, len(s.devices))
	for id := range s.devices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *System) broadcastLocked(line string) {
	for sess := range s.sessions {
		if sess.registered {
			sess.out.push(line)
		}
	}
}

// handleLine parses and answers one inbound line
func (s *System) handleLine(sess *session, line string) {
	cmd, err := protocol.ParseCommand(line)
	if err != nil {
		log.Warnw("mock ignoring bad command", "session", sess.id, "error", err)
		return
	}

	s.mu.Lock()
	s.received = append(s.received, cmd)
	override := s.handlers[cmd.Path()]
	s.mu.Unlock()

	var reply Reply
	if override != nil {
		reply = override(cmd)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if override == nil {
		reply = s.simulateLocked(sess, cmd)
	}
	log.Debugw("mock command", "session", sess.id, "command", cmd.Path(), "fail", reply.Fail)

	if reply.Processing {
		sess.out.push(encodeReply(cmd, Reply{}, true))
	}
	if !reply.NoReply {
		out := encodeReply(cmd, reply, false)
		if s.holdingLocked(cmd.Path()) {
			s.held = append(s.held, heldLine{sess: sess, line: out})
		} else {
			sess.out.push(out)
		}
	}
	for _, ev := range reply.events {
		s.broadcastLocked(ev)
	}
	if reply.hangup {
		s.closeSessionsLocked(io.EOF)
	}
}

func (s *System) holdingLocked(path string) bool {
	if !s.holding {
		return false
	}
	return len(s.holdPaths) == 0 || s.holdPaths[path]
}

type wireHeos struct {
	Command string `json:"command"`
	Result  string `json:"result,omitempty"`
	Message string `json:"message"`
}

type wireLine struct {
	Heos    wireHeos `json:"heos"`
	Payload any      `json:"payload,omitempty"`
}

// encodeReply renders the reply line. The message echoes the command's
// parameters, SEQUENCE included, the way the device does.
func encodeReply(cmd protocol.Command, r Reply, interim bool) string {
	var attrs protocol.Attrs
	result := "success"
	switch {
	case interim:
		attrs = cmd.Params()
	case r.Fail:
		result = "fail"
		attrs = protocol.Attrs{
			{Key: "eid", Value: itoa(int64(r.Code))},
			{Key: "text", Value: r.Text},
		}
		if r.SysErrNo != 0 {
			attrs = append(attrs, protocol.Param{Key: "syserrno", Value: itoa(int64(r.SysErrNo))})
		}
		attrs = append(attrs, cmd.Params()...)
	default:
		attrs = merge(cmd.Params(), r.Attrs)
	}

	msg := attrs.Encode()
	if interim {
		msg = protocol.ProcessingMessage + "&" + msg
	}
	line := wireLine{
		Heos: wireHeos{Command: cmd.Path(), Result: result, Message: msg},
	}
	if !interim && !r.Fail {
		line.Payload = r.Payload
	}
	b, err := json.Marshal(line)
	if err != nil {
		log.Errorw("mock reply marshal failed", "command", cmd.Path(), "error", err)
		return ""
	}
	return string(b)
}

func eventLine(name string, attrs protocol.Attrs) string {
	b, _ := json.Marshal(wireLine{Heos: wireHeos{Command: "event/" + name, Message: attrs.Encode()}})
	return string(b)
}

// merge overlays extra onto base; existing keys keep their position
func merge(base, extra protocol.Attrs) protocol.Attrs {
	out := slices.Clone(base)
	for _, p := range extra {
		idx := slices.IndexFunc(out, func(q protocol.Param) bool { return q.Key == p.Key })
		if idx >= 0 {
			out[idx].Value = p.Value
			continue
		}
		out = append(out, p)
	}
	return out
}
