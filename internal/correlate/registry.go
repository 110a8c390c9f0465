// ABOUTME: Correlation registry matching device replies to waiting callers
// ABOUTME: One live entry per command key, SEQUENCE-first matching, tombstones for abandoned waits
package correlate

import (
	"context"
	"errors"
	"strings"
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"github.com/harperreed/heos-go/pkg/protocol"
)

var log = logging.Logger("heos/correlate")

var (
	// ErrAlreadyPending is returned when a command with the same key is
	// still waiting for its reply
	ErrAlreadyPending = errors.New("command already pending")

	// ErrConnectionLost resolves every entry still pending when the
	// connection goes away
	ErrConnectionLost = errors.New("connection lost")
)

// discriminating parameters that make two commands with the same path distinct
var keyParams = []string{"pid", "gid", "sid", "cid"}

// Key returns the correlation key for a path and its parameters
func Key(path string, attrs protocol.Attrs) string {
	var b strings.Builder
	b.WriteString(path)
	for _, k := range keyParams {
		if v, ok := attrs.Get(k); ok {
			b.WriteByte(' ')
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(v)
		}
	}
	return b.String()
}

// Result is what a waiter receives
type Result struct {
	Response *protocol.Response
	Err      error
}

// Pending is one in-flight command
type Pending struct {
	key    string
	path   string
	params map[string]string
	seq    uint64
	hasSeq bool
	slot   chan Result
}

// Key returns the correlation key
func (p *Pending) Key() string { return p.key }

// Done yields exactly one Result
func (p *Pending) Done() <-chan Result { return p.slot }

// Registry tracks in-flight commands for one connection
type Registry struct {
	mu         sync.Mutex
	byKey      map[string]*Pending
	bySeq      map[uint64]*Pending
	tombstones map[uint64]struct{}
	closed     error
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		byKey:      make(map[string]*Pending),
		bySeq:      make(map[uint64]*Pending),
		tombstones: make(map[uint64]struct{}),
	}
}

// Register records cmd as in flight. A second command with the same key
// fails fast with ErrAlreadyPending.
func (r *Registry) Register(cmd protocol.Command) (*Pending, error) {
	params := cmd.Params()
	p := &Pending{
		key:    Key(cmd.Path(), params),
		path:   cmd.Path(),
		params: make(map[string]string, len(keyParams)),
		slot:   make(chan Result, 1),
	}
	for _, k := range keyParams {
		if v, ok := params.Get(k); ok {
			p.params[k] = v
		}
	}
	p.seq, p.hasSeq = cmd.Sequence()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed != nil {
		return nil, r.closed
	}
	if _, busy := r.byKey[p.key]; busy {
		return nil, ErrAlreadyPending
	}
	if p.hasSeq {
		_, live := r.bySeq[p.seq]
		_, dead := r.tombstones[p.seq]
		if live || dead {
			return nil, ErrAlreadyPending
		}
		r.bySeq[p.seq] = p
	}
	r.byKey[p.key] = p
	return p, nil
}

// Resolve delivers resp to its waiter. It reports whether the reply was
// consumed; unmatched replies are logged and dropped by the caller.
func (r *Registry) Resolve(resp *protocol.Response) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	seq, hasSeq := resp.Sequence()
	if hasSeq {
		if _, dead := r.tombstones[seq]; dead {
			if !resp.Processing() {
				delete(r.tombstones, seq)
			}
			log.Debugw("dropping reply for abandoned command", "command", resp.Path(), "seq", seq)
			return true
		}
		if p, ok := r.bySeq[seq]; ok && p.path == resp.Path() {
			return r.deliverLocked(p, resp)
		}
	}

	p := r.byKey[Key(resp.Path(), resp.Attrs)]
	if p == nil {
		p = r.onlyPendingForPathLocked(resp)
	}
	if p == nil || (hasSeq && (!p.hasSeq || p.seq != seq)) {
		// a sequence we never issued, or another command's reply
		log.Warnw("unexpected reply", "command", resp.Path(), "message", resp.Message)
		return false
	}
	return r.deliverLocked(p, resp)
}

// onlyPendingForPathLocked finds the single live entry for the reply's path
// whose parameters the reply does not contradict. Replies like
// group/set_group echo parameters the command never sent.
func (r *Registry) onlyPendingForPathLocked(resp *protocol.Response) *Pending {
	var match *Pending
	for _, p := range r.byKey {
		if p.path != resp.Path() || !p.agrees(resp.Attrs) {
			continue
		}
		if match != nil {
			return nil
		}
		match = p
	}
	return match
}

// agrees reports whether every key parameter both sides carry has the same
// value
func (p *Pending) agrees(attrs protocol.Attrs) bool {
	for k, want := range p.params {
		if got, ok := attrs.Get(k); ok && got != want {
			return false
		}
	}
	return true
}

func (r *Registry) deliverLocked(p *Pending, resp *protocol.Response) bool {
	if resp.Processing() {
		log.Debugw("command under process", "command", p.path, "key", p.key)
		return true
	}
	r.removeLocked(p)
	p.slot <- Result{Response: resp, Err: resp.Err()}
	return true
}

func (r *Registry) removeLocked(p *Pending) {
	if r.byKey[p.key] == p {
		delete(r.byKey, p.key)
	}
	if p.hasSeq && r.bySeq[p.seq] == p {
		delete(r.bySeq, p.seq)
	}
}

// Abandon gives up on p. Its key is free again at once; a reply that still
// arrives for its sequence is swallowed.
func (r *Registry) Abandon(p *Pending) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byKey[p.key] != p {
		return
	}
	r.removeLocked(p)
	if p.hasSeq && r.closed == nil {
		r.tombstones[p.seq] = struct{}{}
	}
}

// Wait blocks until p resolves or ctx ends. A failed reply is returned
// together with its *protocol.DeviceError.
func (r *Registry) Wait(ctx context.Context, p *Pending) (*protocol.Response, error) {
	select {
	case res := <-p.slot:
		return res.Response, res.Err
	case <-ctx.Done():
		r.Abandon(p)
		// the reply may have landed while we were abandoning
		select {
		case res := <-p.slot:
			return res.Response, res.Err
		default:
			return nil, ctx.Err()
		}
	}
}

// FailAll resolves every live entry with err and closes the registry
func (r *Registry) FailAll(err error) {
	if err == nil {
		err = ErrConnectionLost
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed == nil {
		r.closed = err
	}
	for _, p := range r.byKey {
		p.slot <- Result{Err: err}
	}
	if n := len(r.byKey); n > 0 {
		log.Infow("failed pending commands", "count", n, "error", err)
	}
	clear(r.byKey)
	clear(r.bySeq)
	clear(r.tombstones)
}

// Len returns the number of live entries
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKey)
}

// Tombstones returns the number of abandoned sequences still awaiting a reply
func (r *Registry) Tombstones() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tombstones)
}
