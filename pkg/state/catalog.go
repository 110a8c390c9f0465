// ABOUTME: Music sources and browsed playables held by the state engine
// ABOUTME: Filled from source listings and browse/search replies, keyed by source and container/media id
package state

import (
	"maps"
	"slices"

	"github.com/harperreed/heos-go/pkg/protocol"
)

// PlayableKey identifies a browsed item within its source
type PlayableKey struct {
	Source    protocol.SourceID
	Container string
	Media     string
}

// KeyOf returns the key a playable is stored under
func KeyOf(p protocol.Playable) PlayableKey {
	return PlayableKey{Source: p.Source, Container: p.ContainerID, Media: p.MediaID}
}

// Source returns one music source
func (e *Engine) Source(id protocol.SourceID) (protocol.SourceInfo, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sources[id]
	return s, ok
}

// Playable returns a previously browsed or searched item
func (e *Engine) Playable(key PlayableKey) (protocol.Playable, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.playables[key]
	return p, ok
}

// ReplaceSources installs a full source listing
func (e *Engine) ReplaceSources(infos []protocol.SourceInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replaceSourcesLocked(infos)
}

// replaceSourcesLocked swaps the source table. Items of sources that are
// gone are forgotten.
func (e *Engine) replaceSourcesLocked(infos []protocol.SourceInfo) {
	next := make(map[protocol.SourceID]protocol.SourceInfo, len(infos))
	for _, s := range infos {
		next[s.ID] = s
	}
	if maps.Equal(next, e.sources) {
		return
	}
	e.sources = next
	maps.DeleteFunc(e.playables, func(k PlayableKey, _ protocol.Playable) bool {
		_, ok := next[k.Source]
		return !ok
	})
	e.topology.publish(TopologyChange{Kind: SourcesChanged})
}

// upsertSourceLocked records one source's details
func (e *Engine) upsertSourceLocked(info protocol.SourceInfo) {
	if old, ok := e.sources[info.ID]; ok && old == info {
		return
	}
	e.sources[info.ID] = info
	e.topology.publish(TopologyChange{Kind: SourcesChanged})
}

// rememberLocked stores browse or search results. A later result for the
// same key replaces the earlier one.
func (e *Engine) rememberLocked(items []protocol.Playable) {
	for _, it := range items {
		e.playables[KeyOf(it)] = it
	}
}

// SortedSources returns the snapshot's sources ordered by id
func (s Snapshot) SortedSources() []protocol.SourceInfo {
	out := make([]protocol.SourceInfo, 0, len(s.Sources))
	for _, id := range slices.Sorted(maps.Keys(s.Sources)) {
		out = append(out, s.Sources[id])
	}
	return out
}

// Source returns one source from the snapshot
func (s Snapshot) Source(id protocol.SourceID) (protocol.SourceInfo, bool) {
	src, ok := s.Sources[id]
	return src, ok
}

// Playable returns one remembered item from the snapshot
func (s Snapshot) Playable(key PlayableKey) (protocol.Playable, bool) {
	p, ok := s.Playables[key]
	return p, ok
}
