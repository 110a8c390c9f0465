// ABOUTME: Candidate sources and merging for device discovery
// ABOUTME: Static address lists and Collect, which fans out over sources under a deadline
package discovery

import (
	"context"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("heos/discovery")

// Candidate is a device address worth dialing
type Candidate struct {
	Name string
	Addr string
	// Source names where the candidate came from, for logs
	Source string
}

// Source yields candidate addresses. Implementations return what they found
// before ctx ends; a partial result with ctx.Err() is fine.
type Source interface {
	Discover(ctx context.Context) ([]Candidate, error)
}

// Static is a fixed list of addresses, typically from config or flags
type Static []string

// Discover implements Source
func (s Static) Discover(ctx context.Context) ([]Candidate, error) {
	out := make([]Candidate, 0, len(s))
	for _, addr := range s {
		if addr == "" {
			continue
		}
		out = append(out, Candidate{Addr: addr, Source: "static"})
	}
	return out, nil
}

// Collect runs every source concurrently and merges the results, first
// occurrence of an address wins. Source errors are logged, not returned.
func Collect(ctx context.Context, timeout time.Duration, sources ...Source) []Candidate {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	results := make([][]Candidate, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			found, err := src.Discover(ctx)
			if err != nil && ctx.Err() == nil {
				log.Warnw("discovery source failed", "source", i, "error", err)
			}
			results[i] = found
		}(i, src)
	}
	wg.Wait()

	seen := make(map[string]bool)
	var merged []Candidate
	for _, found := range results {
		for _, c := range found {
			if seen[c.Addr] {
				continue
			}
			seen[c.Addr] = true
			merged = append(merged, c)
		}
	}
	log.Debugw("discovery complete", "candidates", len(merged))
	return merged
}

// Addrs extracts the addresses from candidates, keeping order
func Addrs(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Addr
	}
	return out
}
