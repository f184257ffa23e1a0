package groupby

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
)

// State is the lifecycle stage of one watcher's build.
type State int32

const (
	StateUnbuilt State = iota
	StateBuilding
	StateBuilt
	StateStale
)

func (s State) String() string {
	switch s {
	case StateUnbuilt:
		return "unbuilt"
	case StateBuilding:
		return "building"
	case StateBuilt:
		return "built"
	case StateStale:
		return "stale"
	}
	return "unknown"
}

// buildResult is one immutable build output. Readers obtain it through
// an atomic pointer and never observe a partially built state.
type buildResult struct {
	groups   map[string]*GroupBySource
	order    []string                  // first-seen key order after merging
	aliases  map[string]string         // merged-away key -> surviving key
	contribs map[string][]contribution // record path -> contributions
	deps     *depSet
	builtAt  time.Time
}

func (r *buildResult) lookup(key string) (*GroupBySource, bool) {
	if gs, ok := r.groups[key]; ok {
		return gs, true
	}
	if first, ok := r.aliases[key]; ok {
		gs, ok := r.groups[first]
		return gs, ok
	}
	return nil, false
}

// cacheEntry guards the single build slot of one watcher. mu is held
// for the whole build, so concurrent accessors block until the winner
// publishes; state and res give lock-free reads on the fast path.
type cacheEntry struct {
	w            *Watcher
	mu           sync.Mutex
	state        atomic.Int32
	res          atomic.Pointer[buildResult]
	pendingStale atomic.Bool
}

// State returns the entry's current lifecycle stage.
func (e *cacheEntry) State() State { return State(e.state.Load()) }

func (e *cacheEntry) result() *buildResult { return e.res.Load() }

// access returns a valid build, running one first when none exists.
// At most one build runs per entry; racers block on mu and then reuse
// the winner's result.
func (e *cacheEntry) access(ctx context.Context) (*buildResult, error) {
	if State(e.state.Load()) == StateBuilt {
		if r := e.res.Load(); r != nil {
			e.w.engine.noteHit()
			return r, nil
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if State(e.state.Load()) == StateBuilt {
		if r := e.res.Load(); r != nil {
			e.w.engine.noteHit()
			return r, nil
		}
	}

	rebuild := e.res.Load() != nil
	e.state.Store(int32(StateBuilding))
	e.res.Store(nil) // a stale result is discarded wholesale, never patched
	e.pendingStale.Store(false)

	r, err := e.w.runBuild(ctx)
	if err != nil {
		e.state.Store(int32(StateUnbuilt))
		return nil, err
	}

	e.res.Store(r)
	if e.pendingStale.Swap(false) {
		e.state.Store(int32(StateStale))
	} else {
		e.state.Store(int32(StateBuilt))
	}
	e.w.engine.resolver.publish(e.w, r)
	e.w.engine.noteBuild(rebuild)
	return r, nil
}

// invalidate reacts to a changed source path. A build in flight is
// marked pending-stale unconditionally since its dependency set is
// not known yet; a finished build goes stale only when the path is in
// its dependencies. Reports whether the entry was newly marked.
func (e *cacheEntry) invalidate(path string) bool {
	switch State(e.state.Load()) {
	case StateBuilding:
		return !e.pendingStale.Swap(true)
	case StateBuilt:
		r := e.res.Load()
		if r == nil || !r.deps.contains(path) {
			return false
		}
		return e.state.CompareAndSwap(int32(StateBuilt), int32(StateStale))
	}
	return false
}

// markStale downgrades the entry so the next access rebuilds,
// regardless of dependencies.
func (e *cacheEntry) markStale() {
	for {
		switch State(e.state.Load()) {
		case StateBuilding:
			e.pendingStale.Store(true)
			return
		case StateBuilt:
			if e.state.CompareAndSwap(int32(StateBuilt), int32(StateStale)) {
				return
			}
		default:
			return
		}
	}
}

// refresh re-fingerprints the entry's file dependencies and marks it
// stale when any differ. Reports whether a change was found.
func (e *cacheEntry) refresh(fsys afero.Fs, newHash HashFunc) bool {
	if State(e.state.Load()) != StateBuilt {
		return false
	}
	r := e.res.Load()
	if r == nil {
		return false
	}
	if len(r.deps.changed(fsys, newHash)) == 0 {
		return false
	}
	return e.state.CompareAndSwap(int32(StateBuilt), int32(StateStale))
}
