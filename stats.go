package groupby

import (
	"time"
)

// Stats is a snapshot of engine activity.
type Stats struct {
	Watchers     int           // registered watchers
	Builds       uint64        // builds run, including rebuilds
	Rebuilds     uint64        // builds that replaced an earlier result
	CacheHits    uint64        // accesses served from a valid build
	Groups       int           // live groups across all valid builds
	Dependencies int           // tracked dependencies across all valid builds
	OldestBuild  time.Duration // age of the oldest valid build
	NewestBuild  time.Duration // age of the newest valid build
}

// Stats returns a snapshot of engine activity. Counters cover the
// engine's lifetime; group and dependency totals cover the builds
// currently held.
func (eng *Engine) Stats() Stats {
	st := Stats{
		Builds:    eng.builds.Load(),
		Rebuilds:  eng.rebuilds.Load(),
		CacheHits: eng.hits.Load(),
	}

	now := eng.now()
	var oldest, newest time.Time
	for _, w := range eng.Watchers() {
		st.Watchers++
		r := w.entry.result()
		if r == nil {
			continue
		}
		st.Groups += len(r.order)
		st.Dependencies += r.deps.size()

		if oldest.IsZero() || r.builtAt.Before(oldest) {
			oldest = r.builtAt
		}
		if newest.IsZero() || r.builtAt.After(newest) {
			newest = r.builtAt
		}
	}
	if !oldest.IsZero() {
		st.OldestBuild = now.Sub(oldest)
	}
	if !newest.IsZero() {
		st.NewestBuild = now.Sub(newest)
	}
	return st
}
