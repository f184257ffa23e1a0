package groupby

import (
	"context"
	"sort"
	"strings"

	"github.com/gophersatwork/groupby/source"
)

// QueryOptions filters a cross-watcher group query.
type QueryOptions struct {
	Keys      []string  // restrict to these group keys; empty = all
	Fields    []string  // restrict to contributions from these record fields
	Flows     []string  // restrict to contributions from these flow-block fields
	Recursive bool      // walk the whole subtree instead of parent alone
	OrderBy   []SortKey // optional ordering; "key", "attribute" and "total" address the group
}

// Query returns the groups that records under parent contribute to.
// The subtree is walked breadth-first, attachments before children,
// and each group appears once, at the position of its first
// contribution, unless OrderBy reorders the result. Candidate
// watchers are built on access; visited records and watcher
// dependencies are recorded into the context's collector.
func (eng *Engine) Query(ctx context.Context, parent source.Record, opts QueryOptions) ([]*GroupBySource, error) {
	if parent == nil {
		return nil, nil
	}
	col := CollectorFrom(ctx)

	var results []*buildResult
	for _, w := range eng.Watchers() {
		if !queryIntersects(w.config.Root, parent.Path()) {
			continue
		}
		r, err := w.entry.access(ctx)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
		for _, dep := range w.config.Dependencies {
			col.addFile(dep)
		}
	}

	keyFilter := sliceSet(opts.Keys)
	fieldFilter := sliceSet(opts.Fields)
	flowFilter := sliceSet(opts.Flows)

	seen := make(map[*GroupBySource]struct{})
	var out []*GroupBySource

	queue := []source.Record{parent}
	for len(queue) > 0 {
		rec := queue[0]
		queue = queue[1:]
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, f := range rec.SourceFilenames() {
			col.addFile(f)
		}

		for _, r := range results {
			for _, contrib := range r.contribs[rec.Path()] {
				if !matchContribution(contrib, fieldFilter, flowFilter) {
					continue
				}
				gs, ok := r.lookup(contrib.key)
				if !ok {
					continue
				}
				if keyFilter != nil {
					_, byFinal := keyFilter[gs.Key()]
					_, byRaw := keyFilter[contrib.key]
					if !byFinal && !byRaw {
						continue
					}
				}
				if _, dup := seen[gs]; dup {
					continue
				}
				seen[gs] = struct{}{}
				out = append(out, gs)
				col.addVirtual(gs.VirtualPath())
			}
		}

		if opts.Recursive {
			queue = append(queue, rec.Attachments()...)
			queue = append(queue, rec.Children()...)
		}
	}

	if len(opts.OrderBy) > 0 {
		sortGroups(out, opts.OrderBy)
	}
	return out, nil
}

// sortGroups stable-sorts groups by the given keys. "key",
// "attribute" and "total" address the group itself; other names go
// through Field, with evaluation errors comparing equal.
func sortGroups(groups []*GroupBySource, keys []SortKey) {
	value := func(gs *GroupBySource, field string) any {
		switch field {
		case "key":
			return gs.Key()
		case "attribute":
			return gs.Attribute()
		case "total":
			return len(gs.children)
		}
		v, err := gs.Field(field)
		if err != nil {
			return nil
		}
		return v
	}
	sort.SliceStable(groups, func(i, j int) bool {
		for _, key := range keys {
			c := compareValues(value(groups[i], key.Field), value(groups[j], key.Field))
			if key.Desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}

func sliceSet(ss []string) map[string]struct{} {
	if len(ss) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(ss))
	for _, s := range ss {
		out[s] = struct{}{}
	}
	return out
}

func matchContribution(c contribution, fields, flows map[string]struct{}) bool {
	if fields != nil {
		if _, ok := fields[c.occ.Field]; !ok {
			return false
		}
	}
	if flows != nil {
		if !c.occ.InFlow() {
			return false
		}
		if _, ok := flows[c.occ.BlockField]; !ok {
			return false
		}
	}
	return true
}

// queryIntersects reports whether a watcher rooted at root can hold
// groups fed by records at or under parent.
func queryIntersects(root, parent string) bool {
	return isSubPath(root, parent) || isSubPath(parent, root)
}

// isSubPath reports whether p lies at or below base.
func isSubPath(base, p string) bool {
	if base == "/" {
		return true
	}
	return p == base || strings.HasPrefix(p, base+"/")
}
