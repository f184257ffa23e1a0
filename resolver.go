package groupby

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/gophersatwork/groupby/source"
)

// resolvedRef points one exposed path at a group, or at one of its
// pagination pages.
type resolvedRef struct {
	w    *Watcher
	key  string
	page int // 0 = the group itself, n >= 2 = derived page
}

// resolver maps exposed URL and virtual paths to groups. Each entry
// build republishes its watcher's slice of the table wholesale, so
// concurrent renders read consistent snapshots lock-free.
type resolver struct {
	eng   *Engine
	table *xsync.MapOf[string, resolvedRef]

	mu        sync.Mutex
	exposed   map[*Watcher]map[string]struct{} // table keys per watcher
	retracted map[string]struct{}              // URL paths pending prune
}

func newResolver(eng *Engine) *resolver {
	return &resolver{
		eng:       eng,
		table:     xsync.NewMapOf[string, resolvedRef](),
		exposed:   make(map[*Watcher]map[string]struct{}),
		retracted: make(map[string]struct{}),
	}
}

// publish replaces the watcher's slice of the table with the paths of
// one finished build. URL paths the new build no longer exposes are
// queued for pruning.
func (rs *resolver) publish(w *Watcher, r *buildResult) {
	next := make(map[string]resolvedRef)
	for _, key := range r.order {
		gs := r.groups[key]
		next[gs.vpath] = resolvedRef{w: w, key: key}
		if gs.urlPath != "" {
			next[gs.urlPath] = resolvedRef{w: w, key: key}
		}
		if gs.pag == nil {
			continue
		}
		for _, page := range gs.pag.pages {
			next[page.vpath] = resolvedRef{w: w, key: key, page: page.pageNum}
			if page.urlPath != "" {
				next[page.urlPath] = resolvedRef{w: w, key: key, page: page.pageNum}
			}
		}
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	for path := range rs.exposed[w] {
		if _, still := next[path]; still {
			continue
		}
		rs.table.Delete(path)
		if isURLPath(path) {
			rs.retracted[path] = struct{}{}
		}
	}
	keys := make(map[string]struct{}, len(next))
	for path, ref := range next {
		rs.table.Store(path, ref)
		keys[path] = struct{}{}
		delete(rs.retracted, path) // re-exposed before pruning ran
	}
	rs.exposed[w] = keys
}

func isURLPath(path string) bool {
	return !strings.Contains(path, VirtualPrefix)
}

// pruneStale drains the queue of retracted URL paths, sorted.
func (rs *resolver) pruneStale() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]string, 0, len(rs.retracted))
	for path := range rs.retracted {
		out = append(out, path)
	}
	clear(rs.retracted)
	sort.Strings(out)
	return out
}

// resolve handles both address forms. Virtual paths name their watcher
// directly; URL paths build every watcher whose root URL prefixes the
// path, then consult the table.
func (rs *resolver) resolve(ctx context.Context, p string) (*GroupBySource, error) {
	if strings.Contains(p, VirtualPrefix) {
		return rs.resolveVirtual(ctx, p)
	}
	return rs.resolveURL(ctx, p)
}

// resolveVirtual parses "<root>@groupby/<attribute>/<key>[/<page>]".
// A numeric tail is taken as a page number; keys containing slashes
// therefore cannot end in a bare number, which slugified keys never
// do.
func (rs *resolver) resolveVirtual(ctx context.Context, p string) (*GroupBySource, error) {
	i := strings.Index(p, VirtualPrefix)
	root := source.NormalizePath(p[:i])
	rest := strings.Trim(p[i+len(VirtualPrefix):], "/")
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[0] == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	attribute := parts[0]
	keyParts := parts[1:]

	page := 0
	if len(keyParts) >= 2 {
		if n, err := strconv.Atoi(keyParts[len(keyParts)-1]); err == nil && n >= 1 {
			page = n
			keyParts = keyParts[:len(keyParts)-1]
		}
	}
	key := strings.Join(keyParts, "/")

	w, ok := rs.eng.Watcher(attribute, root)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	gs, err := w.Group(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNoGroup) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, err
	}
	if page >= 2 {
		pg, err := gs.Page(page)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return pg, nil
	}
	return gs, nil
}

func (rs *resolver) resolveURL(ctx context.Context, p string) (*GroupBySource, error) {
	norm := p
	if norm == "" {
		norm = "/"
	}
	if !strings.HasPrefix(norm, "/") {
		norm = "/" + norm
	}

	// Build every watcher whose root URL prefixes the path, so the
	// table holds their current groups before the lookup.
	for _, w := range rs.eng.Watchers() {
		root := rs.eng.tree.Get(w.config.Root)
		if root == nil {
			continue
		}
		if strings.HasPrefix(norm, strings.TrimSuffix(root.URLPath(), "/")) {
			if _, err := w.entry.access(ctx); err != nil {
				return nil, err
			}
		}
	}

	for _, candidate := range urlCandidates(norm) {
		ref, ok := rs.table.Load(candidate)
		if !ok {
			continue
		}
		gs, err := rs.deref(ctx, ref)
		if err != nil {
			return nil, err
		}
		collectGroup(ctx, gs.baseGroup())
		return gs, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
}

// urlCandidates lists the spellings under which a URL may have been
// published: as given, with a trailing index.html folded away, and
// with a trailing slash added.
func urlCandidates(p string) []string {
	out := []string{p}
	if strings.HasSuffix(p, "/index.html") {
		out = append(out, strings.TrimSuffix(p, "index.html"))
	}
	if !strings.HasSuffix(p, "/") {
		out = append(out, p+"/")
	}
	return out
}

// deref resolves a table reference against the watcher's current
// build. The table can briefly lag behind a rebuild; going through
// access keeps stale group pointers from escaping.
func (rs *resolver) deref(ctx context.Context, ref resolvedRef) (*GroupBySource, error) {
	r, err := ref.w.entry.access(ctx)
	if err != nil {
		return nil, err
	}
	gs, ok := r.lookup(ref.key)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoGroup, ref.w.config.Attribute, ref.key)
	}
	if ref.page >= 2 {
		return gs.Page(ref.page)
	}
	return gs, nil
}
