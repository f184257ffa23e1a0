package groupby

import (
	"context"
	"sort"
	"sync"
)

type collectorCtxKey struct{}

// Collector gathers the dependencies of one render in progress: the
// source files and virtual paths behind everything accessed through
// the engine while it was in the context. Hosts put a fresh one into
// the context before rendering a page and read it back afterward to
// register artifact dependencies.
type Collector struct {
	mu      sync.Mutex
	files   map[string]struct{}
	virtual map[string]struct{}
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{
		files:   make(map[string]struct{}),
		virtual: make(map[string]struct{}),
	}
}

// WithCollector returns a context carrying c.
func WithCollector(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, collectorCtxKey{}, c)
}

// CollectorFrom returns the collector carried by ctx, or nil when the
// context has none. All recording helpers accept a nil collector, so
// callers never need to check.
func CollectorFrom(ctx context.Context) *Collector {
	c, _ := ctx.Value(collectorCtxKey{}).(*Collector)
	return c
}

// Files returns the recorded file dependencies, sorted.
func (c *Collector) Files() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.files))
	for f := range c.files {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// VirtualPaths returns the recorded virtual dependencies, sorted.
func (c *Collector) VirtualPaths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.virtual))
	for v := range c.virtual {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (c *Collector) addFile(path string) {
	if c == nil || path == "" {
		return
	}
	c.mu.Lock()
	c.files[path] = struct{}{}
	c.mu.Unlock()
}

func (c *Collector) addVirtual(path string) {
	if c == nil || path == "" {
		return
	}
	c.mu.Lock()
	c.virtual[path] = struct{}{}
	c.mu.Unlock()
}

// collectGroup records one group access: the group's virtual path and
// the files it was built from.
func collectGroup(ctx context.Context, gs *GroupBySource) {
	c := CollectorFrom(ctx)
	if c == nil {
		return
	}
	c.addVirtual(gs.VirtualPath())
	for _, f := range gs.SourceFilenames() {
		c.addFile(f)
	}
}
