package groupby

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/gophersatwork/groupby/source"
)

// Watcher observes one attribute under one root of the source tree
// and materializes its groups on first access.
type Watcher struct {
	engine *Engine
	config *compiledConfig

	preBuild bool // eligible for eager building in BuildPre

	mu       sync.Mutex
	callback GroupingFunc
	flatten  bool

	entry *cacheEntry
}

func newWatcher(eng *Engine, cc *compiledConfig, pre bool) *Watcher {
	w := &Watcher{engine: eng, config: cc, preBuild: pre, flatten: true}
	w.entry = &cacheEntry{w: w}
	return w
}

// Attribute returns the watched attribute name.
func (w *Watcher) Attribute() string { return w.config.Attribute }

// Root returns the record path the watcher's scan starts from.
func (w *Watcher) Root() string { return w.config.Root }

// State returns the watcher's current build state.
func (w *Watcher) State() State { return w.entry.State() }

// Config returns a read-only projection of the watcher's
// configuration.
func (w *Watcher) Config() ConfigView { return w.config.view() }

// Grouping installs fn as the watcher's grouping callback with flow
// blocks flattened, and returns the watcher. Without a callback the
// built-in split grouping runs. Replacing the callback discards any
// existing build.
func (w *Watcher) Grouping(fn GroupingFunc) *Watcher {
	return w.GroupingFlat(true, fn)
}

// GroupingFlat is Grouping with an explicit flow policy. When flatten
// is true each flagged field of every flow block becomes its own
// occurrence; when false a flagged flow field yields one occurrence
// carrying the whole flow value.
func (w *Watcher) GroupingFlat(flatten bool, fn GroupingFunc) *Watcher {
	w.mu.Lock()
	w.callback = fn
	w.flatten = flatten
	w.mu.Unlock()
	w.entry.markStale()
	return w
}

// Slugify maps raw through the watcher's key map and the engine's
// slugify function, exactly as group keys are finalized. Callbacks use
// it to predict the final key of a value before emitting it.
func (w *Watcher) Slugify(raw string) string {
	if mapped, ok := w.config.KeyMap[raw]; ok {
		raw = mapped
	}
	if s := w.engine.slugify(raw); s != "" {
		return s
	}
	return raw
}

// Group returns the group for key, building first when needed. Keys
// merged away by slug reuse resolve to the surviving group.
func (w *Watcher) Group(ctx context.Context, key string) (*GroupBySource, error) {
	r, err := w.entry.access(ctx)
	if err != nil {
		return nil, err
	}
	gs, ok := r.lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoGroup, w.config.Attribute, key)
	}
	collectGroup(ctx, gs)
	return gs, nil
}

// Groups returns all groups in deterministic first-seen order,
// building first when needed.
func (w *Watcher) Groups(ctx context.Context) ([]*GroupBySource, error) {
	r, err := w.entry.access(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*GroupBySource, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.groups[key])
	}
	return out, nil
}

// Keys returns the group keys in deterministic first-seen order,
// building first when needed.
func (w *Watcher) Keys(ctx context.Context) ([]string, error) {
	r, err := w.entry.access(ctx)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), r.order...), nil
}

// runBuild scans the subtree, drives the grouping callback over every
// occurrence, and assembles the finished group set. It runs with the
// entry's build slot held.
func (w *Watcher) runBuild(ctx context.Context) (*buildResult, error) {
	eng := w.engine
	cc := w.config
	start := eng.now()

	w.mu.Lock()
	fn := w.callback
	flatten := w.flatten
	w.mu.Unlock()
	if fn == nil {
		fn = splitGrouping(cc.Split)
	}

	deps := newDepSet()
	for _, dep := range cc.Dependencies {
		deps.addDeclared(eng.fs, eng.hashFunc, dep)
	}
	if eng.templateDir != "" {
		deps.addFile(eng.fs, eng.hashFunc, filepath.Join(eng.templateDir, cc.Template))
	}

	empty := func() *buildResult {
		return &buildResult{
			groups:   map[string]*GroupBySource{},
			aliases:  map[string]string{},
			contribs: map[string][]contribution{},
			deps:     deps,
			builtAt:  start,
		}
	}

	if !cc.enabled {
		eng.log.Debug("watcher disabled, empty build", "attribute", cc.Attribute, "root", cc.Root)
		return empty(), nil
	}

	root := eng.tree.Get(cc.Root)
	if root == nil {
		// Transient absence is not an error; the groups simply
		// disappear until the root comes back.
		eng.log.Debug("watcher root missing, empty build", "attribute", cc.Attribute, "root", cc.Root)
		return empty(), nil
	}

	sc := newScanner(eng.tree, cc.Attribute, flatten)
	agg := newAggregate(w)

	err := source.Walk(root, func(rec source.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		occs := sc.read(rec)
		if len(occs) == 0 {
			return nil
		}
		deps.addRecord(rec.Path())
		for _, f := range rec.SourceFilenames() {
			deps.addFile(eng.fs, eng.hashFunc, f)
		}
		for _, occ := range occs {
			em := &Emitter{w: w, agg: agg, args: occ}
			if err := fn(ctx, occ, em); err != nil {
				return &CallbackError{Attribute: cc.Attribute, Root: cc.Root, Record: rec.Path(), Err: err}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	groups, order, aliases, err := agg.finalize(root)
	if err != nil {
		return nil, err
	}

	res := &buildResult{
		groups:   groups,
		order:    order,
		aliases:  aliases,
		contribs: agg.contribs,
		deps:     deps,
		builtAt:  start,
	}
	eng.log.Info("groupby build finished",
		"attribute", cc.Attribute, "root", cc.Root,
		"groups", len(order), "records", len(res.contribs),
		"deps", deps.size(), "elapsed", eng.now().Sub(start))
	return res, nil
}
