package groupby

import (
	"context"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gosimple/slug"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/gophersatwork/groupby/source"
)

// HashFunc defines a function that creates a new hash.Hash instance.
type HashFunc func() hash.Hash

// NowFunc defines a function that returns the current time.
type NowFunc func() time.Time

// SlugifyFunc turns raw key text into its slug form.
type SlugifyFunc func(string) string

// Option defines a function that configures an Engine.
type Option func(*Engine)

// Engine owns the watchers over one source tree and serves group
// lookups, invalidation and path resolution to the host builder.
// All methods are safe for concurrent use.
type Engine struct {
	tree        source.Tree
	fs          afero.Fs
	log         *slog.Logger
	slugify     SlugifyFunc
	hashFunc    HashFunc
	nowFunc     NowFunc
	templateDir string

	mu       sync.RWMutex
	watchers map[watcherKey]*Watcher
	byAttr   map[string][]*Watcher
	order    []*Watcher // registration order

	resolver *resolver

	builds   atomic.Uint64
	rebuilds atomic.Uint64
	hits     atomic.Uint64
}

type watcherKey struct {
	attribute string
	root      string
}

// New creates an engine over the given source tree.
func New(tree source.Tree, options ...Option) *Engine {
	eng := &Engine{
		tree:     tree,
		fs:       afero.NewOsFs(),
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		slugify:  slug.Make,
		hashFunc: defaultHashFunc,
		nowFunc:  time.Now,
		watchers: make(map[watcherKey]*Watcher),
		byAttr:   make(map[string][]*Watcher),
	}
	eng.resolver = newResolver(eng)

	for _, option := range options {
		option(eng)
	}
	return eng
}

// defaultHashFunc returns the default hash function (xxHash64).
func defaultHashFunc() hash.Hash {
	return xxhash.New()
}

func (eng *Engine) now() time.Time { return eng.nowFunc() }

func (eng *Engine) noteHit() { eng.hits.Add(1) }

func (eng *Engine) noteBuild(rebuild bool) {
	eng.builds.Add(1)
	if rebuild {
		eng.rebuilds.Add(1)
	}
}

// AddWatcher registers a watcher for attribute, built on first access.
// cfg.Attribute may be left empty, otherwise it must match. Exactly
// one watcher may exist per attribute and root pair; a second
// registration returns ErrWatcherExists.
func (eng *Engine) AddWatcher(attribute string, cfg Config) (*Watcher, error) {
	return eng.addWatcher(attribute, cfg, false)
}

// AddWatcherPre is AddWatcher for watchers BuildPre rebuilds eagerly.
// Use it when the grouping callback rewrites source content and must
// run on every full build pass.
func (eng *Engine) AddWatcherPre(attribute string, cfg Config) (*Watcher, error) {
	return eng.addWatcher(attribute, cfg, true)
}

func (eng *Engine) addWatcher(attribute string, cfg Config, pre bool) (*Watcher, error) {
	cc, err := compileConfig(attribute, cfg)
	if err != nil {
		return nil, err
	}

	eng.mu.Lock()
	defer eng.mu.Unlock()

	k := watcherKey{attribute: cc.Attribute, root: cc.Root}
	if _, ok := eng.watchers[k]; ok {
		return nil, fmt.Errorf("%w: %s at %s", ErrWatcherExists, cc.Attribute, cc.Root)
	}
	w := newWatcher(eng, cc, pre)
	eng.watchers[k] = w
	eng.byAttr[cc.Attribute] = append(eng.byAttr[cc.Attribute], w)
	eng.order = append(eng.order, w)
	eng.log.Debug("watcher registered", "attribute", cc.Attribute, "root", cc.Root, "pre", pre)
	return w, nil
}

// AddFromFile registers one watcher per attribute section of an INI
// config file, read through the engine's filesystem. The file itself
// joins each watcher's dependencies, so editing it invalidates the
// built groups. The watchers get no callback, which leaves the
// built-in split grouping active.
func (eng *Engine) AddFromFile(path string) error {
	cfgs, err := ParseINIFile(eng.fs, path)
	if err != nil {
		return err
	}
	attrs := make([]string, 0, len(cfgs))
	for attr := range cfgs {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)

	for _, attr := range attrs {
		cfg := cfgs[attr]
		cfg.Dependencies = append(cfg.Dependencies, path)
		if _, err := eng.addWatcher(attr, cfg, false); err != nil {
			return err
		}
	}
	return nil
}

// Watcher returns the registered watcher for an attribute and root.
func (eng *Engine) Watcher(attribute, root string) (*Watcher, bool) {
	eng.mu.RLock()
	defer eng.mu.RUnlock()
	w, ok := eng.watchers[watcherKey{attribute: attribute, root: source.NormalizePath(root)}]
	return w, ok
}

// Watchers returns all watchers in registration order.
func (eng *Engine) Watchers() []*Watcher {
	eng.mu.RLock()
	defer eng.mu.RUnlock()
	return append([]*Watcher(nil), eng.order...)
}

func (eng *Engine) watchersFor(attribute string) []*Watcher {
	eng.mu.RLock()
	defer eng.mu.RUnlock()
	return append([]*Watcher(nil), eng.byAttr[attribute]...)
}

// Group returns the group for key under attribute, building on
// access. With several watchers on one attribute, the first registered
// one holding the key wins. A key no watcher holds returns ErrNoGroup.
func (eng *Engine) Group(ctx context.Context, attribute, key string) (*GroupBySource, error) {
	for _, w := range eng.watchersFor(attribute) {
		gs, err := w.Group(ctx, key)
		if err == nil {
			return gs, nil
		}
		if !errors.Is(err, ErrNoGroup) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrNoGroup, attribute, key)
}

// Groups returns every group of every watcher registered for
// attribute: watchers in registration order, groups in first-seen key
// order within each.
func (eng *Engine) Groups(ctx context.Context, attribute string) ([]*GroupBySource, error) {
	var out []*GroupBySource
	for _, w := range eng.watchersFor(attribute) {
		gs, err := w.Groups(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, gs...)
	}
	return out, nil
}

// BuildPre rebuilds every preBuild watcher from scratch, in parallel.
// Their callbacks mutate source content, so each full build pass must
// recompute them even when a valid build exists.
func (eng *Engine) BuildPre(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range eng.Watchers() {
		if !w.preBuild {
			continue
		}
		w := w
		g.Go(func() error {
			w.entry.markStale()
			_, err := w.entry.access(ctx)
			return err
		})
	}
	return g.Wait()
}

// Invalidate marks stale every valid build depending on any of the
// given paths and returns how many entries were newly marked. Paths
// are matched against record paths and fingerprinted files; builds in
// flight go stale unconditionally.
func (eng *Engine) Invalidate(paths ...string) int {
	n := 0
	for _, w := range eng.Watchers() {
		for _, p := range paths {
			if w.entry.invalidate(p) {
				eng.log.Debug("build invalidated",
					"attribute", w.config.Attribute, "root", w.config.Root, "path", p)
				n++
				break
			}
		}
	}
	return n
}

// Refresh re-fingerprints the file dependencies of every valid build
// and marks the changed ones stale. It catches edits made without an
// Invalidate call, at the cost of hashing every tracked file.
func (eng *Engine) Refresh() int {
	n := 0
	for _, w := range eng.Watchers() {
		if w.entry.refresh(eng.fs, eng.hashFunc) {
			eng.log.Debug("build outdated", "attribute", w.config.Attribute, "root", w.config.Root)
			n++
		}
	}
	return n
}

// Resolve maps a URL path or a virtual path back to its group or
// pagination page, building candidate watchers on access. Unknown
// paths return ErrNotFound.
func (eng *Engine) Resolve(ctx context.Context, path string) (*GroupBySource, error) {
	return eng.resolver.resolve(ctx, path)
}

// PruneStale returns the URL paths retracted since the last call:
// paths of groups and pages that earlier builds exposed and the
// current builds no longer do.
func (eng *Engine) PruneStale() []string {
	return eng.resolver.pruneStale()
}
