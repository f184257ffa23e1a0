/*
	Package groupby clusters the records of a content tree by the values of
	model-flagged fields and serves the resulting groups to a static site
	builder: tag pages, category indexes, archives by year, inline tag
	clouds.

It is a library, not a site generator. The host owns the content tree,
the templates and the build loop; groupby owns scanning, key
resolution, group assembly, caching and invalidation.

# Overview

A watcher observes one attribute (a flag set on model fields, such as
"tags") under one root of the tree. On first access it scans the
subtree in deterministic pre-order, runs a grouping callback over every
occurrence of the attribute, and aggregates the emitted keys into
GroupBySource values: one per distinct key, each carrying its member
records, a slug, a URL and a stable virtual path. Until something
invalidates it, every further access returns the same built set.

# Core Architecture

  - source.Tree / source.Record - the host content contract, with an
    in-memory reference implementation and a TOML loader
  - Watcher - attribute + root + callback, built on first access
  - Emitter - two-phase callback protocol: keys resolve at emit time,
    group children and pagination materialize afterward
  - cache entry - per-watcher state machine (unbuilt, building, built,
    stale) with at-most-once builds under concurrent access
  - resolver - URL and virtual path lookup over the built groups
  - dependency set - fingerprinted inputs (xxHash) driving invalidation

# Basic Usage

Creating an engine over a tree and watching an attribute:

	eng := groupby.New(tree)
	w, err := eng.AddWatcher("tags", groupby.Config{
	    Root:  "/blog",
	    Split: ",",
	})
	if err != nil {
	    log.Fatalf("failed to add watcher: %v", err)
	}

Reading groups (the first access builds):

	gs, err := eng.Group(ctx, "tags", "golang")
	if err != nil {
	    // errors.Is(err, groupby.ErrNoGroup) on unknown keys
	}
	fmt.Println(gs.URLPath(), len(gs.Children()))

A custom grouping callback, emitting one key per occurrence:

	w.Grouping(func(ctx context.Context, args groupby.CallbackArgs, emit *groupby.Emitter) error {
	    if s, ok := args.Field.(string); ok {
	        gs, err := emit.Emit(strings.ToLower(s))
	        if err != nil {
	            return err
	        }
	        _ = gs.Key() // final key usable immediately
	    }
	    return nil
	})

Config files register several watchers at once:

	err = eng.AddFromFile("configs/groupby.ini")

Reacting to content edits:

	tree.Touch("/blog/post-1")
	eng.Invalidate("/blog/post-1")   // next access rebuilds

# Addressing

Groups are reachable two ways: by URL path, the root record's URL
joined with the group slug ("/blog/tags/golang/"), and by virtual path
inside the tree ("/blog@groupby/tags/golang"). Pagination pages append
their page number to both forms. Resolve maps either form back to its
group:

	gs, err := eng.Resolve(ctx, "/blog/tags/golang/page/2/")

# Configuration Options

The engine takes functional options:

	eng := groupby.New(tree,
	    groupby.WithFs(afero.NewMemMapFs()),
	    groupby.WithLogger(slog.Default()),
	    groupby.WithTemplateDir("templates"),
	)

Watcher configs come from struct literals, loose maps (ParseMap) or
INI files (ParseINIFile).

# Error Handling

The package defines sentinel errors and wraps them with context:

  - ErrNoGroup: a key no watcher holds
  - ErrNoField: an undeclared group field
  - ErrWatcherExists: a second watcher for one attribute and root
  - ErrNotFound: a path the resolver does not serve
  - ErrBadPage: a page number outside the pagination range

Callback failures surface as *CallbackError naming the attribute and
record; invalid config as *ConfigError carrying every bad field.
*/
package groupby
