// Command site-build demonstrates the grouping engine on a small TOML
// site: it builds tag and category groups from a config file, shows
// pagination and URL resolution, then simulates an edit and an
// incremental rebuild.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gophersatwork/groupby"
	"github.com/gophersatwork/groupby/source"
	"github.com/spf13/afero"
)

func main() {
	siteDir := flag.String("site", "site", "site directory holding models/, content/ and configs/")
	verbose := flag.Bool("v", false, "verbose engine logging")
	flag.Parse()

	fsys := afero.NewOsFs()
	tree, err := source.Load(fsys, *siteDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading site: %v\n", err)
		os.Exit(1)
	}

	opts := []groupby.Option{groupby.WithFs(fsys)}
	if *verbose {
		opts = append(opts, groupby.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))))
	}
	eng := groupby.New(tree, opts...)

	if err := eng.AddFromFile(filepath.Join(*siteDir, "configs", "groupby.ini")); err != nil {
		fmt.Fprintf(os.Stderr, "loading groupby config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	for _, w := range eng.Watchers() {
		groups, err := w.Groups(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "building %s: %v\n", w.Attribute(), err)
			os.Exit(1)
		}
		fmt.Printf("== %s under %s: %d groups\n", w.Attribute(), w.Root(), len(groups))
		for _, gs := range groups {
			fmt.Printf("  %-12s %-28s", gs.Key(), gs.URLPath())
			if pag := gs.Pagination(); pag != nil && pag.NumPages > 1 {
				fmt.Printf("%d posts over %d pages\n", pag.Total, pag.NumPages)
			} else {
				fmt.Printf("%d posts\n", len(gs.Children()))
			}
			for _, child := range gs.Children() {
				fmt.Printf("      - %s\n", child.Record.Path())
			}
		}
	}

	// Every URL printed above resolves back to its group, page URLs
	// included.
	if gs, err := eng.Resolve(ctx, "/blog/tags/go/"); err == nil {
		fmt.Printf("\n/blog/tags/go/ -> %s (template %s)\n", gs.VirtualPath(), gs.Template())
	}
	if gs, err := eng.Resolve(ctx, "/blog/tags/go/page/2/"); err == nil {
		items, _ := gs.Items()
		fmt.Printf("/blog/tags/go/page/2/ -> page %d with %d posts\n", gs.PageNum(), len(items))
	}

	// Simulate an edit: the css-grid post loses its design tag. Only
	// the invalidated builds are redone; the design group disappears
	// and its URL is reported for artifact cleanup.
	if rec, ok := tree.Get("/blog/css-grid").(*source.MemRecord); ok {
		rec.Set("tags", []string{"web"})
		n := eng.Invalidate("/blog/css-grid")
		fmt.Printf("\nedited /blog/css-grid: %d build(s) marked stale\n", n)

		groups, err := eng.Groups(ctx, "tags")
		if err != nil {
			fmt.Fprintf(os.Stderr, "rebuilding tags: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("tags rebuilt: %d groups\n", len(groups))
		for _, urlPath := range eng.PruneStale() {
			fmt.Printf("stale artifact to remove: %s\n", urlPath)
		}
	}

	stats := eng.Stats()
	fmt.Printf("\n%d watchers, %d builds (%d rebuilds), %d cache hits, %d groups, %d dependencies\n",
		stats.Watchers, stats.Builds, stats.Rebuilds, stats.CacheHits, stats.Groups, stats.Dependencies)
}
