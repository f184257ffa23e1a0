package groupby

import (
	"context"
	"testing"
)

func queryLabels(groups []*GroupBySource) []string {
	labels := make([]string, 0, len(groups))
	for _, gs := range groups {
		labels = append(labels, gs.Attribute()+"/"+gs.Key())
	}
	return labels
}

func TestQueryParentOnly(t *testing.T) {
	tree := blogTree(t)
	eng, _ := newTestEngine(t, tree)
	tagsWatcher(t, eng)
	if _, err := eng.AddWatcher("category", Config{Root: "/blog"}); err != nil {
		t.Fatalf("AddWatcher failed: %v", err)
	}
	ctx := context.Background()

	groups, err := eng.Query(ctx, tree.Get("/blog/first"), QueryOptions{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	want := []string{"tags/go", "tags/web", "category/tech"}
	if got := queryLabels(groups); !equalStrings(got, want) {
		t.Errorf("groups = %v, want %v", got, want)
	}
}

func TestQueryRecursive(t *testing.T) {
	tree := blogTree(t)
	eng, _ := newTestEngine(t, tree)
	tagsWatcher(t, eng)
	ctx := context.Background()

	groups, err := eng.Query(ctx, tree.Get("/blog"), QueryOptions{Recursive: true})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	want := []string{"tags/go", "tags/web", "tags/design"}
	if got := queryLabels(groups); !equalStrings(got, want) {
		t.Errorf("recursive groups = %v, want %v", got, want)
	}

	// The listing page itself contributes nothing, so a shallow
	// query over it comes back empty.
	shallow, err := eng.Query(ctx, tree.Get("/blog"), QueryOptions{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(shallow) != 0 {
		t.Errorf("shallow groups = %v, want none", queryLabels(shallow))
	}
}

func TestQueryNilParent(t *testing.T) {
	eng, _ := newTestEngine(t, blogTree(t))
	tagsWatcher(t, eng)

	groups, err := eng.Query(context.Background(), nil, QueryOptions{Recursive: true})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if groups != nil {
		t.Errorf("groups = %v, want nil for a nil parent", queryLabels(groups))
	}
}

func TestQueryKeyFilter(t *testing.T) {
	tree := blogTree(t)
	eng, _ := newTestEngine(t, tree)
	tagsWatcher(t, eng)

	groups, err := eng.Query(context.Background(), tree.Get("/blog"), QueryOptions{
		Recursive: true,
		Keys:      []string{"web"},
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if got := queryLabels(groups); !equalStrings(got, []string{"tags/web"}) {
		t.Errorf("groups = %v, want only tags/web", got)
	}
}

func TestQueryKeyFilterMatchesPreMergeKey(t *testing.T) {
	tree := blogTree(t)
	eng, _ := newTestEngine(t, tree)
	if _, err := eng.AddWatcher("tags", Config{Root: "/blog", Slug: "all/"}); err != nil {
		t.Fatalf("AddWatcher failed: %v", err)
	}

	// Every key shares the slug all/, so the groups merge into the
	// first one. Querying by a merged-away key still finds the
	// surviving group.
	groups, err := eng.Query(context.Background(), tree.Get("/blog/third"), QueryOptions{
		Keys: []string{"design"},
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(groups) != 1 || groups[0].Key() != "go" {
		t.Errorf("groups = %v, want the surviving tags/go group", queryLabels(groups))
	}
}

func TestQueryFieldFilter(t *testing.T) {
	tree := blogTree(t)
	eng, _ := newTestEngine(t, tree)
	tagsWatcher(t, eng)
	if _, err := eng.AddWatcher("category", Config{Root: "/blog"}); err != nil {
		t.Fatalf("AddWatcher failed: %v", err)
	}

	groups, err := eng.Query(context.Background(), tree.Get("/blog/first"), QueryOptions{
		Fields: []string{"category"},
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if got := queryLabels(groups); !equalStrings(got, []string{"category/tech"}) {
		t.Errorf("groups = %v, want only category/tech", got)
	}
}

func TestQueryFlowFilter(t *testing.T) {
	tree := blogTree(t)
	eng, _ := newTestEngine(t, tree)
	tagsWatcher(t, eng)
	if _, err := eng.AddWatcher("inline", Config{Root: "/blog"}); err != nil {
		t.Fatalf("AddWatcher failed: %v", err)
	}
	ctx := context.Background()

	groups, err := eng.Query(ctx, tree.Get("/blog"), QueryOptions{
		Recursive: true,
		Flows:     []string{"tag"},
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	want := []string{"inline/really-awesome", "inline/checklists"}
	if got := queryLabels(groups); !equalStrings(got, want) {
		t.Errorf("flow groups = %v, want %v", got, want)
	}

	// A flow filter never matches top-level field contributions.
	none, err := eng.Query(ctx, tree.Get("/blog"), QueryOptions{
		Recursive: true,
		Flows:     []string{"tags"},
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("groups = %v, want none", queryLabels(none))
	}
}

func TestQueryOrderBy(t *testing.T) {
	tree := blogTree(t)
	eng, _ := newTestEngine(t, tree)
	tagsWatcher(t, eng)
	ctx := context.Background()

	byKey, err := eng.Query(ctx, tree.Get("/blog"), QueryOptions{
		Recursive: true,
		OrderBy:   ParseOrderBy("key"),
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if got := queryLabels(byKey); !equalStrings(got, []string{"tags/design", "tags/go", "tags/web"}) {
		t.Errorf("by key = %v", got)
	}

	byTotal, err := eng.Query(ctx, tree.Get("/blog"), QueryOptions{
		Recursive: true,
		OrderBy:   ParseOrderBy("total"),
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if got := queryLabels(byTotal); !equalStrings(got, []string{"tags/design", "tags/go", "tags/web"}) {
		t.Errorf("by total = %v, want the one-post group first", got)
	}
}

func TestQueryDedupsRepeatedContributions(t *testing.T) {
	tree := blogTree(t)
	eng, _ := newTestEngine(t, tree)
	w := tagsWatcher(t, eng)
	w.Grouping(func(_ context.Context, _ CallbackArgs, emit *Emitter) error {
		// Two emits per occurrence land in the same group.
		if _, err := emit.Emit("all"); err != nil {
			return err
		}
		_, err := emit.Emit("all")
		return err
	})

	groups, err := eng.Query(context.Background(), tree.Get("/blog"), QueryOptions{Recursive: true})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if got := queryLabels(groups); !equalStrings(got, []string{"tags/all"}) {
		t.Errorf("groups = %v, want tags/all once", got)
	}
}

func TestQuerySkipsForeignWatchers(t *testing.T) {
	tree := blogTree(t)
	eng, _ := newTestEngine(t, tree)
	tagsWatcher(t, eng)
	other, err := eng.AddWatcher("tags", Config{Root: "/other"})
	if err != nil {
		t.Fatalf("AddWatcher failed: %v", err)
	}

	if _, err := eng.Query(context.Background(), tree.Get("/blog/first"), QueryOptions{}); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if other.State() != StateUnbuilt {
		t.Errorf("state = %v, a watcher outside the queried subtree should stay unbuilt", other.State())
	}
}

func TestQueryCollector(t *testing.T) {
	tree := blogTree(t)
	eng, _ := newTestEngine(t, tree)
	if _, err := eng.AddWatcher("tags", Config{
		Root:         "/blog",
		Dependencies: []string{"configs/groupby.ini"},
	}); err != nil {
		t.Fatalf("AddWatcher failed: %v", err)
	}

	col := NewCollector()
	ctx := WithCollector(context.Background(), col)
	if _, err := eng.Query(ctx, tree.Get("/blog/first"), QueryOptions{}); err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	wantVirtual := []string{"/blog@groupby/tags/go", "/blog@groupby/tags/web"}
	if got := col.VirtualPaths(); !equalStrings(got, wantVirtual) {
		t.Errorf("virtual paths = %v, want %v", got, wantVirtual)
	}
	wantFiles := []string{"configs/groupby.ini", "content/blog/first/record.toml"}
	if got := col.Files(); !equalStrings(got, wantFiles) {
		t.Errorf("files = %v, want %v", got, wantFiles)
	}
}
