package groupby

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/gophersatwork/groupby/source"
)

func TestMain(t *testing.M) {
	code := t.Run()

	os.Exit(code)
}

func fixedNowFunc() time.Time {
	return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
}

// blogTree builds the tree most tests run against: a /blog subtree of
// posts carrying a flagged "tags" field, a flagged "category" field
// and a flow body whose text blocks carry a flagged "inline" tag.
func blogTree(t *testing.T) *source.MemTree {
	t.Helper()

	tree := source.NewMemTree()
	tree.AddModel(&source.Model{ID: "page", Fields: []source.Field{
		{Name: "title", Type: "string"},
	}})
	tree.AddModel(&source.Model{ID: "post", Fields: []source.Field{
		{Name: "title", Type: "string"},
		{Name: "pub_date", Type: "string"},
		{Name: "tags", Type: "strings", Options: map[string]string{"tags": "true"}},
		{Name: "category", Type: "string", Options: map[string]string{"category": "yes"}},
		{Name: "body", Type: "flow"},
	}})
	tree.AddFlowModel(&source.FlowModel{ID: "text", Fields: []source.Field{
		{Name: "content", Type: "string"},
		{Name: "tag", Type: "string", Options: map[string]string{"inline": "1"}},
	}})

	mustAdd := func(parent, id, model string, fields map[string]any) *source.MemRecord {
		t.Helper()
		rec, err := tree.AddRecord(parent, id, model, fields)
		if err != nil {
			t.Fatalf("Failed to add record %q under %q: %v", id, parent, err)
		}
		return rec
	}

	mustAdd("", "/", "page", map[string]any{"title": "Home"})
	mustAdd("/", "blog", "page", map[string]any{"title": "Blog"})

	mustAdd("/blog", "first", "post", map[string]any{
		"title":    "First Post",
		"pub_date": "2024-01-10",
		"tags":     []string{"go", "web"},
		"category": "tech",
		"body": &source.Flow{Blocks: []*source.Block{
			source.NewBlock("text").Set("content", "intro").Set("tag", "Really Awesome"),
			source.NewBlock("text").Set("content", "more text"),
		}},
	}).SetSourceFilenames("content/blog/first/record.toml")

	mustAdd("/blog", "second", "post", map[string]any{
		"title":    "Second Post",
		"pub_date": "2024-02-05",
		"tags":     []string{"go"},
		"category": "life",
	}).SetSourceFilenames("content/blog/second/record.toml")

	mustAdd("/blog", "third", "post", map[string]any{
		"title":    "Third Post",
		"pub_date": "2024-03-20",
		"tags":     []string{"web", "design"},
		"category": "tech",
		"body": &source.Flow{Blocks: []*source.Block{
			source.NewBlock("text").Set("content", "notes").Set("tag", "checklists"),
		}},
	}).SetSourceFilenames("content/blog/third/record.toml")

	return tree
}

// newTestEngine creates an engine over tree with an in-memory
// filesystem and a fixed clock.
func newTestEngine(t *testing.T, tree source.Tree) (*Engine, afero.Fs) {
	t.Helper()
	memFs := afero.NewMemMapFs()
	eng := New(tree, WithFs(memFs), WithNowFunc(fixedNowFunc))
	return eng, memFs
}

// tagsWatcher registers the watcher most tests exercise: attribute
// "tags" over /blog with the built-in split grouping.
func tagsWatcher(t *testing.T, eng *Engine) *Watcher {
	t.Helper()
	w, err := eng.AddWatcher("tags", Config{Root: "/blog"})
	if err != nil {
		t.Fatalf("Failed to add tags watcher: %v", err)
	}
	return w
}

func groupKeys(t *testing.T, eng *Engine, attribute string) []string {
	t.Helper()
	groups, err := eng.Groups(context.Background(), attribute)
	if err != nil {
		t.Fatalf("Failed to list groups for %q: %v", attribute, err)
	}
	keys := make([]string, len(groups))
	for i, gs := range groups {
		keys[i] = gs.Key()
	}
	return keys
}

func childPaths(gs *GroupBySource) []string {
	children := gs.Children()
	out := make([]string, len(children))
	for i, ch := range children {
		out[i] = ch.Record.Path()
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
