package source

import (
	"testing"
)

func TestMemTreeAddRecord(t *testing.T) {
	tree := NewMemTree()

	root, err := tree.AddRecord("", "/", "page", map[string]any{"title": "Home"})
	if err != nil {
		t.Fatalf("adding root: %v", err)
	}
	if root.Path() != "/" || root.URLPath() != "/" {
		t.Errorf("root path %q url %q, want / and /", root.Path(), root.URLPath())
	}

	blog, err := tree.AddRecord("/", "blog", "page", nil)
	if err != nil {
		t.Fatalf("adding /blog: %v", err)
	}
	if blog.Path() != "/blog" || blog.URLPath() != "/blog/" {
		t.Errorf("blog path %q url %q, want /blog and /blog/", blog.Path(), blog.URLPath())
	}

	first, err := tree.AddRecord("/blog", "first", "post", map[string]any{"title": "First"})
	if err != nil {
		t.Fatalf("adding /blog/first: %v", err)
	}
	if first.Path() != "/blog/first" {
		t.Errorf("path = %q, want /blog/first", first.Path())
	}
	if got := first.Get("title"); got != "First" {
		t.Errorf("Get(title) = %v, want First", got)
	}
	if got := first.Get("missing"); got != nil {
		t.Errorf("Get(missing) = %v, want nil", got)
	}

	kids := blog.Children()
	if len(kids) != 1 || kids[0].Path() != "/blog/first" {
		t.Errorf("children = %v, want [/blog/first]", kids)
	}
	if roots := tree.Roots(); len(roots) != 1 || roots[0].Path() != "/" {
		t.Errorf("roots = %v, want the single root", roots)
	}
}

func TestMemTreeAddRecordErrors(t *testing.T) {
	tree := NewMemTree()
	if _, err := tree.AddRecord("", "/", "", nil); err != nil {
		t.Fatalf("adding root: %v", err)
	}

	if _, err := tree.AddRecord("", "/", "", nil); err == nil {
		t.Error("duplicate path accepted")
	}
	if _, err := tree.AddRecord("/nowhere", "x", "", nil); err == nil {
		t.Error("missing parent accepted")
	}
	if _, err := tree.AddRecord("/", "", "", nil); err == nil {
		t.Error("empty id accepted")
	}
	if _, err := tree.AddAttachment("", "loose.jpg", "", nil); err == nil {
		t.Error("attachment without parent accepted")
	}
}

func TestMemTreeAttachment(t *testing.T) {
	tree := NewMemTree()
	if _, err := tree.AddRecord("", "/", "", nil); err != nil {
		t.Fatalf("adding root: %v", err)
	}
	at, err := tree.AddAttachment("/", "photo.jpg", "", nil)
	if err != nil {
		t.Fatalf("adding attachment: %v", err)
	}

	if at.Path() != "/photo.jpg" {
		t.Errorf("path = %q, want /photo.jpg", at.Path())
	}
	// Attachments are served as plain files, no trailing slash.
	if at.URLPath() != "/photo.jpg" {
		t.Errorf("url = %q, want /photo.jpg", at.URLPath())
	}
	if !at.IsAttachment() {
		t.Error("IsAttachment = false")
	}

	root := tree.Get("/")
	if got := root.Attachments(); len(got) != 1 || got[0].Path() != "/photo.jpg" {
		t.Errorf("attachments = %v, want [/photo.jpg]", got)
	}
	if got := root.Children(); len(got) != 0 {
		t.Errorf("children = %v, want none", got)
	}
}

func TestMemTreeGetNormalizes(t *testing.T) {
	tree := NewMemTree()
	if _, err := tree.AddRecord("", "/", "", nil); err != nil {
		t.Fatalf("adding root: %v", err)
	}
	if _, err := tree.AddRecord("/", "blog", "", nil); err != nil {
		t.Fatalf("adding /blog: %v", err)
	}

	want := tree.Get("/blog")
	for _, p := range []string{"blog", "/blog/", "//blog"} {
		if got := tree.Get(p); got != want {
			t.Errorf("Get(%q) = %v, want the /blog record", p, got)
		}
	}
	if got := tree.Get("/missing"); got != nil {
		t.Errorf("Get(/missing) = %v, want nil", got)
	}
}

func TestMemRecordRevisions(t *testing.T) {
	tree := NewMemTree()
	rec, err := tree.AddRecord("", "/", "", map[string]any{"title": "Home"})
	if err != nil {
		t.Fatalf("adding root: %v", err)
	}

	if got := tree.Revision("/"); got != 0 {
		t.Errorf("fresh revision = %d, want 0", got)
	}
	rec.Set("title", "Start")
	if got := tree.Revision("/"); got != 1 {
		t.Errorf("revision after Set = %d, want 1", got)
	}
	tree.Touch("/")
	if got := tree.Revision("/"); got != 2 {
		t.Errorf("revision after Touch = %d, want 2", got)
	}
	if got := tree.Revision("/other"); got != 0 {
		t.Errorf("unrelated revision = %d, want 0", got)
	}
	if got := rec.Get("title"); got != "Start" {
		t.Errorf("Get(title) = %v, want Start", got)
	}
}

func TestMemRecordOverrides(t *testing.T) {
	tree := NewMemTree()
	rec, err := tree.AddRecord("", "/", "", nil)
	if err != nil {
		t.Fatalf("adding root: %v", err)
	}

	rec.SetURLPath("/custom/")
	if rec.URLPath() != "/custom/" {
		t.Errorf("url = %q, want /custom/", rec.URLPath())
	}

	names := []string{"content/record.toml"}
	rec.SetSourceFilenames(names...)
	names[0] = "mutated"
	got := rec.SourceFilenames()
	if len(got) != 1 || got[0] != "content/record.toml" {
		t.Errorf("source filenames = %v, want the copied original", got)
	}
	got[0] = "mutated again"
	if rec.SourceFilenames()[0] != "content/record.toml" {
		t.Error("SourceFilenames leaks its backing slice")
	}
}

func TestMemTreePaths(t *testing.T) {
	tree := NewMemTree()
	if _, err := tree.AddRecord("", "/", "", nil); err != nil {
		t.Fatalf("adding root: %v", err)
	}
	for _, id := range []string{"c", "a", "b"} {
		if _, err := tree.AddRecord("/", id, "", nil); err != nil {
			t.Fatalf("adding /%s: %v", id, err)
		}
	}

	want := []string{"/", "/a", "/b", "/c"}
	got := tree.Paths()
	if len(got) != len(want) {
		t.Fatalf("paths = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("paths = %v, want %v", got, want)
		}
	}
}
