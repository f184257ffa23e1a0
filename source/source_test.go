package source

import (
	"errors"
	"testing"
)

func walkTree(t *testing.T) *MemTree {
	t.Helper()
	tree := NewMemTree()
	if _, err := tree.AddRecord("", "/", "", nil); err != nil {
		t.Fatalf("adding root: %v", err)
	}
	for _, id := range []string{"a", "b"} {
		if _, err := tree.AddRecord("/", id, "", nil); err != nil {
			t.Fatalf("adding /%s: %v", id, err)
		}
	}
	if _, err := tree.AddAttachment("/a", "photo.jpg", "", nil); err != nil {
		t.Fatalf("adding attachment: %v", err)
	}
	if _, err := tree.AddRecord("/a", "deep", "", nil); err != nil {
		t.Fatalf("adding /a/deep: %v", err)
	}
	return tree
}

func TestWalkOrder(t *testing.T) {
	tree := walkTree(t)

	var visited []string
	err := Walk(tree.Get("/"), func(rec Record) error {
		visited = append(visited, rec.Path())
		return nil
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	// Record first, then attachments, then each child subtree.
	want := []string{"/", "/a", "/a/photo.jpg", "/a/deep", "/b"}
	if len(visited) != len(want) {
		t.Fatalf("visited = %v, want %v", visited, want)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Fatalf("visited = %v, want %v", visited, want)
		}
	}
}

func TestWalkStopsOnError(t *testing.T) {
	tree := walkTree(t)
	boom := errors.New("boom")

	count := 0
	err := Walk(tree.Get("/"), func(Record) error {
		count++
		if count == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want the visit error", err)
	}
	if count != 2 {
		t.Errorf("visited %d records after the error, want 2", count)
	}
}

func TestWalkNilRecord(t *testing.T) {
	err := Walk(nil, func(Record) error {
		t.Error("visit called for a nil record")
		return nil
	})
	if err != nil {
		t.Errorf("Walk(nil) = %v, want nil", err)
	}
}

func TestBlock(t *testing.T) {
	b := NewBlock("text").Set("content", "intro").Set("tag", "go")
	if b.Type() != "text" {
		t.Errorf("Type = %q, want text", b.Type())
	}
	if got := b.Get("content"); got != "intro" {
		t.Errorf("Get(content) = %v, want intro", got)
	}
	if got := b.Get("absent"); got != nil {
		t.Errorf("Get(absent) = %v, want nil", got)
	}

	// Overwriting keeps the original key position.
	b.Set("content", "revised")
	keys := b.Keys()
	if len(keys) != 2 || keys[0] != "content" || keys[1] != "tag" {
		t.Errorf("Keys = %v, want [content tag]", keys)
	}
	if got := b.Get("content"); got != "revised" {
		t.Errorf("Get(content) = %v, want revised", got)
	}
}

func TestFieldFlagged(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  bool
	}{
		{name: "one", value: "1", want: true},
		{name: "true", value: "true", want: true},
		{name: "yes upper", value: "YES", want: true},
		{name: "on padded", value: " on ", want: true},
		{name: "zero", value: "0", want: false},
		{name: "empty", value: "", want: false},
		{name: "junk", value: "maybe", want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := Field{Name: "x", Options: map[string]string{"tags": tc.value}}
			if got := f.Flagged("tags"); got != tc.want {
				t.Errorf("Flagged(%q) = %v, want %v", tc.value, got, tc.want)
			}
		})
	}

	if (Field{Name: "x"}).Flagged("tags") {
		t.Error("field without options reported as flagged")
	}
}

func TestFieldAllowsBlock(t *testing.T) {
	open := Field{Name: "body", Type: "flow"}
	if !open.AllowsBlock("anything") {
		t.Error("nil BlockTypes should allow every block type")
	}

	narrow := Field{Name: "body", Type: "flow", BlockTypes: []string{"text", "aside"}}
	if !narrow.AllowsBlock("aside") {
		t.Error("listed block type rejected")
	}
	if narrow.AllowsBlock("video") {
		t.Error("unlisted block type allowed")
	}
}

func TestModelField(t *testing.T) {
	m := &Model{ID: "post", Fields: []Field{
		{Name: "title"},
		{Name: "tags", Type: "strings"},
	}}

	f, ok := m.Field("tags")
	if !ok || f.Type != "strings" {
		t.Errorf("Field(tags) = %+v, %v", f, ok)
	}
	if _, ok := m.Field("missing"); ok {
		t.Error("Field(missing) reported existing")
	}
}

func TestNormalizePath(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: "/"},
		{name: "root", in: "/", want: "/"},
		{name: "no leading slash", in: "blog", want: "/blog"},
		{name: "trailing slash", in: "/blog/", want: "/blog"},
		{name: "doubled slashes", in: "//a//b/", want: "/a/b"},
		{name: "whitespace", in: "  /x  ", want: "/x"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizePath(tc.in); got != tc.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestJoinPath(t *testing.T) {
	testCases := []struct {
		name   string
		parent string
		id     string
		want   string
	}{
		{name: "under root", parent: "/", id: "a", want: "/a"},
		{name: "nested", parent: "/blog", id: "x", want: "/blog/x"},
		{name: "slashes trimmed", parent: "/blog/", id: "/x/", want: "/blog/x"},
		{name: "empty parent", parent: "", id: "a", want: "/a"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := JoinPath(tc.parent, tc.id); got != tc.want {
				t.Errorf("JoinPath(%q, %q) = %q, want %q", tc.parent, tc.id, got, tc.want)
			}
		})
	}
}
