package groupby

import (
	"testing"

	"github.com/spf13/afero"
)

func TestArtifactPath(t *testing.T) {
	testCases := []struct {
		name    string
		urlPath string
		want    string
	}{
		{name: "directory style", urlPath: "/blog/tags/go/", want: "blog/tags/go/index.html"},
		{name: "file style", urlPath: "/blog/feed.xml", want: "blog/feed.xml"},
		{name: "root", urlPath: "/", want: "index.html"},
		{name: "no leading slash", urlPath: "tags/go/", want: "tags/go/index.html"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := artifactPath(tc.urlPath); got != tc.want {
				t.Errorf("artifactPath(%q) = %q, want %q", tc.urlPath, got, tc.want)
			}
		})
	}
}

func TestPruneArtifacts(t *testing.T) {
	eng, _ := newTestEngine(t, blogTree(t))
	dest := afero.NewMemMapFs()
	for _, f := range []string{
		"blog/tags/design/index.html",
		"blog/tags/go/index.html",
	} {
		if err := afero.WriteFile(dest, f, []byte("<html>"), 0o644); err != nil {
			t.Fatalf("writing %s: %v", f, err)
		}
	}

	// A path with no artifact on disk is skipped, not an error.
	err := eng.PruneArtifacts(dest, []string{"/blog/tags/design/", "/blog/gone/page.html"})
	if err != nil {
		t.Fatalf("PruneArtifacts failed: %v", err)
	}

	if exists, _ := afero.Exists(dest, "blog/tags/design/index.html"); exists {
		t.Error("retracted artifact still on disk")
	}
	if exists, _ := afero.DirExists(dest, "blog/tags/design"); exists {
		t.Error("emptied directory still on disk")
	}
	if exists, _ := afero.Exists(dest, "blog/tags/go/index.html"); !exists {
		t.Error("unrelated artifact was removed")
	}

	// Pruning the same paths again is a no-op.
	if err := eng.PruneArtifacts(dest, []string{"/blog/tags/design/"}); err != nil {
		t.Errorf("second prune failed: %v", err)
	}
}

func TestPruneArtifactsKeepsSharedParents(t *testing.T) {
	eng, _ := newTestEngine(t, blogTree(t))
	dest := afero.NewMemMapFs()
	for _, f := range []string{
		"tags/go/index.html",
		"tags/web/index.html",
	} {
		if err := afero.WriteFile(dest, f, []byte("<html>"), 0o644); err != nil {
			t.Fatalf("writing %s: %v", f, err)
		}
	}

	if err := eng.PruneArtifacts(dest, []string{"/tags/go/"}); err != nil {
		t.Fatalf("PruneArtifacts failed: %v", err)
	}

	if exists, _ := afero.Exists(dest, "tags/web/index.html"); !exists {
		t.Error("sibling artifact was removed")
	}
	if exists, _ := afero.DirExists(dest, "tags"); !exists {
		t.Error("shared parent directory was removed")
	}
}
