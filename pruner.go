package groupby

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// PruneArtifacts deletes the built files of retracted URL paths from a
// destination filesystem, then removes directories left empty, walking
// up toward the destination root. Directory-style URLs map to their
// "index.html"; missing artifacts are skipped silently so pruning is
// idempotent.
//
// Typical use after rebuilds:
//
//	stale := eng.PruneStale()
//	if err := eng.PruneArtifacts(destFs, stale); err != nil { ... }
func (eng *Engine) PruneArtifacts(dest afero.Fs, urlPaths []string) error {
	for _, u := range urlPaths {
		target := artifactPath(u)
		exists, err := afero.Exists(dest, target)
		if err != nil {
			return fmt.Errorf("failed to check artifact %s: %w", target, err)
		}
		if !exists {
			continue
		}
		if err := dest.Remove(target); err != nil {
			return fmt.Errorf("failed to remove artifact %s: %w", target, err)
		}
		eng.log.Info("pruned artifact", "url", u, "path", target)
		removeEmptyParents(dest, filepath.Dir(target))
	}
	return nil
}

// artifactPath maps a URL path to the file a static builder writes for
// it, relative to the destination root.
func artifactPath(urlPath string) string {
	p := strings.TrimPrefix(urlPath, "/")
	if p == "" || strings.HasSuffix(p, "/") {
		return filepath.FromSlash(p + "index.html")
	}
	return filepath.FromSlash(p)
}

// removeEmptyParents removes dir and its ancestors while they stay
// empty. Errors stop the climb; a non-empty directory is the normal
// stopping point, not a failure.
func removeEmptyParents(dest afero.Fs, dir string) {
	for dir != "." && dir != "/" && dir != "" {
		entries, err := afero.ReadDir(dest, dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := dest.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
