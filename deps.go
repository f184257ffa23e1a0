package groupby

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// depSet records what one built group set depends on: record paths
// inside the content tree, and concrete files outside it. Files are
// fingerprinted at build time so later changes can be detected without
// keeping the old content around.
type depSet struct {
	records map[string]struct{}
	files   map[string]string // path -> content fingerprint
}

func newDepSet() *depSet {
	return &depSet{
		records: make(map[string]struct{}),
		files:   make(map[string]string),
	}
}

// addRecord registers a content-tree path as a dependency.
func (d *depSet) addRecord(path string) {
	d.records[path] = struct{}{}
}

// addFile registers a file dependency with its current fingerprint.
func (d *depSet) addFile(fsys afero.Fs, newHash HashFunc, path string) {
	if _, ok := d.files[path]; ok {
		return
	}
	d.files[path] = fileFingerprint(fsys, newHash, path)
}

// addDeclared registers a declared dependency, which may be a plain
// file, a directory (all files beneath it) or a glob pattern,
// including recursive "**" globs.
func (d *depSet) addDeclared(fsys afero.Fs, newHash HashFunc, pattern string) {
	switch {
	case strings.ContainsAny(pattern, "*?["):
		for _, match := range expandGlob(fsys, pattern) {
			d.addFile(fsys, newHash, match)
		}
	default:
		if isDir, _ := afero.DirExists(fsys, pattern); isDir {
			_ = afero.Walk(fsys, pattern, func(path string, info os.FileInfo, err error) error {
				if err != nil || info.IsDir() {
					return nil
				}
				d.addFile(fsys, newHash, path)
				return nil
			})
			return
		}
		d.addFile(fsys, newHash, pattern)
	}
}

// contains reports whether the given path is tracked, either as a
// record path or as a file.
func (d *depSet) contains(path string) bool {
	if _, ok := d.records[path]; ok {
		return true
	}
	_, ok := d.files[path]
	return ok
}

// changed re-fingerprints every tracked file and returns the paths
// whose content no longer matches the recorded fingerprint.
func (d *depSet) changed(fsys afero.Fs, newHash HashFunc) []string {
	var out []string
	for path, fp := range d.files {
		if fileFingerprint(fsys, newHash, path) != fp {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// filePaths returns the tracked file paths, sorted.
func (d *depSet) filePaths() []string {
	out := make([]string, 0, len(d.files))
	for p := range d.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// size returns the number of tracked dependencies of both kinds.
func (d *depSet) size() int {
	return len(d.records) + len(d.files)
}

// expandGlob finds all files matching the pattern, sorted for
// determinism. Patterns may contain "**" to match any number of
// directories. A missing base directory is not an error, just no
// matches.
func expandGlob(fsys afero.Fs, pattern string) []string {
	hasRecursiveGlob := strings.Contains(pattern, "**")

	// Get the base directory to start the walk
	baseDir := "."
	if hasRecursiveGlob {
		// For patterns with "**", find the directory part before the first "**"
		parts := strings.Split(pattern, "**")
		baseDir = filepath.Dir(parts[0])
		if baseDir == "." && parts[0] != "" && !strings.HasSuffix(parts[0], "/") && !strings.HasSuffix(parts[0], string(filepath.Separator)) {
			baseDir = parts[0]
		}
	} else {
		// For simple patterns, use the directory part
		baseDir = filepath.Dir(pattern)
	}

	// If baseDir is ".", use empty string to search in current directory
	if baseDir == "." {
		baseDir = ""
	}

	exists, err := afero.DirExists(fsys, baseDir)
	if err != nil || (!exists && baseDir != "") {
		return nil
	}

	var matches []string
	_ = afero.Walk(fsys, baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// Skip directories
		if info.IsDir() {
			return nil
		}

		// For recursive glob patterns, use a custom matching logic
		if hasRecursiveGlob {
			if matchesGlobPattern(path, pattern) {
				matches = append(matches, path)
			}
		} else {
			// For simple patterns, use filepath.Match on the base name
			filePattern := filepath.Base(pattern)
			matched, err := filepath.Match(filePattern, filepath.Base(path))
			if err != nil {
				return err
			}
			if matched {
				matches = append(matches, path)
			}
		}

		return nil
	})

	sort.Strings(matches)
	return matches
}

// matchesGlobPattern checks if a path matches a glob pattern that may include "**".
// It handles the special case of "**" which matches any number of directories.
func matchesGlobPattern(path, pattern string) bool {
	// Convert pattern to use forward slashes for consistency
	pattern = filepath.ToSlash(pattern)
	path = filepath.ToSlash(path)

	// Split pattern into segments
	patternParts := strings.Split(pattern, "/")
	pathParts := strings.Split(path, "/")

	return matchGlobPatternParts(pathParts, patternParts, 0, 0)
}

// matchGlobPatternParts is a recursive helper function for matchesGlobPattern.
// It matches path parts against pattern parts using a recursive approach.
func matchGlobPatternParts(pathParts, patternParts []string, pathIndex, patternIndex int) bool {
	// If we've reached the end of the pattern, the match is successful only if
	// we've also reached the end of the path
	if patternIndex >= len(patternParts) {
		return pathIndex >= len(pathParts)
	}

	// If we've reached the end of the path but not the pattern, the match fails
	// unless the remaining pattern parts are all "**"
	if pathIndex >= len(pathParts) {
		// Check if all remaining pattern parts are "**"
		for i := patternIndex; i < len(patternParts); i++ {
			if patternParts[i] != "**" {
				return false
			}
		}
		return true
	}

	// Get the current pattern part
	patternPart := patternParts[patternIndex]
	pathPart := pathParts[pathIndex]

	// Handle "**" pattern
	if patternPart == "**" {
		// "**" can match zero or more directories
		// Try matching the rest of the pattern with the current path position
		if matchGlobPatternParts(pathParts, patternParts, pathIndex, patternIndex+1) {
			return true
		}
		// Or try matching the current pattern with the next path position
		return matchGlobPatternParts(pathParts, patternParts, pathIndex+1, patternIndex)
	}

	// For normal glob patterns, use filepath.Match
	matched, err := filepath.Match(patternPart, pathPart)
	if err != nil || !matched {
		return false
	}

	// If the current parts match, continue with the next parts
	return matchGlobPatternParts(pathParts, patternParts, pathIndex+1, patternIndex+1)
}
