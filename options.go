package groupby

import (
	"log/slog"

	"github.com/spf13/afero"
)

// WithFs sets a custom filesystem for the engine. Dependency
// fingerprints, config files and the source loader all read through
// it. This is primarily useful for testing with in-memory filesystems.
//
// Example:
//
//	eng := groupby.New(tree, groupby.WithFs(afero.NewMemMapFs()))
func WithFs(fs afero.Fs) Option {
	return func(eng *Engine) {
		eng.fs = fs
	}
}

// WithLogger sets the engine's logger. The default discards
// everything, keeping the library silent unless asked.
//
// Example:
//
//	eng := groupby.New(tree, groupby.WithLogger(slog.Default()))
func WithLogger(log *slog.Logger) Option {
	return func(eng *Engine) {
		if log != nil {
			eng.log = log
		}
	}
}

// WithSlugify sets the function that turns raw key text into final
// group keys. The default is gosimple's slug.Make. Changing it changes
// every group URL, so existing artifacts should be pruned after.
func WithSlugify(fn SlugifyFunc) Option {
	return func(eng *Engine) {
		if fn != nil {
			eng.slugify = fn
		}
	}
}

// WithHashFunc sets a custom hash function for dependency
// fingerprints. The default is xxHash64. Changing it makes every
// existing fingerprint look outdated once.
func WithHashFunc(hashFunc HashFunc) Option {
	return func(eng *Engine) {
		eng.hashFunc = hashFunc
	}
}

// WithNowFunc sets a custom time function for the engine.
// This is primarily useful for testing with deterministic timestamps.
func WithNowFunc(nowFunc NowFunc) Option {
	return func(eng *Engine) {
		eng.nowFunc = nowFunc
	}
}

// WithTemplateDir names the directory holding group templates. When
// set, each watcher's template file joins its dependency set, so
// editing a template invalidates the groups rendered with it.
//
// Example:
//
//	eng := groupby.New(tree, groupby.WithTemplateDir("templates"))
func WithTemplateDir(dir string) Option {
	return func(eng *Engine) {
		eng.templateDir = dir
	}
}
