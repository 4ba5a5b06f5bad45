// Package pattern implements the Pattern Matcher: accept/reject a path by
// include/exclude glob pattern lists.
package pattern

import (
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/localsearchd/localsearchd/internal/errors"
)

// validationCacheSize bounds the compiled/validated pattern cache shared by
// every Matcher in the process, mirroring the teacher's bounded gitignore
// matcher cache.
const validationCacheSize = 1000

var (
	validationCache   *lru.Cache[string, bool]
	validationCacheMu sync.Mutex
)

func init() {
	validationCache, _ = lru.New[string, bool](validationCacheSize)
}

// Matcher applies an ordered include list and an ordered exclude list to a
// path, per spec §4.1: excludes match the full path, includes match the
// basename, and an empty include list admits everything not excluded.
type Matcher struct {
	include []string
	exclude []string
}

// New validates every pattern and constructs a Matcher. Unparseable
// patterns are rejected here, not at match time.
func New(include, exclude []string) (*Matcher, error) {
	for _, p := range include {
		if err := validate(p); err != nil {
			return nil, errors.ConfigError("invalid include pattern", err).WithDetail("pattern", p)
		}
	}
	for _, p := range exclude {
		if err := validate(p); err != nil {
			return nil, errors.ConfigError("invalid exclude pattern", err).WithDetail("pattern", p)
		}
	}
	return &Matcher{include: include, exclude: exclude}, nil
}

func validate(p string) error {
	validationCacheMu.Lock()
	if ok, hit := validationCache.Get(p); hit {
		validationCacheMu.Unlock()
		if ok {
			return nil
		}
		return doublestar.ErrBadPattern
	}
	validationCacheMu.Unlock()

	_, err := doublestar.Match(p, "probe")
	valid := err == nil

	validationCacheMu.Lock()
	validationCache.Add(p, valid)
	validationCacheMu.Unlock()

	if !valid {
		return doublestar.ErrBadPattern
	}
	return nil
}

// ShouldInclude returns true iff no exclude pattern matches the full path
// and (the include list is empty or some include pattern matches the
// basename). This is the file-level accept/reject rule from §4.1 — it must
// not be used to prune directories, since a directory's basename (e.g.
// "reports") will almost never match a file-extension include glob (e.g.
// "*.pdf"). Use ShouldDescend for directory walking instead.
func (m *Matcher) ShouldInclude(path string) bool {
	for _, p := range m.exclude {
		if ok, _ := doublestar.Match(p, path); ok {
			return false
		}
	}
	if len(m.include) == 0 {
		return true
	}
	base := filepath.Base(path)
	for _, p := range m.include {
		if ok, _ := doublestar.Match(p, base); ok {
			return true
		}
	}
	return false
}

// ShouldDescend reports whether a walker should recurse into the directory
// at path. Only excludes apply here (matched against the full path) —
// includes are a file-selection rule and are deliberately not consulted,
// since a directory's own basename rarely matches a file-extension glob;
// applying ShouldInclude to directories would prune every subdirectory as
// soon as any include pattern is configured.
func (m *Matcher) ShouldDescend(path string) bool {
	for _, p := range m.exclude {
		if ok, _ := doublestar.Match(p, path); ok {
			return false
		}
	}
	return true
}
