package roots

import (
	"strings"

	"sourcefs/internal/fsutil"
)

// Predicate decides whether an entry below a root is analyzer-relevant.
// It receives the absolute path, the root-relative slash path and
// whether the entry is a directory.
type Predicate func(absPath, relPath string, isDir bool) bool

// Config declares which entries below a root are analyzer-relevant.
// The zero value is replaced by DefaultConfig when a set is built.
type Config struct {
	// Extensions lists the file suffixes that are loaded, e.g. ".go".
	Extensions []string
	// BuildDirs are directory names pruned at the root's top level only.
	BuildDirs []string
	// IgnoredDirs are directory names pruned at any depth.
	IgnoredDirs []string
	// Predicate replaces the rule-based filtering above when set.
	Predicate Predicate
}

// DefaultConfig returns the filter rules applied when a root does not
// configure its own.
func DefaultConfig() Config {
	return Config{
		Extensions:  []string{".go"},
		BuildDirs:   []string{"target", "build", "dist", "out"},
		IgnoredDirs: []string{".git", ".hg", ".svn", "node_modules", "vendor"},
	}
}

func (c Config) isZero() bool {
	return len(c.Extensions) == 0 && len(c.BuildDirs) == 0 &&
		len(c.IgnoredDirs) == 0 && c.Predicate == nil
}

func (c Config) predicate() Predicate {
	if c.Predicate != nil {
		return c.Predicate
	}
	extensions := append([]string(nil), c.Extensions...)
	buildDirs := toSet(c.BuildDirs)
	ignoredDirs := toSet(c.IgnoredDirs)

	return func(_ string, relPath string, isDir bool) bool {
		parts := fsutil.Components(relPath)
		dirParts := parts
		if !isDir {
			dirParts = parts[:len(parts)-1]
		}
		if len(dirParts) > 0 && buildDirs[dirParts[0]] {
			return false
		}
		for _, part := range dirParts {
			if ignoredDirs[part] {
				return false
			}
		}
		if isDir {
			return true
		}
		name := parts[len(parts)-1]
		for _, ext := range extensions {
			if strings.HasSuffix(name, ext) {
				return true
			}
		}
		return false
	}
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

// Filter decides membership for a single root: a path belongs to the
// root when it sits below the root directory, below none of the nested
// roots carved out of it, and passes the inclusion predicate.
type Filter struct {
	dir      string
	include  Predicate
	excluded []string
}

// Dir returns the absolute root directory.
func (f *Filter) Dir() string {
	return f.dir
}

// CanContain reports whether path belongs to this root and returns its
// root-relative slash path. Descendants of nested roots never match,
// so resolution does not depend on the order filters are tried in.
func (f *Filter) CanContain(path string) (string, bool) {
	rel, ok := fsutil.RelativeTo(f.dir, path)
	if !ok {
		return "", false
	}
	if f.excludes(rel) || !f.include(path, rel, false) {
		return "", false
	}
	return rel, true
}

// Traversable reports whether a scan should descend into (for
// directories) or consider (for files) the given path. Nested root
// directories are pruned here and scanned under their own root.
func (f *Filter) Traversable(path string, isDir bool) bool {
	rel, ok := fsutil.RelativeTo(f.dir, path)
	if !ok {
		return false
	}
	if f.excludes(rel) {
		return false
	}
	return f.include(path, rel, isDir)
}

func (f *Filter) excludes(rel string) bool {
	for _, dir := range f.excluded {
		if rel == dir || strings.HasPrefix(rel, dir+"/") {
			return true
		}
	}
	return false
}
