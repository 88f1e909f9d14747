// Package roots tracks the registered source roots and decides which
// root, if any, owns a given absolute path. Roots may nest; a nested
// root carves its subtree out of every enclosing root.
package roots

import (
	"path/filepath"
	"sort"

	"sourcefs/internal/arena"
	"sourcefs/internal/fsutil"
)

// ID identifies a registered root. IDs are assigned in resolution
// order (longest directory first) and stay stable for the lifetime of
// the set.
type ID uint32

// Spec pairs a root directory with its filter configuration.
type Spec struct {
	Dir    string
	Config Config
}

// Set holds the registered roots in resolution order.
type Set struct {
	filters *arena.Arena[ID, Filter]
}

// New builds a set from the given specs. Directories must be absolute;
// they are ordered longest first so nested roots win resolution. A
// zero Config is replaced by DefaultConfig.
func New(specs []Spec) (*Set, error) {
	normalized := make([]Spec, len(specs))
	for i, spec := range specs {
		dir, err := fsutil.NormalizeRoot(spec.Dir)
		if err != nil {
			return nil, err
		}
		normalized[i] = Spec{Dir: dir, Config: spec.Config}
	}
	sort.SliceStable(normalized, func(i, j int) bool {
		return len(normalized[i].Dir) > len(normalized[j].Dir)
	})

	filters := arena.New[ID, Filter]()
	for i, spec := range normalized {
		var excluded []string
		for _, earlier := range normalized[:i] {
			if rel, ok := fsutil.RelativeTo(spec.Dir, earlier.Dir); ok {
				excluded = append(excluded, rel)
			}
		}
		config := spec.Config
		if config.isZero() {
			config = DefaultConfig()
		}
		filters.Alloc(Filter{
			dir:      spec.Dir,
			include:  config.predicate(),
			excluded: excluded,
		})
	}
	return &Set{filters: filters}, nil
}

// Resolve returns the root owning path together with the root-relative
// slash path. Paths outside every root, or filtered out, resolve to
// nothing.
func (s *Set) Resolve(path string) (ID, string, bool) {
	cleaned := filepath.Clean(path)
	if !filepath.IsAbs(cleaned) {
		return 0, "", false
	}
	for i := 0; i < s.filters.Len(); i++ {
		id := ID(i)
		if rel, ok := s.filters.Get(id).CanContain(cleaned); ok {
			return id, rel, true
		}
	}
	return 0, "", false
}

// Dir returns the absolute directory of the given root.
func (s *Set) Dir(id ID) string {
	return s.filters.Get(id).dir
}

// Filter returns the membership filter of the given root.
func (s *Set) Filter(id ID) *Filter {
	return s.filters.Get(id)
}

// Len returns the number of registered roots.
func (s *Set) Len() int {
	return s.filters.Len()
}

// IDs returns every root identifier in resolution order.
func (s *Set) IDs() []ID {
	ids := make([]ID, s.filters.Len())
	for i := range ids {
		ids[i] = ID(i)
	}
	return ids
}
