package fsutil

import (
	"fmt"
	"path/filepath"
	"strings"
)

// NormalizeRoot validates and canonicalizes a root directory path.
// Roots must be absolute so that membership checks never depend on the
// process working directory.
func NormalizeRoot(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", fmt.Errorf("root directory is empty")
	}
	cleaned := filepath.Clean(dir)
	if !filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("root directory must be absolute: %q", dir)
	}
	return cleaned, nil
}

// IsDescendant reports whether path lies strictly inside dir. Both
// arguments must already be cleaned absolute paths.
func IsDescendant(dir, path string) bool {
	if dir == path {
		return false
	}
	return strings.HasPrefix(path, withTrailingSeparator(dir))
}

// RelativeTo projects path into dir, returning the slash-separated
// relative path. The boolean is false when path is not strictly inside
// dir.
func RelativeTo(dir, path string) (string, bool) {
	prefix := withTrailingSeparator(dir)
	if dir == path || !strings.HasPrefix(path, prefix) {
		return "", false
	}
	return filepath.ToSlash(path[len(prefix):]), true
}

// Components splits a slash-separated relative path into its segments.
func Components(rel string) []string {
	if rel == "" {
		return nil
	}
	return strings.Split(rel, "/")
}

func withTrailingSeparator(dir string) string {
	if strings.HasSuffix(dir, string(filepath.Separator)) {
		return dir
	}
	return dir + string(filepath.Separator)
}
