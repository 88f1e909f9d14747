// Package version exposes the build-time identity of the binary.
package version

import "strings"

// Values are stamped at build time with
// -ldflags "-X sourcefs/internal/version.Version=...".
var (
	Version   = "dev"
	Built     = ""
	GitCommit = ""
)

// String renders the version line printed by -version.
func String() string {
	parts := []string{"sourcefs"}
	if Version == "" || Version == "dev" {
		parts = append(parts, "dev")
	} else {
		parts = append(parts, "version "+Version)
	}
	if GitCommit != "" {
		parts = append(parts, "commit "+shortCommit(GitCommit))
	}
	if Built != "" {
		parts = append(parts, "built "+Built)
	}
	return strings.Join(parts, " ")
}

func shortCommit(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}
