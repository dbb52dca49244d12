// Package version carries the release identity stamped in at build time
// via -ldflags.
package version

import "fmt"

var (
	// Version is the release tag of the build.
	Version = "v0.0.0"

	// GitCommit is the commit hash the build was produced from.
	GitCommit = "dev"
)

// GetHumanVersion returns human readable version information.
func GetHumanVersion() string {
	version := Version
	if version == "" || version[0] != 'v' {
		version = "v" + version
	}

	return fmt.Sprintf("%s-%s", version, GitCommit)
}
