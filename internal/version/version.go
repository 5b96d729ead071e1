// Package version holds build metadata injected through ldflags.
package version

import "fmt"

// Version is the release version.
var Version = "0.0.0"

// GitCommit is the git commit hash.
var GitCommit = "unknown"

// BuildDate is the build date.
var BuildDate = "unknown"

// Info returns the build metadata as a map, as served on /version.
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"commit":     GitCommit,
		"build_date": BuildDate,
	}
}

// String formats the build metadata for the version command.
func String() string {
	return fmt.Sprintf("incident-mirror %s (commit %s, built %s)", Version, GitCommit, BuildDate)
}
