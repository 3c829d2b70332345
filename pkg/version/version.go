// Package version holds build metadata injected at link time.
package version

import (
	"fmt"
	"runtime"
)

// Set via -ldflags at build time.
var (
	// Version is the semantic version of the build.
	Version = "dev"
	// Commit is the git commit hash the build was made from.
	Commit = "none"
	// Date is the build timestamp.
	Date = "unknown"
)

// Info is the full build metadata.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetInfo returns the build metadata of the running binary.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// Short returns just the version number.
func Short() string {
	return Version
}

// String returns the full version string.
func String() string {
	return fmt.Sprintf("lodestar %s (commit %s, built %s, %s)", Version, Commit, Date, runtime.Version())
}
