// Package version carries build provenance stamped in with -ldflags.
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// Revision returns GitSHA, or the VCS revision recorded by the Go toolchain
// when no SHA was stamped in.
func Revision() string {
	if GitSHA != "unknown" && GitSHA != "" {
		return GitSHA
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return s.Value
			}
		}
	}
	return "unknown"
}

// String renders version, revision and build time on one line.
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, Revision(), BuildTime)
}
