// Package version reports the build identity of the codestorm binaries.
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	// Version is the semantic version of the binary. Overridden via -ldflags "-X".
	Version = "0.1.0"
	// Commit is the git commit hash injected at build time.
	Commit = "dev"
	// BuildDate is the build timestamp injected at build time.
	BuildDate = "unknown"
)

// Info is the version triple, with vcs stamps from the Go toolchain filling
// values that were not injected.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// Get returns the build identity.
func Get() Info {
	info := Info{Version: Version, Commit: Commit, BuildDate: BuildDate}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && info.Commit == "dev":
			info.Commit = shortRevision(s.Value)
		case s.Key == "vcs.time" && info.BuildDate == "unknown":
			info.BuildDate = s.Value
		}
	}
	return info
}

// Full returns a human-friendly version string.
func Full() string {
	info := Get()
	return fmt.Sprintf("%s (commit:%s, built:%s)", info.Version, info.Commit, info.BuildDate)
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
