// Package version provides application version and build info.
//
//nolint:revive
package version

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// Name is the application name reported by health checks and the CLI.
const Name = "lark-enhance"

var (
	// Version is the current version of the application.
	// It can be overridden by ldflags at build time.
	Version = "dev"
	// CommitHash is the git commit hash at build time.
	// It can be overridden by ldflags at build time.
	CommitHash = ""
	// BuildTime is the time when the application was built.
	// It can be overridden by ldflags at build time.
	BuildTime = ""

	buildInfoOnce sync.Once
)

func loadBuildInfo() {
	buildInfoOnce.Do(func() {
		if CommitHash != "" {
			return
		}
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				CommitHash = setting.Value
			case "vcs.time":
				if BuildTime == "" {
					BuildTime = setting.Value
				}
			}
		}
	})
}

// GetInfo returns a formatted version string including the version and commit hash.
func GetInfo() string {
	loadBuildInfo()
	return format(Version, CommitHash)
}

func format(version, commit string) string {
	res := version
	if commit != "" {
		// Only use the first 7 characters of the commit hash if it's long
		if len(commit) > 7 {
			commit = commit[:7]
		}
		res += fmt.Sprintf(" (%s)", commit)
	}
	return res
}
