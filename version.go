package serializers

import (
	"fmt"
	"runtime/debug"
)

// Version of the serializers library
const Version = "1.0.0"

// Build information, set with -ldflags. When empty, the VCS stamp the Go
// toolchain embeds in the binary is used instead.
var (
	GitCommit string
	BuildDate string
)

// VersionInfo returns the library version and, when known, the commit and
// build time of the running binary.
func VersionInfo() string {
	commit, date := buildStamp()
	if commit == "" {
		return fmt.Sprintf("serializers v%s", Version)
	}
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if date == "" {
		return fmt.Sprintf("serializers v%s (commit: %s)", Version, commit)
	}
	return fmt.Sprintf("serializers v%s (commit: %s, built: %s)", Version, commit, date)
}

func buildStamp() (commit, date string) {
	commit, date = GitCommit, BuildDate
	if commit != "" {
		return commit, date
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			commit = s.Value
		case "vcs.time":
			date = s.Value
		}
	}
	return commit, date
}
