// Package version reports build metadata for gcpmark.
package version

import "runtime/debug"

// Set with -ldflags "-X github.com/MeKo-Tech/gcpmark/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns version, commit and build date. Values not set at link time
// fall back to the VCS stamp the Go toolchain embeds in the binary.
func Info() (string, string, string) {
	commit, date := GitCommit, BuildDate
	if bi, ok := debug.ReadBuildInfo(); ok {
		commit, date = fromBuildSettings(bi.Settings, commit, date)
	}
	return Version, commit, date
}

func fromBuildSettings(settings []debug.BuildSetting, commit, date string) (string, string) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if commit == "unknown" && s.Value != "" {
				commit = s.Value
				if len(commit) > 12 {
					commit = commit[:12]
				}
			}
		case "vcs.time":
			if date == "unknown" && s.Value != "" {
				date = s.Value
			}
		}
	}
	return commit, date
}
