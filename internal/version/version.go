// Package version reports the fripack build identity.
package version

import (
	"runtime/debug"
)

var (
	// Version is the release version (set via -ldflags).
	Version = ""
	// Commit is the git commit hash (set via -ldflags).
	Commit = ""
	// BuildTime is the build timestamp (set via -ldflags).
	BuildTime = ""
)

type Info struct {
	Version   string
	Commit    string
	BuildTime string
}

// Resolve merges the ldflags values with the module build info recorded by
// the Go toolchain. Unreleased builds report "dev".
func Resolve() Info {
	return resolve(debug.ReadBuildInfo)
}

func resolve(read func() (*debug.BuildInfo, bool)) Info {
	resolved := Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
	}

	if bi, ok := read(); ok {
		if resolved.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			resolved.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if resolved.Commit == "" {
					resolved.Commit = s.Value
				}
			case "vcs.time":
				if resolved.BuildTime == "" {
					resolved.BuildTime = s.Value
				}
			}
		}
	}

	if resolved.Version == "" {
		resolved.Version = "dev"
	}
	return resolved
}

func (i Info) String() string {
	if i.Commit == "" {
		return i.Version
	}
	return i.Version + " (" + shortCommit(i.Commit) + ")"
}

func String() string {
	return Resolve().String()
}

// UserAgent is the User-Agent fripack sends to release hosts.
func UserAgent() string {
	return "fripack-downloader/" + Resolve().Version
}

func shortCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}
