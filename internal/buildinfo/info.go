// Package buildinfo describes the running binary.
package buildinfo

import (
	"runtime"
	"runtime/debug"
)

const Service = "interop-platform-state"

// Version and Commit are injected with -ldflags on release builds.
var (
	Version = "dev"
	Commit  = ""
)

type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
}

// Current returns the build information of this binary. Without an injected
// commit, the VCS stamp recorded by the Go toolchain is used.
func Current() Info {
	info := Info{
		Service:   Service,
		Version:   Version,
		Commit:    Commit,
		GoVersion: runtime.Version(),
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// Short is the version string shown by the CLI.
func (i Info) Short() string {
	if len(i.Commit) > 12 {
		return i.Version + "+" + i.Commit[:12]
	}
	if i.Commit != "" {
		return i.Version + "+" + i.Commit
	}
	return i.Version
}
