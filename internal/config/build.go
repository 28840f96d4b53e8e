package config

import "runtime/debug"

// Set with -ldflags "-X weatheringest/internal/config.version=1.2.3 ...".
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// NewBuildInfo reports the linker-injected metadata. When the binary was
// built without ldflags, commit and build time fall back to the VCS stamp
// the Go toolchain embeds.
func NewBuildInfo() BuildInfo {
	info := BuildInfo{Version: version, Commit: commit, BuildTime: buildTime}

	bi, ok := readBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "none" && s.Value != "" {
				info.Commit = s.Value
				if len(info.Commit) > 12 {
					info.Commit = info.Commit[:12]
				}
			}
		case "vcs.time":
			if info.BuildTime == "unknown" && s.Value != "" {
				info.BuildTime = s.Value
			}
		}
	}
	return info
}
