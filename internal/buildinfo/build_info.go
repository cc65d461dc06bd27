package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// BuildInfo holds all sorts of information about the build of an executable artifact.
type BuildInfo struct {
	Version    string
	CommitHash string
	BuildDate  string
}

// New returns the build info of the running binary. Values not stamped at link time are taken
// from the module build info where possible.
func New(version, commitHash, buildDate string) BuildInfo {
	i := BuildInfo{Version: version, CommitHash: commitHash, BuildDate: buildDate}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return i
	}
	if i.Version == "" || i.Version == "dev" {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			i.Version = v
		}
	}
	for _, s := range info.Settings {
		switch {
		case s.Key == "vcs.revision" && (i.CommitHash == "" || i.CommitHash == "n/a"):
			i.CommitHash = s.Value
		case s.Key == "vcs.time" && (i.BuildDate == "" || i.BuildDate == "<unknown>"):
			i.BuildDate = s.Value
		}
	}
	return i
}

// String returns the build into as a string.
func (i BuildInfo) String() string {
	return fmt.Sprintf("version %s (%s) built on %s for %s/%s", i.Version, i.CommitHash, i.BuildDate,
		runtime.GOOS, runtime.GOARCH)
}
