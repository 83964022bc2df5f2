// Package version reports what build of rlsguard is running.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
)

// Release builds overwrite these through -ldflags; from-source builds
// leave them empty and Info falls back to the metadata the Go toolchain
// stamps into the binary.
var (
	Version string
	Commit  string
	Date    string
)

var resolveOnce sync.Once

// resolve fills any field ldflags left empty from debug.ReadBuildInfo,
// marking a locally-modified checkout with a "-dirty" commit suffix.
func resolve() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	if Version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	settings := map[string]string{}
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}
	if Commit == "" {
		if rev := settings["vcs.revision"]; rev != "" {
			if len(rev) > 12 {
				rev = rev[:12]
			}
			if settings["vcs.modified"] == "true" {
				rev += "-dirty"
			}
			Commit = rev
		}
	}
	if Date == "" {
		Date = settings["vcs.time"]
	}
}

// Info returns a multi-line version report.
func Info() string {
	resolveOnce.Do(resolve)

	v := Version
	if v == "" {
		v = "dev"
	}
	lines := []string{"rlsguard " + v}
	if Commit != "" {
		lines = append(lines, fmt.Sprintf("  commit: %s", Commit))
	}
	if Date != "" {
		lines = append(lines, fmt.Sprintf("  built:  %s", Date))
	}
	lines = append(lines, fmt.Sprintf("  go:     %s", runtime.Version()))
	return strings.Join(lines, "\n")
}
