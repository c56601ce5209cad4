// Package buildinfo carries the version stamped into the binary at link time.
package buildinfo

import (
	"runtime"
)

// These vars are set at build time via ldflags:
// -X github.com/otherjamesbrown/emlsync/pkg/buildinfo.Version=v0.3.0
// -X github.com/otherjamesbrown/emlsync/pkg/buildinfo.Commit=4c1d9e2
// -X github.com/otherjamesbrown/emlsync/pkg/buildinfo.BuildTime=2026-10-19T08:00:00Z
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info holds build information for a binary.
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get returns build info for the named binary.
func Get(name string) Info {
	return Info{
		Name:      name,
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// String returns a human-readable one-liner like "v0.3.0 (4c1d9e2, 2026-10-19T08:00:00Z)"
func String() string {
	return Version + " (" + Commit + ", " + BuildTime + ")"
}

// UserAgent returns the product token sent with outbound HTTP requests.
func UserAgent(name string) string {
	return name + "/" + Version
}
