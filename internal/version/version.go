// Package version carries the build metadata reported in protocol fields.
// Both values can be overridden at link time:
//
//	go build -ldflags "-X hermes-text/internal/version.Version=1.2.0"
package version

import "runtime/debug"

var (
	Name    = "hermes-text"
	Version = ""
)

// String returns Version, falling back to the main module version recorded
// by the go tool and finally to "dev".
func String() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
