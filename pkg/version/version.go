// Package version reports the kpibrief build version.
package version

import "runtime/debug"

// Name is the program name reported to MCP clients and in logs.
const Name = "kpibrief"

var version = "dev"

// Version returns the module version from build info, or the value set by
// Set / -ldflags "-X .../pkg/version.version=..." for local builds.
func Version() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Sum != "" {
		return info.Main.Version
	}
	return version
}

// Set overrides the version when build info carries none.
func Set(v string) {
	if v != "" {
		version = v
	}
}

// String returns "kpibrief <version>".
func String() string { return Name + " " + Version() }
