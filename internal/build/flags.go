// SPDX-License-Identifier: MIT
//
// Package build holds the metadata embedded at link time: application name,
// build timestamp, Git commit and semantic version.
//
//	go build -ldflags "-X spectrum/internal/build.buildName=spectrum \
//	    -X spectrum/internal/build.buildVersion=0.1.0 ..."
//
// Development builds carry no flags and fall back to the module's VCS
// stamp, if any.
package build

import (
	"fmt"
	"runtime/debug"
)

// DefaultName is used when the binary was built without ldflags.
const DefaultName = "spectrum"

// Info is the build metadata.
type Info struct {
	Name    string // Application name
	Time    string // Build timestamp
	Commit  string // Git commit hash
	Version string // Semantic version
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

// Package-level variables populated by -ldflags during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &Info{
		Name:    DefaultName,
		Time:    "unknown",
		Commit:  "unknown",
		Version: "dev",
	}

	readBuildInfo = debug.ReadBuildInfo
)

// Initialize copies the ldflags variables into the build info. A build with
// no flags at all is a development build and keeps the defaults; a build with
// only some of them set is an error.
func Initialize() error {
	if buildName == "" && buildTime == "" && buildCommit == "" && buildVersion == "" {
		fromVCS(buildFlags)
		return nil
	}

	if buildName == "" {
		return fmt.Errorf("BuildName is required")
	}
	if buildTime == "" {
		return fmt.Errorf("BuildTime is required")
	}
	if buildCommit == "" {
		return fmt.Errorf("BuildCommit is required")
	}
	if buildVersion == "" {
		return fmt.Errorf("BuildVersion is required")
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

// fromVCS fills commit and time from the Go toolchain's VCS stamp.
func fromVCS(info *Info) {
	bi, ok := readBuildInfo()
	if !ok {
		return
	}
	if v := bi.Main.Version; v != "" && v != "(devel)" {
		info.Version = v
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Commit = s.Value
		case "vcs.time":
			info.Time = s.Value
		}
	}
}

// GetBuildFlags returns the current build information. Initialize must be
// called first.
func GetBuildFlags() *Info {
	return buildFlags
}
