// SPDX-License-Identifier: MIT
//
// Package build carries the metadata injected at link time:
//
//	go build -ldflags "-X hapsync/pkg/build.buildName=hapsync \
//	  -X hapsync/pkg/build.buildVersion=0.3.0 ..."
//
// The values surface in `hapsync --version`, in the startup log line, and in
// the User-Agent sent when streaming remote media.
package build

import "fmt"

const description = "Streams a video's audio track and drives a haptic actuator in sync with playback"

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:        "hapsync",
		Description: description,
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
)

// Initialize copies the ldflags values into the build info. It returns an
// error naming the first missing flag; the development defaults stay in
// place in that case so callers may continue with a warning.
func Initialize() error {
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

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}

// UserAgent formats the build info as an HTTP User-Agent value.
func (f *ldFlags) UserAgent() string {
	return fmt.Sprintf("%s/%s (+%s)", f.Name, f.Version, f.Commit)
}
