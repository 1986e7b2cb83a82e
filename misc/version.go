// Package misc keeps small helpers needed across the program.
package misc

import (
	"runtime/debug"
)

// set by the linker during release builds
var (
	appVersion = "development"
	appGitHash = ""
)

func GetAppName() string {
	return "cmod"
}

func GetVersion() string {
	return appVersion
}

// GetGitHash returns revision recorded by the build, preferring the value set
// by the linker over whatever VCS stamping the toolchain did.
func GetGitHash() string {
	if len(appGitHash) > 0 {
		return appGitHash
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return "unknown"
}
