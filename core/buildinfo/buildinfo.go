// Package buildinfo carries the version stamped in at link time:
//
//	-ldflags "-X github.com/m3rciful/formbot/core/buildinfo.Version=v1.2.3
//	          -X github.com/m3rciful/formbot/core/buildinfo.Commit=abcdef0
//	          -X github.com/m3rciful/formbot/core/buildinfo.Date=2025-08-30T12:00:00Z"
package buildinfo

import "fmt"

var (
	Version = "dev"
	Commit  = "local"
	// Date is the RFC3339 build time; empty for local builds.
	Date = ""
)

// String renders the build for the version command and startup log.
func String() string {
	date := Date
	if date == "" {
		date = "unknown"
	}
	return fmt.Sprintf("formbot %s (commit %s, built %s)", Version, Commit, date)
}
