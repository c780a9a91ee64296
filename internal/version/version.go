// Package version carries build metadata injected with -ldflags -X.
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// GoVersion returns the Go runtime version string.
func GoVersion() string { return runtime.Version() }

// String renders the one-line form printed by the version subcommands.
func String(service string) string {
	return fmt.Sprintf("%s %s (commit %s, built %s, %s)", service, Version, GitCommit, BuildTime, GoVersion())
}
