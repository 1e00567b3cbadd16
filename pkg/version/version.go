// Package version holds build metadata injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// GetVersionInfo returns a one-line description of the running binary.
func GetVersionInfo() string {
	return fmt.Sprintf("va-go version %s (commit: %s, built: %s, go: %s)",
		Version, GitCommit, BuildTime, runtime.Version())
}

// UserAgent identifies outbound HTTP requests made by engine plugins.
func UserAgent() string {
	return fmt.Sprintf("va-go/%s", Version)
}
