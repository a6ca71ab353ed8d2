// Package version holds build information injected with -ldflags -X.
package version

// Build information.
var (
	Version   = "0.0.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)
