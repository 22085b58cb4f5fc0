// Package version carries build identification, stamped via -ldflags at
// release time.
package version

import "fmt"

var (
	// Version is the semantic version of the build.
	Version = "0.3.0"
	// GitSHA is the abbreviated commit hash of the build.
	GitSHA = "unknown"
	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// CreatorName identifies this tool in generated output headers.
const CreatorName = "dicomexport"

// String returns the full build identification line.
func String() string {
	return fmt.Sprintf("%s %s (%s, built %s)", CreatorName, Version, GitSHA, BuildTime)
}
