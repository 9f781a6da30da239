// Package version reports the build the service was compiled from.
//
// The variables are stamped by the linker:
//
//	go build -ldflags "-X github.com/rickgao/union-data/internal/version.Version=0.4.0 \
//	                   -X github.com/rickgao/union-data/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/union-data/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import "runtime"

// Linker-stamped build variables.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the build description served on /version.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
}

// Get returns the current build description.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// String returns a one-line build description for startup logs.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
