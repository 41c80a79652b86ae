// Package version contains build version information, set at build time:
//
//	go build -ldflags "-X github.com/bissquit/inspection-sync/internal/version.Version=1.2.0 \
//	  -X github.com/bissquit/inspection-sync/internal/version.GitCommit=$(git rev-parse --short HEAD) \
//	  -X github.com/bissquit/inspection-sync/internal/version.BuildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import "fmt"

var (
	Version   = "0.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info is the build information served by /version.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// Get returns the current build information.
func Get() Info {
	return Info{Version: Version, Commit: GitCommit, BuildDate: BuildDate}
}

func (i Info) String() string {
	return fmt.Sprintf("inspection-sync %s (commit %s, built %s)", i.Version, i.Commit, i.BuildDate)
}
