// Package buildinfo holds the version stamped into dbtlineage builds.
//
// The variables are overridden via ldflags:
//
//	go build -ldflags "-X github.com/matzehuels/dbtlineage/pkg/buildinfo.Version=v0.3.0 \
//	    -X github.com/matzehuels/dbtlineage/pkg/buildinfo.Commit=$(git rev-parse --short HEAD)" \
//	    ./cmd/dbtlineage
package buildinfo

import "fmt"

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"

	// Commit is the git commit the binary was built from.
	Commit = "none"

	// Date is the UTC build timestamp.
	Date = "unknown"
)

// Template returns the cobra version template.
func Template() string {
	return fmt.Sprintf("{{.Name}} %s (commit %s, built %s)\n", Version, Commit, Date)
}
