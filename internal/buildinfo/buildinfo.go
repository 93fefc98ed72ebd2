// Package buildinfo holds version metadata set at link time:
//
//	go build -ldflags "-X github.com/modoterra/logcatview/internal/buildinfo.Version=v0.3.0"
package buildinfo

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String formats the build metadata for `version` output.
func String(program string) string {
	return program + " " + Version + " (" + Commit + ") built " + Date
}
