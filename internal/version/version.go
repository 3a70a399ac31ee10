// Package version exposes the agentrun release version and build details.
package version

import (
	_ "embed"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

//go:embed VERSION
var release string

// Get returns the release version from the embedded VERSION file.
func Get() string {
	return strings.TrimSpace(release)
}

// Build describes the binary that is running.
type Build struct {
	Version   string
	Revision  string
	Modified  bool
	GoVersion string
	Platform  string
}

// Info collects build details. VCS fields are empty when the binary was
// built outside a repository.
func Info() Build {
	b := Build{
		Version:   Get(),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				b.Revision = s.Value
			case "vcs.modified":
				b.Modified = s.Value == "true"
			}
		}
	}
	return b
}

// String renders b on one line, e.g. "0.3.0 (a1b2c3d4e5f6, go1.24.11 linux/amd64)".
func (b Build) String() string {
	details := []string{}
	if b.Revision != "" {
		rev := b.Revision
		if len(rev) > 12 {
			rev = rev[:12]
		}
		if b.Modified {
			rev += "-dirty"
		}
		details = append(details, rev)
	}
	details = append(details, fmt.Sprintf("%s %s", b.GoVersion, b.Platform))
	return fmt.Sprintf("%s (%s)", b.Version, strings.Join(details, ", "))
}
