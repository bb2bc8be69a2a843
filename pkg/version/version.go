// Package version reports the build version injected with -ldflags.
package version

import "strings"

// version is overridden at build time:
//
//	go build -ldflags "-X cafe/pkg/version.version=1.2.0" ./cmd/cafe
var version = "dev"

// Version returns the build version, "dev" for local builds.
func Version() string {
	if v := strings.TrimSpace(version); v != "" {
		return v
	}
	return "dev"
}
