// Package version provides the application version.
package version

// Version is set at build time via ldflags:
//
//	go build -ldflags "-X github.com/sergeknystautas/hgrun/internal/version.Version=0.2.0" ./cmd/hgrun
//
// Defaults to "dev" for local development builds.
var Version = "dev"
