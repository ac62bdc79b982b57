// Package version reports pipekit build information.
//
// Version, commit and build time are set at link time, falling back to the
// VCS settings Go embeds in the binary:
//
//	go build -ldflags "-X github.com/kbukum/pipekit/version.Version=1.0.0" ./cmd/pipekit
package version
