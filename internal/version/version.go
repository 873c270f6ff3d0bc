// Package version holds the build-time version string shared by all three
// tsdfx binaries.
package version

// Version is overridden at build time via -ldflags.
var Version = "0.0.0~dev"
