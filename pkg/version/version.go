package version

// Version is the current version of shelfmark. It's set at build time via
// ldflags for release builds.
var Version = "dev"
