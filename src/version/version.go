package version

// Version is overridden at build time with
// -ldflags "-X instance-provision/src/version.Version=<tag>".
var Version = "0.1.0-dev"
