package version

// Version is the current mindkeep release.
const Version = "0.3.0"
