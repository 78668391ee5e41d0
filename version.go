package claun

// VERSION is the release tag reported by the CLI.
const VERSION = "v0.1.0"
