package types

// Version is the canonical project version.
// The CLI, both archive formats and the progress journal share it.
const Version = "0.3.0"
