package flowstate

// Version is the library release, reported by `flowstate version`.
var Version = "0.1.0"
