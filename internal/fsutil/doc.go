package fsutil

// Package fsutil provides locked reads and atomic writes for the daemon's
// data files (config, service tokens, snapshot history).
//
// Every path gets its own mutex so concurrent handlers never interleave
// writes to the same store file.
