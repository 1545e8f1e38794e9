package syscmd

// Package syscmd runs the macOS directory-service and disk utilities the
// query layer depends on (dscl, dsmemberutil, stat, defaults, fdesetup,
// diskutil, sysadminctl).
//
// Utilities are always invoked by absolute path and under a timeout; there
// is no shell involved.
