package macusers

// Package macusers answers metadata queries about local macOS accounts by
// shelling out to the system directory-service utilities and parsing their
// text output.
//
// Queried tools:
//   dscl          account/group records, listings, authonly
//   dsmemberutil  group membership checks
//   stat          console ownership (/dev/console)
//   defaults      loginwindow lastUserName fallback
//   fdesetup      FileVault unlock access
//   diskutil      APFS cryptographic volume owners
//   sysadminctl   secure-token status
//
// Every query is stateless and synchronous; records are built fresh each
// call and never cached.
