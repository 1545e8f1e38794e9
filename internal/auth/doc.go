package auth

// Package auth verifies credentials against the local directory node.
//
// Login order:
// - The provisioned operator account, checked against its crypt(3) hash.
// - Open Directory via dscl -authonly.
// - su(1) behind a PTY as a last resort when dscl itself fails.
//
// Authorization binds to admin-group membership.
