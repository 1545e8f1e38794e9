package macusers

// Fixed locations of the system utilities and preference files queried.
const (
	dsclPath         = "/usr/bin/dscl"
	dsmemberutilPath = "/usr/bin/dsmemberutil"
	statPath         = "/usr/bin/stat"
	defaultsPath     = "/usr/bin/defaults"
	fdesetupPath     = "/usr/bin/fdesetup"
	diskutilPath     = "/usr/sbin/diskutil"
	sysadminctlPath  = "/usr/sbin/sysadminctl"

	consoleDevice    = "/dev/console"
	loginwindowPlist = "/Library/Preferences/com.apple.loginwindow.plist"

	// AdminGroup grants administrator rights on macOS.
	AdminGroup = "admin"
	// SSHAccessGroup gates Remote Login when it exists.
	SSHAccessGroup = "com.apple.access_ssh"
)
