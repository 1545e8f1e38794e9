package macusers

import "time"

// User describes one local account at the time of the query. Records are
// built fresh on every lookup and never cached.
type User struct {
	Username        string    `json:"username" yaml:"username"`
	RealName        string    `json:"real_name" yaml:"real_name"`
	UID             int       `json:"uid" yaml:"uid"`
	GID             int       `json:"gid" yaml:"gid"`
	GeneratedUID    string    `json:"generated_uid" yaml:"generated_uid"`
	Home            string    `json:"home" yaml:"home"`
	Shell           string    `json:"shell" yaml:"shell"`
	Admin           bool      `json:"admin" yaml:"admin"`
	SSHAccess       bool      `json:"ssh_access" yaml:"ssh_access"`
	VolumeOwner     bool      `json:"volume_owner" yaml:"volume_owner"`
	SecureToken     bool      `json:"secure_token" yaml:"secure_token"`
	CreatedAt       time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	PasswordLastSet time.Time `json:"password_last_set,omitempty" yaml:"password_last_set,omitempty"`
}

// Group describes one local group record.
type Group struct {
	Name    string   `json:"name" yaml:"name"`
	GID     int      `json:"gid" yaml:"gid"`
	Members []string `json:"members" yaml:"members"`
}

// Status is a User plus the per-volume FileVault grant, which is not an
// account attribute and only shows up in full reports.
type Status struct {
	User      `yaml:",inline"`
	FileVault bool `json:"filevault" yaml:"filevault"`
}

// ListOptions filter Users and Report.
type ListOptions struct {
	// IncludeRoot admits the root account (UID 0) into listings.
	IncludeRoot bool
	// Group restricts the listing to members of the named group. A user
	// matches when listed in the group's membership or when the group is
	// the user's primary group.
	Group string
}
