package macusers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hnrobert/macusers/internal/syscmd"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrGroupNotFound = errors.New("group not found")
)

// DefaultMinUserID is the UID threshold below which accounts are treated
// as system accounts. Local accounts created through System Settings get
// UIDs starting at 501.
const DefaultMinUserID = 500

// Directory answers account-metadata queries against the local Open
// Directory node and the disk/FileVault utilities. It holds no state
// beyond its runner; every query goes back to the OS.
type Directory struct {
	run syscmd.Runner

	// MinUserID overrides DefaultMinUserID when > 0.
	MinUserID int
}

func New(r syscmd.Runner) *Directory {
	return &Directory{run: r}
}

func (d *Directory) minUserID() int {
	if d.MinUserID > 0 {
		return d.MinUserID
	}
	return DefaultMinUserID
}

// Console returns the current console user, or the last logged-in user
// when the login window is up (stat reports root while nobody owns the
// console).
func (d *Directory) Console(ctx context.Context) (string, error) {
	out, _, err := d.run.Run(ctx, statPath, "-f", "%Su", consoleDevice)
	if err != nil {
		return "", fmt.Errorf("query console user: %w", err)
	}
	user := parseConsoleUser(out)
	if user == "" {
		return "", fmt.Errorf("query console user: empty stat output")
	}
	if user == "root" {
		out, _, err = d.run.Run(ctx, defaultsPath, "read", loginwindowPlist, "lastUserName")
		if err == nil {
			if last := strings.TrimSpace(out); last != "" {
				return last, nil
			}
		}
	}
	return user, nil
}

// Users lists non-system local account names. Accounts below the UID
// threshold, service accounts (leading underscore) and accounts with a
// /usr/bin/false shell are excluded; root is included only on request.
func (d *Directory) Users(ctx context.Context, opts ListOptions) ([]string, error) {
	uids, err := d.listAttr(ctx, "UniqueID")
	if err != nil {
		return nil, err
	}
	shells, err := d.listAttr(ctx, "UserShell")
	if err != nil {
		return nil, err
	}

	var group *Group
	var primaryGIDs map[string]string
	if opts.Group != "" {
		group, err = d.LookupGroup(ctx, opts.Group)
		if err != nil {
			return nil, err
		}
		primaryGIDs, err = d.listAttr(ctx, "PrimaryGroupID")
		if err != nil {
			return nil, err
		}
	}

	var names []string
	for name, raw := range uids {
		uid, err := strconv.Atoi(raw)
		if err != nil {
			// Directory nodes can carry records without a numeric UID;
			// they are never login accounts.
			continue
		}
		if uid == 0 {
			if !opts.IncludeRoot {
				continue
			}
		} else if uid < d.minUserID() {
			continue
		}
		if strings.HasPrefix(name, "_") {
			continue
		}
		if shells[name] == "/usr/bin/false" {
			continue
		}
		if group != nil && !groupHas(group, name, primaryGIDs[name]) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Admins lists the members of the local admin group.
func (d *Directory) Admins(ctx context.Context) ([]string, error) {
	g, err := d.LookupGroup(ctx, AdminGroup)
	if err != nil {
		return nil, err
	}
	return g.Members, nil
}

// LookupGroup reads one local group record.
func (d *Directory) LookupGroup(ctx context.Context, name string) (*Group, error) {
	out, _, err := d.run.Run(ctx, dsclPath, ".", "-read", "/Groups/"+name, "PrimaryGroupID", "GroupMembership")
	if err != nil {
		if isRecordNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, name)
		}
		return nil, fmt.Errorf("read group %s: %w", name, err)
	}
	attrs := parseRecord(out)
	gid, err := atoi(attrFirst(attrs, "PrimaryGroupID"), "group PrimaryGroupID")
	if err != nil {
		return nil, err
	}
	return &Group{
		Name:    name,
		GID:     gid,
		Members: attrFields(attrs, "GroupMembership"),
	}, nil
}

// IsMember reports whether user belongs to group, including nested and
// primary-group membership (dsmemberutil resolves both).
func (d *Directory) IsMember(ctx context.Context, user, group string) (bool, error) {
	out, _, err := d.run.Run(ctx, dsmemberutilPath, "checkmembership", "-U", user, "-G", group)
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "not be found") {
			if strings.Contains(msg, "group") {
				return false, fmt.Errorf("%w: %s", ErrGroupNotFound, group)
			}
			return false, fmt.Errorf("%w: %s", ErrUserNotFound, user)
		}
		return false, fmt.Errorf("check membership %s in %s: %w", user, group, err)
	}
	return parseMembershipCheck(out)
}

// FileVaultList returns the usernames with FileVault unlock access. When
// FileVault is off nobody has access and the list is empty.
func (d *Directory) FileVaultList(ctx context.Context) ([]string, error) {
	out, stderr, err := d.run.Run(ctx, fdesetupPath, "list")
	if err != nil {
		if strings.Contains(err.Error(), "FileVault is Off") || strings.Contains(stderr, "FileVault is Off") {
			return nil, nil
		}
		return nil, fmt.Errorf("fdesetup list: %w", err)
	}
	return parseFdesetupList(out), nil
}

// FileVaultAccess reports whether user can unlock the FileVault volume.
func (d *Directory) FileVaultAccess(ctx context.Context, user string) (bool, error) {
	users, err := d.FileVaultList(ctx)
	if err != nil {
		return false, err
	}
	for _, u := range users {
		if u == user {
			return true, nil
		}
	}
	return false, nil
}

// IsVolumeOwner reports whether user is a cryptographic owner of the boot
// APFS volume.
func (d *Directory) IsVolumeOwner(ctx context.Context, user string) (bool, error) {
	guid, err := d.generatedUID(ctx, user)
	if err != nil {
		return false, err
	}
	return d.volumeOwnerByGUID(ctx, guid)
}

func (d *Directory) volumeOwnerByGUID(ctx context.Context, guid string) (bool, error) {
	if guid == "" {
		return false, nil
	}
	out, _, err := d.run.Run(ctx, diskutilPath, "apfs", "listUsers", "/")
	if err != nil {
		return false, fmt.Errorf("diskutil apfs listUsers: %w", err)
	}
	guid = strings.ToUpper(guid)
	for _, g := range parseCryptoUserGUIDs(out) {
		if g == guid {
			return true, nil
		}
	}
	return false, nil
}

// HasSecureToken reports whether user holds a secure token.
func (d *Directory) HasSecureToken(ctx context.Context, user string) (bool, error) {
	stdout, stderr, err := d.run.Run(ctx, sysadminctlPath, "-secureTokenStatus", user)
	if err != nil {
		return false, fmt.Errorf("secure token status for %s: %w", user, err)
	}
	return parseSecureToken(stdout, stderr)
}

// Lookup builds the full account record for one user, flags included.
func (d *Directory) Lookup(ctx context.Context, username string) (*User, error) {
	out, _, err := d.run.Run(ctx, dsclPath, ".", "-read", "/Users/"+username,
		"RealName", "UniqueID", "PrimaryGroupID", "NFSHomeDirectory", "UserShell", "GeneratedUID")
	if err != nil {
		if isRecordNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
		}
		return nil, fmt.Errorf("read user %s: %w", username, err)
	}
	attrs := parseRecord(out)

	u := &User{
		Username:     username,
		RealName:     strings.Join(attrs["RealName"], " "),
		GeneratedUID: strings.ToUpper(attrFirst(attrs, "GeneratedUID")),
		Home:         attrFirst(attrs, "NFSHomeDirectory"),
		Shell:        attrFirst(attrs, "UserShell"),
	}
	if u.UID, err = atoi(attrFirst(attrs, "UniqueID"), "user UniqueID"); err != nil {
		return nil, err
	}
	if u.GID, err = atoi(attrFirst(attrs, "PrimaryGroupID"), "user PrimaryGroupID"); err != nil {
		return nil, err
	}

	// accountPolicyData is absent on accounts that never set a password
	// (and on some migrated ones); missing timestamps stay zero.
	if policy, _, err := d.run.Run(ctx, dsclPath, ".", "-read", "/Users/"+username, "accountPolicyData"); err == nil {
		u.CreatedAt = parsePolicyTime(policy, "creationTime")
		u.PasswordLastSet = parsePolicyTime(policy, "passwordLastSetTime")
	}

	if u.Admin, err = d.IsMember(ctx, username, AdminGroup); err != nil {
		return nil, err
	}
	// The SSH access group only exists once Remote Login has been scoped
	// to specific users; without it the flag stays false.
	u.SSHAccess, err = d.IsMember(ctx, username, SSHAccessGroup)
	if err != nil {
		if !errors.Is(err, ErrGroupNotFound) {
			return nil, err
		}
		u.SSHAccess = false
	}
	if u.VolumeOwner, err = d.volumeOwnerByGUID(ctx, u.GeneratedUID); err != nil {
		return nil, err
	}
	if u.SecureToken, err = d.HasSecureToken(ctx, username); err != nil {
		return nil, err
	}
	return u, nil
}

// Report builds full records for every listed user, with the FileVault
// grant resolved from a single fdesetup query.
func (d *Directory) Report(ctx context.Context, opts ListOptions) ([]Status, error) {
	names, err := d.Users(ctx, opts)
	if err != nil {
		return nil, err
	}
	fv := map[string]bool{}
	fvUsers, err := d.FileVaultList(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range fvUsers {
		fv[u] = true
	}

	out := make([]Status, 0, len(names))
	for _, name := range names {
		u, err := d.Lookup(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("report: %w", err)
		}
		out = append(out, Status{User: *u, FileVault: fv[name]})
	}
	return out, nil
}

// Authenticate checks a username/password pair against the local directory
// node. It returns false (with no error) on bad credentials and an error
// when directory services could not be asked at all.
func (d *Directory) Authenticate(ctx context.Context, username, password string) (bool, error) {
	_, stderr, err := d.run.Run(ctx, dsclPath, "/Local/Default", "-authonly", username, password)
	if err == nil {
		return true, nil
	}
	if strings.Contains(err.Error(), "eDSAuthFailed") || strings.Contains(stderr, "eDSAuthFailed") ||
		isRecordNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("dscl authonly: %w", err)
}

func (d *Directory) generatedUID(ctx context.Context, username string) (string, error) {
	out, _, err := d.run.Run(ctx, dsclPath, ".", "-read", "/Users/"+username, "GeneratedUID")
	if err != nil {
		if isRecordNotFound(err) {
			return "", fmt.Errorf("%w: %s", ErrUserNotFound, username)
		}
		return "", fmt.Errorf("read GeneratedUID for %s: %w", username, err)
	}
	return strings.ToUpper(attrFirst(parseRecord(out), "GeneratedUID")), nil
}

func (d *Directory) listAttr(ctx context.Context, attr string) (map[string]string, error) {
	out, _, err := d.run.Run(ctx, dsclPath, ".", "-list", "/Users", attr)
	if err != nil {
		return nil, fmt.Errorf("list users by %s: %w", attr, err)
	}
	return parseListColumn(out), nil
}

func groupHas(g *Group, name, primaryGID string) bool {
	for _, m := range g.Members {
		if m == name {
			return true
		}
	}
	// dscl GroupMembership omits users whose only link is their primary
	// group id.
	return primaryGID != "" && primaryGID == strconv.Itoa(g.GID)
}

func isRecordNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "eDSRecordNotFound")
}
