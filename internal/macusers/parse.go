package macusers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// parseListColumn parses `dscl . -list /Users <attr>` output: one record
// per line, record name first, then the attribute value.
func parseListColumn(out string) map[string]string {
	m := map[string]string{}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		m[fields[0]] = strings.Join(fields[1:], " ")
	}
	return m
}

// parseRecord parses `dscl . -read ...` output. Attributes print either as
// "Name: value" or, when the value contains characters dscl will not put on
// the same line, as "Name:" followed by indented continuation lines.
func parseRecord(out string) map[string][]string {
	attrs := map[string][]string{}
	var cur string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			if cur != "" {
				attrs[cur] = append(attrs[cur], strings.TrimSpace(line))
			}
			continue
		}
		name, rest, ok := strings.Cut(line, ":")
		if !ok || name == "" {
			continue
		}
		cur = name
		if _, seen := attrs[cur]; !seen {
			attrs[cur] = nil
		}
		rest = strings.TrimSpace(rest)
		if rest != "" {
			attrs[cur] = append(attrs[cur], rest)
		}
	}
	return attrs
}

// attrFirst returns the first value of an attribute, or "".
func attrFirst(attrs map[string][]string, name string) string {
	vals := attrs[name]
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// attrFields splits an attribute into whitespace-separated members, the way
// dscl prints multi-valued attributes like GroupMembership.
func attrFields(attrs map[string][]string, name string) []string {
	var out []string
	for _, v := range attrs[name] {
		out = append(out, strings.Fields(v)...)
	}
	return out
}

// parsePolicyTime extracts an epoch timestamp from the accountPolicyData
// plist. Values are <real> (fractional seconds) or <integer> elements
// immediately following their <key>. Returns the zero time when absent.
func parsePolicyTime(out, key string) time.Time {
	idx := strings.Index(out, "<key>"+key+"</key>")
	if idx < 0 {
		return time.Time{}
	}
	rest := out[idx:]
	for _, tag := range []string{"real", "integer"} {
		openTag := "<" + tag + ">"
		closeTag := "</" + tag + ">"
		i := strings.Index(rest, openTag)
		if i < 0 {
			continue
		}
		j := strings.Index(rest[i:], closeTag)
		if j < 0 {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(rest[i+len(openTag):i+j]), 64)
		if err != nil || f <= 0 {
			return time.Time{}
		}
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC()
	}
	return time.Time{}
}

// parseFdesetupList parses `fdesetup list` output ("user,UUID" per line)
// into the list of usernames with FileVault unlock access.
func parseFdesetupList(out string) []string {
	var users []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, _, ok := strings.Cut(line, ",")
		if !ok || name == "" {
			continue
		}
		users = append(users, name)
	}
	return users
}

var uuidRe = regexp.MustCompile(`(?i)\b[0-9A-F]{8}(?:-[0-9A-F]{4}){3}-[0-9A-F]{12}\b`)

// parseCryptoUserGUIDs extracts the cryptographic user UUIDs from
// `diskutil apfs listUsers` output, uppercased for comparison against
// GeneratedUID values.
func parseCryptoUserGUIDs(out string) []string {
	var guids []string
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimLeft(line, " |\t")
		if !strings.HasPrefix(trimmed, "+--") {
			continue
		}
		if m := uuidRe.FindString(trimmed); m != "" {
			guids = append(guids, strings.ToUpper(m))
		}
	}
	return guids
}

// parseSecureToken maps sysadminctl -secureTokenStatus output to a bool.
// The status line is written to stderr, so both streams are scanned.
func parseSecureToken(stdout, stderr string) (bool, error) {
	combined := stdout + "\n" + stderr
	switch {
	case strings.Contains(combined, "ENABLED"):
		return true, nil
	case strings.Contains(combined, "DISABLED"):
		return false, nil
	}
	return false, fmt.Errorf("unexpected sysadminctl output: %q", strings.TrimSpace(combined))
}

// parseConsoleUser cleans up `stat -f %Su /dev/console` output.
func parseConsoleUser(out string) string {
	return strings.TrimSpace(strings.ReplaceAll(out, `"`, ""))
}

// parseMembershipCheck maps dsmemberutil checkmembership output to a bool.
func parseMembershipCheck(out string) (bool, error) {
	switch {
	case strings.Contains(out, "is a member"):
		return true, nil
	case strings.Contains(out, "is not a member"):
		return false, nil
	}
	return false, fmt.Errorf("unexpected dsmemberutil output: %q", strings.TrimSpace(out))
}

func atoi(field, ctx string) (int, error) {
	n, err := strconv.Atoi(field)
	if err != nil {
		return 0, fmt.Errorf("invalid int %q in %s: %w", field, ctx, err)
	}
	return n, nil
}
