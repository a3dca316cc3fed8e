package decoupled

import "strings"

// Allowlist names the plugins known to propagate session state correctly
// across the origin boundary.
type Allowlist []string

// ParseAllowlist splits a comma separated list, dropping blanks
func ParseAllowlist(s string) Allowlist {
	var list Allowlist
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			list = append(list, p)
		}
	}
	return list
}

// Contains reports whether the plugin is listed
func (a Allowlist) Contains(plugin string) bool {
	for _, p := range a {
		if p == plugin {
			return true
		}
	}
	return false
}

// AllowlistPermits reports whether every active plugin is on the allowlist.
// An empty allowlist permits nothing, even with no active plugins.
func AllowlistPermits(active []string, allowlist Allowlist) bool {
	if len(allowlist) == 0 {
		return false
	}
	for _, plugin := range active {
		if !allowlist.Contains(plugin) {
			return false
		}
	}
	return true
}
