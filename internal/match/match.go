// Package match decides whether a sender identity matches an allow-list or
// deny-list pattern.
package match

import "strings"

// Domain returns the part of email after the last '@', or "" when there is none.
func Domain(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 {
		return ""
	}
	return email[i+1:]
}

// Matches reports whether pattern matches the sender. Comparison is case
// insensitive and tries, in order: exact address or name, "@domain",
// bare "domain", "*@domain", then a plain substring of address or name.
// A domain form that does not match still falls through to the substring test.
func Matches(pattern, email, name string) bool {
	p := strings.ToLower(strings.TrimSpace(pattern))
	if p == "" {
		return false
	}
	e := strings.ToLower(email)
	n := strings.ToLower(name)

	if e == p || n == p {
		return true
	}

	domain := Domain(e)
	switch {
	case strings.HasPrefix(p, "@"):
		if domain == p[1:] {
			return true
		}
	case !strings.Contains(p, "@"):
		if domain == p {
			return true
		}
	case strings.Contains(p, "*@"):
		if domain == strings.Split(p, "@")[1] {
			return true
		}
	}

	return strings.Contains(e, p) || strings.Contains(n, p)
}

// Any reports whether any pattern in patterns matches the sender.
func Any(patterns []string, email, name string) bool {
	for _, p := range patterns {
		if Matches(p, email, name) {
			return true
		}
	}
	return false
}
