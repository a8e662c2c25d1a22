package fetcher

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	pathIDPattern = regexp.MustCompile(`/d/([a-zA-Z0-9_-]+)`)
	bareIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{10,}$`)
)

// ExtractID returns the Drive file id from a share URL or a bare id, or ""
// when none can be found.
func ExtractID(val string) string {
	val = strings.TrimSpace(val)
	if val == "" {
		return ""
	}
	if m := pathIDPattern.FindStringSubmatch(val); m != nil {
		return m[1]
	}
	if u, err := url.Parse(val); err == nil {
		if id := u.Query().Get("id"); id != "" {
			return id
		}
	}
	if bareIDPattern.MatchString(val) {
		return val
	}
	return ""
}
