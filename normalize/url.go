package normalize

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs.
var ErrInvalidURL = errors.New("url is not an absolute http(s) URL")

var trackingParam = regexp.MustCompile(`^(utm_.*|fbclid|gclid|mc_cid|mc_eid)$`)

// CanonicalURL normalizes raw for hashing: scheme and host are lowercased,
// the fragment and tracking parameters are removed, the remaining query
// parameters are re-encoded sorted by key, and one trailing slash is
// collapsed. Repeated values keep their order and escaped path segments stay
// escaped.
func CanonicalURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	query := u.Query()
	for key := range query {
		if trackingParam.MatchString(strings.ToLower(key)) {
			query.Del(key)
		}
	}
	u.RawQuery = query.Encode()
	u.ForceQuery = false

	if escaped := u.EscapedPath(); strings.HasSuffix(escaped, "/") {
		escaped = strings.TrimSuffix(escaped, "/")
		path, err := url.PathUnescape(escaped)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
		}
		u.Path = path
		u.RawPath = escaped
	}

	return u.String(), nil
}
