package util

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultAPIPath is appended to server URLs given without a path.
const DefaultAPIPath = "/api/v1"

// NormalizeServerURL turns user input such as "localhost:8000" or
// "https://books.example.com/" into a backend base URL. A missing scheme
// defaults to http and a bare host gets DefaultAPIPath.
func NormalizeServerURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty server URL")
	}
	u, err := url.Parse(raw)
	if !strings.Contains(raw, "://") {
		if u2, e2 := url.Parse("http://" + raw); e2 == nil && u2.Host != "" {
			u, err = u2, nil
		}
	}
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid server URL %q", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	switch u.Scheme {
	case "http", "https":
	default:
		return "", fmt.Errorf("invalid server URL %q: scheme must be http or https", raw)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	if u.Path == "" {
		u.Path = DefaultAPIPath
	}
	u.RawQuery, u.Fragment = "", ""
	return u.String(), nil
}
