package identity

import (
	"net/url"
	"strings"
)

const defaultBase = "https://www.bazaraki.com"

// CanonicalLink normalizes an ad URL into the form used as the dedup key.
// Relative hrefs from listing cards are resolved against the site base;
// query strings, fragments and tracking noise are dropped so the same ad
// always maps to one link.
func CanonicalLink(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if strings.HasPrefix(raw, "/") {
		raw = defaultBase + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	u.Scheme = "https"
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.Fragment = ""

	// Ad paths on the site end with a slash; keep a single canonical form.
	if u.Path != "/" && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	return u.String()
}
