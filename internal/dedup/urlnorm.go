// Package dedup implements the three-tier duplicate detection pipeline
// from spec.md §4.1(b): URL normalization, content hashing, and an
// embedding-similarity fallback for near-duplicates that escape the
// first two checks (e.g. syndicated copy with a different URL and
// trivial rewording).
package dedup

import (
	"net/url"
	"sort"
	"strings"
)

// defaultTrackingParams are stripped during normalization regardless of
// configuration, since they never affect the underlying resource.
var defaultTrackingParams = map[string]bool{
	"utm_source": true, "utm_medium": true, "utm_campaign": true,
	"utm_term": true, "utm_content": true, "fbclid": true, "gclid": true,
	"ref": true, "ref_src": true,
}

// URLNormalizer canonicalizes article URLs so syndicated copies of the
// same link resolve to the same normalized form. Configured tracking
// params are stripped in addition to the built-in list. With
// StrictQueryPreservation the remaining query parameters are kept,
// sorted by key; without it the whole query string is dropped.
type URLNormalizer struct {
	trackingParams          map[string]bool
	strictQueryPreservation bool
}

func NewURLNormalizer(extraTrackingParams []string, strictQueryPreservation bool) *URLNormalizer {
	params := make(map[string]bool, len(defaultTrackingParams)+len(extraTrackingParams))
	for k := range defaultTrackingParams {
		params[k] = true
	}
	for _, p := range extraTrackingParams {
		params[strings.ToLower(p)] = true
	}
	return &URLNormalizer{trackingParams: params, strictQueryPreservation: strictQueryPreservation}
}

// Normalize lowercases scheme and host, drops a leading "www." from the
// host, drops the fragment, strips tracking parameters, then either
// keeps the remaining query parameters sorted by key (strict query
// preservation) or drops the query entirely, and removes a trailing
// slash from the path. A URL that
// fails to parse is returned unchanged — normalization is a best
// effort match aid, not a correctness boundary (the content hash and
// embedding checks still catch it).
func (n *URLNormalizer) Normalize(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Fragment = ""

	path := u.Path
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}
	u.Path = path

	if u.RawQuery != "" {
		q := u.Query()
		for param := range n.trackingParams {
			q.Del(param)
		}
		if n.strictQueryPreservation {
			keys := make([]string, 0, len(q))
			for k := range q {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			var b strings.Builder
			for i, k := range keys {
				for j, v := range q[k] {
					if i > 0 || j > 0 {
						b.WriteByte('&')
					}
					b.WriteString(url.QueryEscape(k))
					b.WriteByte('=')
					b.WriteString(url.QueryEscape(v))
				}
			}
			u.RawQuery = b.String()
		} else {
			u.RawQuery = ""
		}
	}

	return u.String()
}
