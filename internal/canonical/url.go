package canonical

import (
	"net/url"
	"sort"
	"strings"
)

// Tracking and marketing params stripped during canonicalization. Params
// needed for routing (job ids and the like) are never in this set.
var trackingParams = map[string]struct{}{
	"gclid": {}, "fbclid": {}, "dclid": {}, "msclkid": {},
	"mc_cid": {}, "mc_eid": {}, "mkt_tok": {},
	"gh_src": {}, "lever-source": {}, "li_fat_id": {},
}

// CanonicalizeURL lower-cases scheme and host, drops the fragment and
// tracking params, sorts what query survives and strips the trailing
// slash. Unparseable input is returned trimmed but otherwise untouched.
func CanonicalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") {
			q.Del(k)
			continue
		}
		if _, drop := trackingParams[lk]; drop {
			q.Del(k)
		}
	}

	// linkedin hides the routing id in a query param; keep only that
	if strings.Contains(u.Host, "linkedin.com") {
		keep := url.Values{}
		if v := q.Get("currentJobId"); v != "" {
			keep.Set("currentJobId", v)
		}
		q = keep
	}

	// deterministic query
	for k := range q {
		vals := q[k]
		sort.Strings(vals)
		q[k] = vals
	}
	u.RawQuery = q.Encode()

	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String()
}

// DedupKey is the exact-match identity of a canonical URL: host + path,
// ignoring scheme and residual query.
func DedupKey(canonicalURL string) string {
	u, err := url.Parse(canonicalURL)
	if err != nil || u.Host == "" {
		return canonicalURL
	}
	return strings.ToLower(u.Host) + u.Path
}
