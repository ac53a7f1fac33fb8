package content

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var longBody = strings.Repeat("We are hiring a staff engineer to build distributed systems. ", 20)

func TestParseGreenhouseContent(t *testing.T) {
	html := `<html><body>
		<nav>Careers Home</nav>
		<h1>Staff Engineer</h1>
		<div id="content">` + longBody + `</div>
		<footer>legal</footer>
	</body></html>`

	ex := Parse("https://boards.greenhouse.io/acme/jobs/123", html)
	assert.Equal(t, "Staff Engineer", ex.Title)
	assert.Contains(t, ex.Body, "distributed systems")
	assert.NotContains(t, ex.Body, "Careers Home")
}

func TestParseGenericStripsChrome(t *testing.T) {
	html := `<html><body>
		<script>var tracking = 1;</script>
		<header>MENU</header>
		<div class="job">` + longBody + `</div>
	</body></html>`

	ex := Parse("https://careers.example.com/jobs/1", html)
	assert.Contains(t, ex.Body, "staff engineer")
	assert.NotContains(t, ex.Body, "tracking")
	assert.NotContains(t, ex.Body, "MENU")
}

func TestParseAshbyNextDataBody(t *testing.T) {
	html := `<html><body>
		<script id="__NEXT_DATA__" type="application/json">
		{"props":{"pageProps":{"jobPosting":{"description":"` + strings.TrimSpace(longBody[:120]) + `"}}}}
		</script>
	</body></html>`

	ex := Parse("https://jobs.ashbyhq.com/acme/abc", html)
	assert.Contains(t, ex.Body, "staff engineer")
}

func TestParseJSONLDDatePosted(t *testing.T) {
	html := `<html><body>
		<script type="application/ld+json">
		{"@context":"https://schema.org","@graph":[{"@type":"Organization"},{"@type":"JobPosting","datePosted":"2026-08-20","title":"Staff Engineer"}]}
		</script>
		<div id="content">` + longBody + `</div>
	</body></html>`

	ex := Parse("https://boards.greenhouse.io/acme/jobs/1", html)
	require.False(t, ex.PostedAt.IsZero())
	assert.Equal(t, "2026-08-20", ex.PostedAt.Format("2006-01-02"))
}

func TestEvaluateInterstitial(t *testing.T) {
	f := NewFilter(7, 300)
	tests := []string{
		"Please enable JavaScript to view this page " + longBody,
		"Access Denied - you do not have permission " + longBody,
		"Checking your browser... Cloudflare Ray ID " + longBody,
	}
	for _, body := range tests {
		err := f.Evaluate(Extract{Body: body}, time.Now())
		var rej *RejectError
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, ReasonInterstitial, rej.Reason)
	}
}

func TestEvaluateInterstitialOnlyChecksHead(t *testing.T) {
	// "captcha" mentioned deep in a legitimate description is fine
	body := longBody + strings.Repeat("x", 200) + " our product solves captcha fatigue"
	f := NewFilter(7, 300)
	assert.NoError(t, f.Evaluate(Extract{Body: body}, time.Now()))
}

func TestEvaluateUnparseable(t *testing.T) {
	f := NewFilter(7, 300)
	err := f.Evaluate(Extract{Body: "short"}, time.Now())
	var rej *RejectError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonUnparseable, rej.Reason)
}

func TestEvaluateStale(t *testing.T) {
	f := NewFilter(7, 300)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	err := f.Evaluate(Extract{Body: longBody, PostedAt: now.AddDate(0, 0, -10)}, now)
	var rej *RejectError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonStale, rej.Reason)

	// inside the window is fine
	assert.NoError(t, f.Evaluate(Extract{Body: longBody, PostedAt: now.AddDate(0, 0, -3)}, now))

	// no structured date: freshness cannot be judged, accept
	assert.NoError(t, f.Evaluate(Extract{Body: longBody}, now))
}

func TestEvaluateAccepts(t *testing.T) {
	f := NewFilter(7, 300)
	assert.NoError(t, f.Evaluate(Extract{Body: longBody}, time.Now()))
	assert.False(t, errors.Is(f.Evaluate(Extract{Body: "x"}, time.Now()), nil))
}
