package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "tracking params stripped",
			in:   "https://boards.greenhouse.io/acme/jobs/123?utm_source=x&gclid=y",
			want: "https://boards.greenhouse.io/acme/jobs/123",
		},
		{
			name: "scheme and host lowercased",
			in:   "HTTPS://Boards.Greenhouse.IO/acme/jobs/123",
			want: "https://boards.greenhouse.io/acme/jobs/123",
		},
		{
			name: "trailing slash stripped",
			in:   "https://jobs.lever.co/acme/abc-def/",
			want: "https://jobs.lever.co/acme/abc-def",
		},
		{
			name: "fragment dropped",
			in:   "https://jobs.lever.co/acme/abc#apply",
			want: "https://jobs.lever.co/acme/abc",
		},
		{
			name: "functional params survive",
			in:   "https://careers.example.com/job?id=42&utm_campaign=spring",
			want: "https://careers.example.com/job?id=42",
		},
		{
			name: "ats source tags stripped",
			in:   "https://boards.greenhouse.io/acme/jobs/123?gh_src=abc123",
			want: "https://boards.greenhouse.io/acme/jobs/123",
		},
		{
			name: "linkedin keeps only the job id",
			in:   "https://www.linkedin.com/jobs/search/?currentJobId=99&trk=feed&refId=zz",
			want: "https://www.linkedin.com/jobs/search?currentJobId=99",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalizeURL(tt.in))
		})
	}
}

func TestDedupKey(t *testing.T) {
	a := CanonicalizeURL("https://boards.greenhouse.io/acme/jobs/123?utm_source=x")
	b := CanonicalizeURL("http://boards.greenhouse.io/acme/jobs/123")
	assert.Equal(t, DedupKey(a), DedupKey(b))
	assert.Equal(t, "boards.greenhouse.io/acme/jobs/123", DedupKey(a))
}

func TestJobIDStableAcrossTrackingNoise(t *testing.T) {
	u1 := CanonicalizeURL("https://boards.greenhouse.io/acme/jobs/123?utm_source=x&gclid=y")
	u2 := CanonicalizeURL("https://boards.greenhouse.io/acme/jobs/123")
	assert.Equal(t,
		JobID("Staff Engineer", "Acme", u1),
		JobID("Staff Engineer", "Acme", u2),
	)
}

func TestJobIDNormalizesCase(t *testing.T) {
	u := "https://boards.greenhouse.io/acme/jobs/123"
	assert.Equal(t,
		JobID("staff engineer", "ACME", u),
		JobID("Staff  Engineer", "acme", u),
	)
}

func TestProvisionalIDDeterministic(t *testing.T) {
	a := ProvisionalID("https://boards.greenhouse.io/acme/jobs/123?utm_source=x")
	b := ProvisionalID("https://boards.greenhouse.io/acme/jobs/123")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, ProvisionalID("https://boards.greenhouse.io/acme/jobs/124"))
}
