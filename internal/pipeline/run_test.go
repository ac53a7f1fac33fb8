package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobharvest-engine/internal/canonical"
	"jobharvest-engine/internal/content"
	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/fetch"
	"jobharvest-engine/internal/gate"
	"jobharvest-engine/internal/ledger"
	"jobharvest-engine/internal/notify"
	"jobharvest-engine/internal/source"
	"jobharvest-engine/internal/throttle"
)

type stubSource struct {
	name     string
	postings []domain.Posting
	err      error
}

func (s stubSource) Name() string { return s.name }

func (s stubSource) Discover(context.Context) ([]domain.Posting, error) {
	return s.postings, s.err
}

type stubScorer struct {
	score int
	err   error
	calls atomic.Int32
}

func (s *stubScorer) Mode() domain.ScoringMode { return domain.ModeLocal }

func (s *stubScorer) Score(context.Context, string, string) (int, string, error) {
	s.calls.Add(1)
	if s.err != nil {
		return 0, "", s.err
	}
	return s.score, "stub verdict", nil
}

type captureSink struct {
	jobs []domain.AdmittedJob
}

func (c *captureSink) Name() string { return "capture" }

func (c *captureSink) Deliver(_ context.Context, j domain.AdmittedJob) error {
	c.jobs = append(c.jobs, j)
	return nil
}

func jobPage(title string) string {
	return fmt.Sprintf(`<html><body><h1>%s</h1><div id="content">%s</div></body></html>`,
		title, strings.Repeat("We are hiring. You will build and operate distributed systems. ", 10))
}

func newPipeline(t *testing.T, led *ledger.Ledger, scorer *stubScorer, srcs ...source.Source) (*Pipeline, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	tg := throttle.NewGate(throttle.Config{Default: throttle.Rate{ReqPerSec: 1000, Burst: 100}})
	return &Pipeline{
		Sources: srcs,
		Fetcher: fetch.New(tg, 5*time.Second),
		Filter:  content.NewFilter(30, 100),
		Deduper: canonical.NewDeduper(0.80, 0.85),
		Gate:    &gate.Gate{Scorer: scorer, Cutoff: 65, FailScore: 40, Timeout: 5 * time.Second},
		Ledger:  led,
		Sinks:   []notify.Sink{sink},
		Workers: 2,
		Retry:   RetryPolicy{MaxAttempts: 1},
	}, sink
}

func openLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestRunAdmitsAndRecords(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, jobPage("Staff Engineer"))
	}))
	defer srv.Close()

	led := openLedger(t)
	scorer := &stubScorer{score: 90}
	posting := domain.Posting{
		URL: srv.URL + "/acme/jobs/1?utm_source=alert&gclid=x", Title: "Staff Engineer",
		Company: "Acme", SourceDomain: "boards.greenhouse.io",
	}

	p, sink := newPipeline(t, led, scorer, stubSource{name: "s", postings: []domain.Posting{posting}})
	sum, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Discovered)
	assert.Equal(t, 1, sum.Admitted)
	assert.Equal(t, int32(1), hits.Load())

	require.Len(t, sink.jobs, 1)
	assert.Equal(t, "Staff Engineer", sink.jobs[0].Title)
	assert.Equal(t, 90, sink.jobs[0].Score)
	// Tracking params never reach the ledger.
	assert.NotContains(t, sink.jobs[0].CanonicalURL, "utm_source")

	rec, err := led.Get(context.Background(), sink.jobs[0].JobID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.StatusAdmitted, rec.Status)

	// Second run: the terminal entry short-circuits before any fetch.
	p2, sink2 := newPipeline(t, led, scorer, stubSource{name: "s", postings: []domain.Posting{posting}})
	sum2, err := p2.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum2.SkippedKnown)
	assert.Zero(t, sum2.Admitted)
	assert.Empty(t, sink2.jobs)
	assert.Equal(t, int32(1), hits.Load())
}

func TestRunRejectsBelowCutoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, jobPage("Junior Analyst"))
	}))
	defer srv.Close()

	led := openLedger(t)
	scorer := &stubScorer{score: 64}
	p, sink := newPipeline(t, led, scorer, stubSource{name: "s", postings: []domain.Posting{
		{URL: srv.URL + "/x/jobs/2", Title: "Junior Analyst", Company: "Acme", SourceDomain: "boards.greenhouse.io"},
	}})

	sum, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Rejected)
	assert.Empty(t, sink.jobs, "rejected jobs never reach sinks")
}

func TestRunFiltersInterstitial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><h1>Checking</h1><div>Please enable JavaScript and cookies to continue. `+
			strings.Repeat("verifying your browser ", 20)+`</div></body></html>`)
	}))
	defer srv.Close()

	led := openLedger(t)
	scorer := &stubScorer{score: 90}
	p, _ := newPipeline(t, led, scorer, stubSource{name: "s", postings: []domain.Posting{
		{URL: srv.URL + "/x/jobs/3", Title: "SRE", Company: "Acme", SourceDomain: "boards.greenhouse.io"},
	}})

	sum, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.FilteredOut)
	assert.Zero(t, scorer.calls.Load(), "garbage never reaches the oracle")

	rec, err := led.Get(context.Background(), canonical.ProvisionalID(srv.URL+"/x/jobs/3"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.StatusFilteredOut, rec.Status)
	assert.Contains(t, rec.Detail, "interstitial_detected")
}

func TestRunClientErrorFiltersOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	led := openLedger(t)
	p, _ := newPipeline(t, led, &stubScorer{score: 90}, stubSource{name: "s", postings: []domain.Posting{
		{URL: srv.URL + "/gone", Title: "SRE", Company: "Acme"},
	}})

	sum, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.FilteredOut)

	rec, err := led.Get(context.Background(), canonical.ProvisionalID(srv.URL+"/gone"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Contains(t, rec.Detail, "client error 404")
}

func TestRunServerErrorRecordsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	led := openLedger(t)
	p, _ := newPipeline(t, led, &stubScorer{score: 90}, stubSource{name: "s", postings: []domain.Posting{
		{URL: srv.URL + "/flaky", Title: "SRE", Company: "Acme"},
	}})

	sum, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Errors)

	// error is not terminal, the next run retries.
	rec, err := led.Get(context.Background(), canonical.ProvisionalID(srv.URL+"/flaky"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.StatusError, rec.Status)
	assert.False(t, rec.Status.Terminal())
}

func TestRunSnippetCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><h1>Head of Infrastructure</h1><div>tiny</div></body></html>`)
	}))
	defer srv.Close()

	led := openLedger(t)
	scorer := &stubScorer{score: 95}
	p, sink := newPipeline(t, led, scorer, stubSource{name: "s", postings: []domain.Posting{
		{
			URL: srv.URL + "/x/jobs/4", Title: "Head of Infrastructure", Company: "Acme",
			Snippet: "Lead our platform org. Kubernetes, Terraform, on-call ownership.",
		},
	}})

	sum, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Admitted)

	require.Len(t, sink.jobs, 1)
	assert.Equal(t, 65, sink.jobs[0].Score, "snippet-only text never scores above the cap")

	rec, err := led.Get(context.Background(), sink.jobs[0].JobID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Contains(t, rec.Note, "snippet only")
}

func TestRunOracleFailureCapsAndRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, jobPage("Principal SRE"))
	}))
	defer srv.Close()

	led := openLedger(t)
	scorer := &stubScorer{err: errors.New("oracle down")}
	p, sink := newPipeline(t, led, scorer, stubSource{name: "s", postings: []domain.Posting{
		{URL: srv.URL + "/x/jobs/5", Title: "Principal SRE", Company: "Acme"},
	}})

	sum, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Rejected)
	assert.Empty(t, sink.jobs)

	recs, err := led.Fingerprints(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec, err := led.Get(context.Background(), recs[0].JobID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.NotNil(t, rec.Score)
	assert.Equal(t, 40, *rec.Score, "failed scoring caps, never drops")
	assert.Contains(t, rec.Detail, "oracle down")
}

func TestRunMergesCrossBoardDuplicates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, jobPage("Platform Engineer"))
	}))
	defer srv.Close()

	led := openLedger(t)
	scorer := &stubScorer{score: 80}
	p, sink := newPipeline(t, led, scorer, stubSource{name: "s", postings: []domain.Posting{
		{URL: srv.URL + "/gh/jobs/7", Title: "Platform Engineer", Company: "Acme Inc", SourceDomain: "boards.greenhouse.io"},
		{URL: srv.URL + "/lever/acme/7", Title: "Platform Engineer", Company: "Acme", SourceDomain: "jobs.lever.co"},
	}})
	p.Workers = 1 // deterministic: first posting wins canonical

	sum, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Admitted)
	assert.Equal(t, 1, sum.Duplicates)
	require.Len(t, sink.jobs, 1)

	// Both URL aliases resolve to the merged job.
	id1, ok, err := led.Resolve(context.Background(), canonical.DedupKey(canonical.CanonicalizeURL(srv.URL+"/gh/jobs/7")))
	require.NoError(t, err)
	require.True(t, ok)
	id2, ok, err := led.Resolve(context.Background(), canonical.DedupKey(canonical.CanonicalizeURL(srv.URL+"/lever/acme/7")))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id1, id2)

	// Both boards survive in the persisted record, not just in memory.
	rec, err := led.Get(context.Background(), id1)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Contains(t, rec.Sources, "boards.greenhouse.io")
	assert.Contains(t, rec.Sources, "jobs.lever.co")
}

func TestRunSourceFailureIsBestEffort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, jobPage("SRE"))
	}))
	defer srv.Close()

	led := openLedger(t)
	p, _ := newPipeline(t, led, &stubScorer{score: 70},
		stubSource{name: "bad", err: errors.New("imap down")},
		stubSource{name: "good", postings: []domain.Posting{
			{URL: srv.URL + "/x/jobs/8", Title: "SRE", Company: "Acme"},
		}},
	)

	sum, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Discovered)
	assert.Equal(t, 1, sum.Admitted)
}

func TestRunRecoversJobAfterTransientError(t *testing.T) {
	var hits atomic.Int32
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if !healthy.Load() {
			http.Error(w, "overloaded", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, jobPage("Staff Engineer"))
	}))
	defer srv.Close()

	led := openLedger(t)
	posting := domain.Posting{
		URL: srv.URL + "/acme/jobs/9", Title: "Staff Engineer", Company: "Acme",
		SourceDomain: "boards.greenhouse.io",
	}

	// run 1: upstream is down, the job lands in a retryable error state
	p1, _ := newPipeline(t, led, &stubScorer{score: 90}, stubSource{name: "s", postings: []domain.Posting{posting}})
	sum1, err := p1.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum1.Errors)

	// run 2: upstream recovered, the job must be scored and admitted,
	// not mistaken for a duplicate of its own failed sighting
	healthy.Store(true)
	scorer := &stubScorer{score: 90}
	p2, sink := newPipeline(t, led, scorer, stubSource{name: "s", postings: []domain.Posting{posting}})
	sum2, err := p2.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum2.Admitted)
	assert.Zero(t, sum2.Duplicates)
	assert.Equal(t, int32(1), scorer.calls.Load())
	require.Len(t, sink.jobs, 1)

	// the url alias now points at the settled canonical job and the
	// provisional error row is gone
	id, ok, err := led.Resolve(context.Background(), canonical.DedupKey(canonical.CanonicalizeURL(posting.URL)))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sink.jobs[0].JobID, id)
	orphan, err := led.Get(context.Background(), canonical.ProvisionalID(posting.URL))
	require.NoError(t, err)
	assert.Nil(t, orphan)

	// run 3: settled job, zero fetches
	before := hits.Load()
	p3, _ := newPipeline(t, led, &stubScorer{score: 90}, stubSource{name: "s", postings: []domain.Posting{posting}})
	sum3, err := p3.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum3.SkippedKnown)
	assert.Equal(t, before, hits.Load())
}
