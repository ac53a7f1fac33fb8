// Package pipeline orchestrates one harvest run: discover leads, fetch
// and judge each one, and commit exactly one terminal ledger write per
// job. Per-job failures never abort the run; only an unreachable ledger
// does.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"jobharvest-engine/internal/canonical"
	"jobharvest-engine/internal/content"
	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/fetch"
	"jobharvest-engine/internal/gate"
	"jobharvest-engine/internal/ledger"
	"jobharvest-engine/internal/notify"
	"jobharvest-engine/internal/source"
)

type Pipeline struct {
	Sources []source.Source
	Fetcher *fetch.Client
	Filter  content.Filter
	Deduper *canonical.Deduper
	Gate    *gate.Gate
	Ledger  *ledger.Ledger
	Sinks   []notify.Sink

	Workers       int
	SourceTimeout time.Duration
	Retry         RetryPolicy
	SeedWindow    time.Duration // how far back ledger fingerprints seed the deduper
	SnippetCap    int           // max score when only snippet text was available
	ForceRescore  bool          // reprocess jobs already in a terminal status
}

// Summary is what one run reports to the operator.
type Summary struct {
	Discovered   int
	SkippedKnown int
	Duplicates   int
	Throttled    int
	FilteredOut  int
	Admitted     int
	Rejected     int
	Errors       int
}

func (s Summary) String() string {
	return fmt.Sprintf("discovered=%d known=%d dup=%d throttled=%d filtered=%d admitted=%d rejected=%d errors=%d",
		s.Discovered, s.SkippedKnown, s.Duplicates, s.Throttled,
		s.FilteredOut, s.Admitted, s.Rejected, s.Errors)
}

func (p *Pipeline) fill() {
	if p.Workers <= 0 {
		p.Workers = 8
	}
	if p.SourceTimeout <= 0 {
		p.SourceTimeout = 2 * time.Minute
	}
	if p.SeedWindow <= 0 {
		p.SeedWindow = 30 * 24 * time.Hour
	}
	if p.SnippetCap <= 0 {
		p.SnippetCap = 65
	}
}

// Run executes one harvest cycle. Source failures are logged and
// skipped; the run proceeds with whatever leads were gathered.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	p.fill()
	var sum Summary

	fps, err := p.Ledger.Fingerprints(ctx, time.Now().Add(-p.SeedWindow))
	if err != nil {
		return sum, fmt.Errorf("seed dedup index: %w", err)
	}
	p.Deduper.Seed(fps)

	postings := p.discover(ctx)
	sum.Discovered = len(postings)
	if len(postings) == 0 {
		return sum, ctx.Err()
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		workCh = make(chan domain.Posting)
	)

	wg.Add(p.Workers)
	for i := 0; i < p.Workers; i++ {
		go func() {
			defer wg.Done()
			for posting := range workCh {
				res := p.process(ctx, posting)
				mu.Lock()
				res.apply(&sum)
				mu.Unlock()
			}
		}()
	}

	for _, posting := range postings {
		select {
		case <-ctx.Done():
			close(workCh)
			wg.Wait()
			return sum, ctx.Err()
		case workCh <- posting:
		}
	}
	close(workCh)
	wg.Wait()

	log.Printf("[run] %s", sum)
	return sum, ctx.Err()
}

func (p *Pipeline) discover(ctx context.Context) []domain.Posting {
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	var out []domain.Posting

	for _, src := range p.Sources {
		src := src
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, p.SourceTimeout)
			defer cancel()

			leads, err := src.Discover(sctx)
			if err != nil {
				log.Printf("[%s] discover: %v", src.Name(), err)
				return nil // best-effort, keep the siblings running
			}
			log.Printf("[%s] %d leads", src.Name(), len(leads))
			mu.Lock()
			out = append(out, leads...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// result carries one posting's outcome back to the summary.
type result int

const (
	resNone result = iota
	resSkippedKnown
	resDuplicate
	resThrottled
	resFiltered
	resAdmitted
	resRejected
	resError
)

func (r result) apply(s *Summary) {
	switch r {
	case resSkippedKnown:
		s.SkippedKnown++
	case resDuplicate:
		s.Duplicates++
	case resThrottled:
		s.Throttled++
	case resFiltered:
		s.FilteredOut++
	case resAdmitted:
		s.Admitted++
	case resRejected:
		s.Rejected++
	case resError:
		s.Errors++
	}
}

func (p *Pipeline) process(ctx context.Context, posting domain.Posting) result {
	urlKey := canonical.DedupKey(canonical.CanonicalizeURL(posting.URL))
	provisionalID := canonical.ProvisionalID(posting.URL)

	// Known URL in a terminal status needs no network call at all.
	if knownID, ok, err := p.Ledger.Resolve(ctx, urlKey); err == nil && ok {
		if p.isSettled(ctx, knownID) {
			return resSkippedKnown
		}
	}

	fetched, err := fetchWithRetry(ctx, p.Fetcher, posting.URL, p.Retry)
	if err != nil {
		return p.handleFetchError(ctx, posting, provisionalID, urlKey, err)
	}

	ex := content.Parse(fetched.FinalURL, fetched.HTML)
	if posting.Title == "" {
		posting.Title = ex.Title
	}

	snippetOnly := false
	body := ex.Body
	if ferr := p.Filter.Evaluate(ex, time.Now()); ferr != nil {
		var rej *content.RejectError
		if errors.As(ferr, &rej) && rej.Reason == content.ReasonUnparseable {
			// Thin page: score what the lead itself gave us, capped.
			body = snippetText(posting)
			if body == "" {
				return p.commit(ctx, ledger.Record{
					LedgerEntry: domain.LedgerEntry{JobID: provisionalID, Status: domain.StatusFilteredOut, Detail: rej.Reason},
					Title:       posting.Title, Company: posting.Company,
					CanonicalURL: canonical.CanonicalizeURL(posting.URL),
					URLKeys:      []string{urlKey},
				}, resFiltered)
			}
			snippetOnly = true
		} else {
			detail := ferr.Error()
			if rej != nil {
				detail = rej.Reason + ": " + rej.Detail
			}
			return p.commit(ctx, ledger.Record{
				LedgerEntry: domain.LedgerEntry{JobID: provisionalID, Status: domain.StatusFilteredOut, Detail: detail},
				Title:       posting.Title, Company: posting.Company,
				CanonicalURL: canonical.CanonicalizeURL(posting.URL),
				URLKeys:      []string{urlKey},
			}, resFiltered)
		}
	}

	job := canonical.Canonicalize(posting, body, ex.PostedAt)
	jobID, duplicate := p.Deduper.Observe(job)
	if duplicate {
		if err := p.Ledger.LinkURL(ctx, urlKey, jobID); err != nil {
			log.Printf("[run] link %s: %v", jobID, err)
		}
		if err := p.Ledger.MergeSources(ctx, jobID, job.Sources); err != nil {
			log.Printf("[run] merge sources %s: %v", jobID, err)
		}
		return resDuplicate
	}
	job.Sources = p.Deduper.Sources(jobID)

	if !p.ForceRescore && p.isSettled(ctx, jobID) {
		if err := p.Ledger.LinkURL(ctx, urlKey, jobID); err != nil {
			log.Printf("[run] link %s: %v", jobID, err)
		}
		return resSkippedKnown
	}

	verdict, decision, oracleErr := p.Gate.Admit(ctx, job)
	note := p.Gate.Band(verdict.Score)
	if snippetOnly {
		if verdict.Score > p.SnippetCap {
			verdict.Score = p.SnippetCap
			decision = gate.DecisionRejected
			if verdict.Score >= p.Gate.Cutoff {
				decision = gate.DecisionAdmitted
			}
		}
		note = strings.TrimSpace(note + " (snippet only)")
	}

	rec := ledger.Record{
		LedgerEntry: domain.LedgerEntry{
			JobID:  job.JobID,
			Status: domain.StatusRejected,
			Note:   note,
		},
		Title:         job.Title,
		Company:       job.Company,
		CanonicalURL:  job.CanonicalURL,
		Score:         &verdict.Score,
		Justification: verdict.Justification,
		Sources:       strings.Join(job.Sources, ","),
		URLKeys:       []string{urlKey},
	}
	if oracleErr != nil {
		rec.Detail = "oracle: " + oracleErr.Error()
	}

	outcome := resRejected
	if decision == gate.DecisionAdmitted {
		rec.Status = domain.StatusAdmitted
		outcome = resAdmitted
	}

	if out := p.commit(ctx, rec, outcome); out != outcome {
		return out
	}

	if outcome == resAdmitted {
		p.deliver(ctx, domain.AdmittedJob{
			JobID:         job.JobID,
			Title:         job.Title,
			Company:       job.Company,
			CanonicalURL:  job.CanonicalURL,
			Score:         verdict.Score,
			Justification: verdict.Justification,
		})
	}
	return outcome
}

func (p *Pipeline) handleFetchError(ctx context.Context, posting domain.Posting, jobID, urlKey string, err error) result {
	var fe *fetch.Error
	if !errors.As(err, &fe) {
		// Run-level cancellation, leave the job untouched for next time.
		return resNone
	}

	switch fe.Kind {
	case fetch.KindThrottled:
		// Breaker open or bucket exhausted: next run gets another shot.
		return resThrottled
	case fetch.KindClientError:
		return p.commit(ctx, ledger.Record{
			LedgerEntry: domain.LedgerEntry{
				JobID:  jobID,
				Status: domain.StatusFilteredOut,
				Detail: fmt.Sprintf("client error %d", fe.Status),
			},
			Title:        posting.Title,
			Company:      posting.Company,
			CanonicalURL: canonical.CanonicalizeURL(posting.URL),
			URLKeys:      []string{urlKey},
		}, resFiltered)
	default:
		return p.commit(ctx, ledger.Record{
			LedgerEntry: domain.LedgerEntry{
				JobID:  jobID,
				Status: domain.StatusError,
				Detail: fe.Error(),
			},
			Title:        posting.Title,
			Company:      posting.Company,
			CanonicalURL: canonical.CanonicalizeURL(posting.URL),
			URLKeys:      []string{urlKey},
		}, resError)
	}
}

// isSettled reports whether the ledger already holds a terminal status
// for the job. Ledger read errors fail open so the job gets reprocessed.
func (p *Pipeline) isSettled(ctx context.Context, jobID string) bool {
	if p.ForceRescore {
		return false
	}
	rec, err := p.Ledger.Get(ctx, jobID)
	if err != nil || rec == nil {
		return false
	}
	return rec.Status.Terminal()
}

// commit writes the final record, unless the run was cancelled: an
// aborted run leaves in-flight jobs untouched rather than half-written.
func (p *Pipeline) commit(ctx context.Context, rec ledger.Record, ok result) result {
	if ctx.Err() != nil {
		return resNone
	}
	if err := p.Ledger.Upsert(ctx, rec); err != nil {
		log.Printf("[run] ledger write %s: %v", rec.JobID, err)
		return resError
	}
	return ok
}

func (p *Pipeline) deliver(ctx context.Context, job domain.AdmittedJob) {
	for _, sink := range p.Sinks {
		if err := sink.Deliver(ctx, job); err != nil {
			log.Printf("[%s] deliver %s: %v", sink.Name(), job.JobID, err)
		}
	}
}

func snippetText(p domain.Posting) string {
	var b strings.Builder
	if p.Title != "" {
		fmt.Fprintf(&b, "TITLE: %s\n", p.Title)
	}
	if p.Company != "" {
		fmt.Fprintf(&b, "COMPANY: %s\n", p.Company)
	}
	if p.Snippet != "" {
		fmt.Fprintf(&b, "SNIPPET: %s", p.Snippet)
	}
	return strings.TrimSpace(b.String())
}
