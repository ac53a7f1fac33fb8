package canonical

import (
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"jobharvest-engine/internal/domain"
)

// Fingerprint is the similarity identity of a known job.
type Fingerprint struct {
	JobID   string
	Title   string
	Company string
}

// Deduper merges postings that are the same underlying job: exact matches
// by canonical URL host+path, fuzzy matches by title+company similarity
// across different URLs (the same role cross-posted on several boards).
// First seen wins: the earlier posting's text stays canonical, later
// sightings only extend the source set. Safe for concurrent workers.
type Deduper struct {
	mu               sync.Mutex
	titleThreshold   float64
	companyThreshold float64
	byKey            map[string]string // dedup key -> job id
	order            []Fingerprint     // insertion order keeps matching deterministic
	sources          map[string]mapset.Set[string]
}

func NewDeduper(titleThreshold, companyThreshold float64) *Deduper {
	if titleThreshold <= 0 {
		titleThreshold = 0.80
	}
	if companyThreshold <= 0 {
		companyThreshold = 0.85
	}
	return &Deduper{
		titleThreshold:   titleThreshold,
		companyThreshold: companyThreshold,
		byKey:            make(map[string]string),
		sources:          make(map[string]mapset.Set[string]),
	}
}

// Seed preloads fingerprints of jobs already in the ledger so re-posted
// roles from earlier runs still merge instead of resurfacing.
func (d *Deduper) Seed(fps []Fingerprint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, fp := range fps {
		d.order = append(d.order, fp)
		if _, ok := d.sources[fp.JobID]; !ok {
			d.sources[fp.JobID] = mapset.NewSet[string]()
		}
	}
}

// Canonicalize reduces a raw posting to its canonical form. Body and
// posting time come from extraction and are supplied by the caller.
func Canonicalize(p domain.Posting, body string, postedAt time.Time) domain.CanonicalJob {
	cu := CanonicalizeURL(p.URL)
	if postedAt.IsZero() {
		postedAt = p.DiscoveredAt
	}
	company := p.Company
	if company == "" {
		company = "Unknown"
	}
	return domain.CanonicalJob{
		JobID:        JobID(p.Title, company, cu),
		Title:        p.Title,
		Company:      company,
		CanonicalURL: cu,
		Body:         body,
		PostedAt:     postedAt,
		Sources:      []string{p.SourceDomain},
	}
}

// Observe registers a canonical job and reports whether it duplicates a
// known one. On a duplicate the job's source domains are merged into the
// existing job's source set and the existing id is returned.
func (d *Deduper) Observe(job domain.CanonicalJob) (jobID string, duplicate bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := DedupKey(job.CanonicalURL)
	if id, ok := d.byKey[key]; ok {
		d.merge(id, job)
		return id, true
	}

	nt, nc := job.Title, job.Company
	if Normalize(nc) != "unknown" && Normalize(nt) != "" {
		for _, fp := range d.order {
			if fp.JobID == job.JobID {
				continue
			}
			if Similarity(nc, fp.Company) >= d.companyThreshold &&
				Similarity(nt, fp.Title) >= d.titleThreshold {
				d.byKey[key] = fp.JobID
				d.merge(fp.JobID, job)
				return fp.JobID, true
			}
		}
	}

	d.byKey[key] = job.JobID
	d.order = append(d.order, Fingerprint{JobID: job.JobID, Title: job.Title, Company: job.Company})
	set := mapset.NewSet[string]()
	for _, s := range job.Sources {
		set.Add(s)
	}
	d.sources[job.JobID] = set
	return job.JobID, false
}

func (d *Deduper) merge(existingID string, job domain.CanonicalJob) {
	set, ok := d.sources[existingID]
	if !ok {
		set = mapset.NewSet[string]()
		d.sources[existingID] = set
	}
	for _, s := range job.Sources {
		set.Add(s)
	}
}

// Sources returns the sorted source domains seen for a job id.
func (d *Deduper) Sources(jobID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.sources[jobID]
	if !ok {
		return nil
	}
	out := set.ToSlice()
	sort.Strings(out)
	return out
}
