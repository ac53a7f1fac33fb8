package domain

import "time"

// Posting is a raw lead as discovered from an upstream source, before any
// fetching or normalization. Discarded once canonicalized.
type Posting struct {
	SourceDomain string // host the lead was discovered on (boards.greenhouse.io, ...)
	SourceID     string // source-native id or the raw URL
	URL          string
	Title        string
	Company      string
	Location     string
	Snippet      string
	DiscoveredAt time.Time
}

// CanonicalJob is a deduplicated posting with a stable identity.
type CanonicalJob struct {
	JobID        string
	Title        string
	Company      string
	CanonicalURL string
	Body         string
	PostedAt     time.Time
	Sources      []string // source domains that yielded this job
}

type ScoringMode string

const (
	ModeLocal  ScoringMode = "local"
	ModeRemote ScoringMode = "remote"
)

// Verdict is one scoring-oracle result for a job.
type Verdict struct {
	JobID         string
	Score         int // 0..100
	Justification string
	Mode          ScoringMode
	ScoredAt      time.Time
}

type Status string

const (
	StatusSeen        Status = "seen"
	StatusFetched     Status = "fetched"
	StatusFilteredOut Status = "filtered_out"
	StatusScored      Status = "scored"
	StatusAdmitted    Status = "admitted"
	StatusRejected    Status = "rejected"
	StatusError       Status = "error"
)

// Terminal reports whether a status ends processing for a job. Jobs in a
// terminal status are never re-fetched or re-scored unless forced; anything
// else is picked up again on the next run.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilteredOut, StatusAdmitted, StatusRejected:
		return true
	}
	return false
}

// LedgerEntry is the durable per-job state. One entry per JobID, upserted.
type LedgerEntry struct {
	JobID     string
	Status    Status
	UpdatedAt time.Time
	Detail    string // reason code or error detail
	Note      string
}

// AdmittedJob is what reporting consumers receive. Rejected and filtered
// jobs never leave the core.
type AdmittedJob struct {
	JobID         string
	Title         string
	Company       string
	CanonicalURL  string
	Score         int
	Justification string
}
