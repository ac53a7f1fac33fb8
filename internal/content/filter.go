package content

import (
	"fmt"
	"strings"
	"time"
)

// Rejection reasons recorded in the ledger as filtered_out detail.
const (
	ReasonInterstitial = "interstitial_detected"
	ReasonStale        = "stale"
	ReasonUnparseable  = "unparseable"
)

// RejectError marks a page as failing the hard admission pre-filter.
type RejectError struct {
	Reason string
	Detail string
}

func (e *RejectError) Error() string {
	if e.Detail == "" {
		return "content rejected: " + e.Reason
	}
	return fmt.Sprintf("content rejected: %s (%s)", e.Reason, e.Detail)
}

// Signatures of JS-walls, bot checks and access-denied interstitials.
// Matched against the head of the extracted text.
var interstitialSignatures = []string{
	"enable javascript",
	"please turn on javascript",
	"access denied",
	"error 1020",
	"cloudflare",
	"captcha",
	"human verification",
	"too many requests",
}

// Filter gates what content is ever worth scoring. Rejected pages are
// recorded as filtered_out and never reach the oracle.
type Filter struct {
	FreshnessWindow time.Duration // postings with a structured date older than this are stale
	MinBodyLen      int
}

func NewFilter(freshnessDays, minBodyLen int) Filter {
	if freshnessDays <= 0 {
		freshnessDays = 7
	}
	if minBodyLen <= 0 {
		minBodyLen = 300
	}
	return Filter{
		FreshnessWindow: time.Duration(freshnessDays) * 24 * time.Hour,
		MinBodyLen:      minBodyLen,
	}
}

// Evaluate returns nil for acceptable content, or a *RejectError naming
// why the page must not reach scoring.
func (f Filter) Evaluate(ex Extract, now time.Time) error {
	head := strings.ToLower(ex.Body)
	if len(head) > 1000 {
		head = head[:1000]
	}
	for _, sig := range interstitialSignatures {
		if strings.Contains(head, sig) {
			return &RejectError{Reason: ReasonInterstitial, Detail: sig}
		}
	}

	if len(ex.Body) < f.MinBodyLen {
		return &RejectError{Reason: ReasonUnparseable, Detail: fmt.Sprintf("body %d chars", len(ex.Body))}
	}

	if !ex.PostedAt.IsZero() && now.Sub(ex.PostedAt) > f.FreshnessWindow {
		return &RejectError{Reason: ReasonStale, Detail: "posted " + ex.PostedAt.Format("2006-01-02")}
	}

	return nil
}
