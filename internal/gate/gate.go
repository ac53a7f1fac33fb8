// Package gate decides whether a canonical job is worth a human's time:
// it consults the scoring oracle and applies the cutoff policy.
package gate

import (
	"context"
	"fmt"
	"time"

	"jobharvest-engine/internal/config"
	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/oracle"
)

type Decision string

const (
	DecisionAdmitted Decision = "admitted"
	DecisionRejected Decision = "rejected"
)

type Gate struct {
	Scorer    oracle.Scorer
	Profile   string // candidate profile handed to the oracle verbatim
	Cutoff    int    // inclusive: score >= cutoff admits
	FailScore int    // conservative score assigned when the oracle fails
	Timeout   time.Duration
	Bands     []config.Band
}

func New(scorer oracle.Scorer, profile string, cfg config.Config) *Gate {
	return &Gate{
		Scorer:    scorer,
		Profile:   profile,
		Cutoff:    cfg.Scoring.Cutoff,
		FailScore: cfg.Scoring.FailScore,
		Timeout:   time.Duration(cfg.Scoring.TimeoutSeconds) * time.Second,
		Bands:     cfg.Scoring.Bands,
	}
}

// Admit scores the job and applies the threshold. An oracle failure is
// returned as oracleErr for the ledger's error detail, but the job still
// gets a verdict (the capped FailScore) and a decision; failures are
// visible, never silently dropped.
func (g *Gate) Admit(ctx context.Context, job domain.CanonicalJob) (domain.Verdict, Decision, error) {
	sctx := ctx
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	score, justification, err := g.Scorer.Score(sctx, job.Body, g.Profile)
	if err != nil {
		score = g.FailScore
		justification = fmt.Sprintf("scoring unavailable, capped at %d", g.FailScore)
	}

	v := domain.Verdict{
		JobID:         job.JobID,
		Score:         score,
		Justification: justification,
		Mode:          g.Scorer.Mode(),
		ScoredAt:      time.Now().UTC(),
	}

	decision := DecisionRejected
	if v.Score >= g.Cutoff {
		decision = DecisionAdmitted
	}
	return v, decision, err
}

// Band returns the configured label for a score, empty below every band.
func (g *Gate) Band(score int) string {
	best := ""
	bestMin := -1
	for _, b := range g.Bands {
		if score >= b.Min && b.Min > bestMin {
			best = b.Label
			bestMin = b.Min
		}
	}
	return best
}
