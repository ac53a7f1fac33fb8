// Package oracle talks to the external scoring capability: job text and
// candidate profile in, numeric verdict out. The mapping itself is opaque
// to the pipeline; this package only guards the edge (timeouts, malformed
// responses, clamping).
package oracle

import (
	"context"

	"jobharvest-engine/internal/domain"
)

// Scorer maps job text + candidate profile to a score in [0,100] with a
// short justification.
type Scorer interface {
	Score(ctx context.Context, jobText, profile string) (score int, justification string, err error)
	Mode() domain.ScoringMode
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
