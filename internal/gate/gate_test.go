package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobharvest-engine/internal/config"
	"jobharvest-engine/internal/domain"
)

type stubScorer struct {
	score int
	err   error
}

func (s stubScorer) Score(context.Context, string, string) (int, string, error) {
	return s.score, "stubbed", s.err
}
func (s stubScorer) Mode() domain.ScoringMode { return domain.ModeLocal }

func testGate(scorer stubScorer) *Gate {
	var cfg config.Config
	cfg.Scoring.Cutoff = 65
	cfg.Scoring.FailScore = 40
	cfg.Scoring.TimeoutSeconds = 1
	cfg.Scoring.Bands = []config.Band{
		{Min: 85, Label: "apply without overthinking"},
		{Min: 75, Label: "sanity check"},
		{Min: 65, Label: "opportunistic"},
	}
	return New(scorer, "profile", cfg)
}

func TestCutoffIsInclusive(t *testing.T) {
	job := domain.CanonicalJob{JobID: "j1", Body: "text"}

	tests := []struct {
		score int
		want  Decision
	}{
		{64, DecisionRejected},
		{65, DecisionAdmitted},
		{66, DecisionAdmitted},
		{0, DecisionRejected},
		{100, DecisionAdmitted},
	}
	for _, tt := range tests {
		v, decision, err := testGate(stubScorer{score: tt.score}).Admit(context.Background(), job)
		require.NoError(t, err)
		assert.Equal(t, tt.want, decision, "score %d", tt.score)
		assert.Equal(t, tt.score, v.Score)
		assert.Equal(t, "j1", v.JobID)
	}
}

func TestOracleFailureCapsScore(t *testing.T) {
	g := testGate(stubScorer{score: 99, err: errors.New("oracle timeout")})
	v, decision, err := g.Admit(context.Background(), domain.CanonicalJob{JobID: "j1"})

	require.Error(t, err, "oracle error must surface for the ledger detail")
	assert.Equal(t, 40, v.Score, "failed scoring gets the conservative cap, not the oracle's number")
	assert.Equal(t, DecisionRejected, decision)
	assert.Contains(t, v.Justification, "capped")
	assert.False(t, v.ScoredAt.IsZero())
}

func TestOracleTimeoutIsBounded(t *testing.T) {
	slow := slowScorer{delay: 300 * time.Millisecond}
	var cfg config.Config
	cfg.Scoring.Cutoff = 65
	cfg.Scoring.FailScore = 40
	cfg.Scoring.TimeoutSeconds = 1
	g := New(slow, "p", cfg)
	g.Timeout = 30 * time.Millisecond

	start := time.Now()
	v, decision, err := g.Admit(context.Background(), domain.CanonicalJob{JobID: "j1"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
	assert.Equal(t, 40, v.Score)
	assert.Equal(t, DecisionRejected, decision)
}

type slowScorer struct{ delay time.Duration }

func (s slowScorer) Score(ctx context.Context, _, _ string) (int, string, error) {
	select {
	case <-time.After(s.delay):
		return 90, "late", nil
	case <-ctx.Done():
		return 0, "", ctx.Err()
	}
}
func (s slowScorer) Mode() domain.ScoringMode { return domain.ModeRemote }

func TestBandLabels(t *testing.T) {
	g := testGate(stubScorer{})
	assert.Equal(t, "apply without overthinking", g.Band(92))
	assert.Equal(t, "sanity check", g.Band(80))
	assert.Equal(t, "opportunistic", g.Band(65))
	assert.Equal(t, "", g.Band(50))
}
