package oracle

import (
	"context"
	"strings"

	"jobharvest-engine/internal/config"
	"jobharvest-engine/internal/domain"
)

// LocalScorer is the offline mode: additive keyword rules from config,
// no network. Useful when the remote oracle is unavailable or too
// expensive for a broad sweep.
type LocalScorer struct {
	Cfg config.Config
}

func (s LocalScorer) Mode() domain.ScoringMode { return domain.ModeLocal }

func (s LocalScorer) Score(_ context.Context, jobText, _ string) (int, string, error) {
	text := strings.ToLower(jobText)

	score := 0
	var tags []string

	applyRules := func(rules []config.Rule) {
		for _, r := range rules {
			for _, needle := range r.Any {
				n := strings.ToLower(strings.TrimSpace(needle))
				if n == "" {
					continue
				}
				if strings.Contains(text, n) {
					score += r.Weight
					tags = append(tags, r.Tag)
					break
				}
			}
		}
	}

	applyRules(s.Cfg.Scoring.TitleRules)
	applyRules(s.Cfg.Scoring.KeywordRules)

	var hits []string
	for _, p := range s.Cfg.Scoring.Penalties {
		for _, needle := range p.Any {
			n := strings.ToLower(strings.TrimSpace(needle))
			if n == "" {
				continue
			}
			if strings.Contains(text, n) {
				score += p.Weight
				hits = append(hits, p.Reason)
				break
			}
		}
	}

	just := "matched: " + strings.Join(uniq(tags), ", ")
	if len(tags) == 0 {
		just = "no rule matched"
	}
	if len(hits) > 0 {
		just += "; penalized: " + strings.Join(uniq(hits), ", ")
	}
	return clamp(score), just, nil
}

func uniq(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, t := range in {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
