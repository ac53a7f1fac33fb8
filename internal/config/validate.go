package config

import (
	"fmt"
	"strings"
)

type Validation struct {
	Errors   []string
	Warnings []string
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// NormalizeAndValidate trims list fields and sanity-checks the config
// without touching the original.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	out := cfg
	var res Validation

	trimList := func(xs []string) []string {
		seen := map[string]bool{}
		var ys []string
		for _, x := range xs {
			x = strings.TrimSpace(x)
			if x == "" {
				continue
			}
			key := strings.ToLower(x)
			if seen[key] {
				continue
			}
			seen[key] = true
			ys = append(ys, x)
		}
		return ys
	}

	out.Search.Roles = trimList(out.Search.Roles)
	out.Search.Locations = trimList(out.Search.Locations)
	out.Search.Exclusions = trimList(out.Search.Exclusions)
	out.Search.Boards = trimList(out.Search.Boards)
	out.Email.SubjectAny = trimList(out.Email.SubjectAny)

	if !out.Search.Enabled && !out.Email.Enabled {
		res.addWarn("no sources enabled; the run will discover nothing")
	}

	if out.Search.Enabled {
		if strings.TrimSpace(out.Search.Endpoint) == "" {
			res.addErr("search.endpoint is required when search.enabled=true")
		}
		if len(out.Search.Roles) == 0 {
			res.addErr("search.roles must have at least one role when search.enabled=true")
		}
	}

	if out.Email.Enabled {
		if strings.TrimSpace(out.Email.IMAPHost) == "" {
			res.addErr("email.imap_host is required when email.enabled=true")
		}
		if out.Email.IMAPPort == 0 {
			res.addErr("email.imap_port is required when email.enabled=true")
		}
		if strings.TrimSpace(out.Email.Username) == "" {
			res.addErr("email.username is required when email.enabled=true")
		}
		if strings.TrimSpace(out.Email.Mailbox) == "" {
			out.Email.Mailbox = "INBOX"
		}
	}

	if out.Scoring.Cutoff < 0 || out.Scoring.Cutoff > 100 {
		res.addErr("scoring.cutoff must be in 0..100")
	}
	if out.Scoring.FailScore > out.Scoring.Cutoff {
		res.addWarn("scoring.fail_score (%d) is above the cutoff (%d); oracle failures would auto-admit",
			out.Scoring.FailScore, out.Scoring.Cutoff)
	}
	switch out.Scoring.Mode {
	case "local":
		if len(out.Scoring.TitleRules) == 0 && len(out.Scoring.KeywordRules) == 0 {
			res.addWarn("scoring.mode=local with no rules; every job will score 0")
		}
	case "remote":
		if strings.TrimSpace(out.Scoring.Remote.BaseURL) == "" {
			res.addErr("scoring.remote.base_url is required when scoring.mode=remote")
		}
	default:
		res.addErr("scoring.mode must be local or remote, got %q", out.Scoring.Mode)
	}

	if out.Dedup.TitleThreshold > 1 || out.Dedup.CompanyThreshold > 1 {
		res.addErr("dedup thresholds are ratios in (0,1]")
	}

	if out.Throttle.ReqPerSec > 5 {
		res.addWarn("throttle.req_per_sec=%.1f is aggressive and may get the scraper blocked", out.Throttle.ReqPerSec)
	}

	for i, b := range out.Scoring.Bands {
		if b.Min < 0 || b.Min > 100 {
			res.addErr("scoring.bands[%d].min must be in 0..100", i)
		}
	}

	return out, res
}
