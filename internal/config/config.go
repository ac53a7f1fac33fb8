package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Rule adds weight when any of its needles appears in the job text.
// Used by the local scoring mode.
type Rule struct {
	Tag    string   `yaml:"tag"`
	Weight int      `yaml:"weight"`
	Any    []string `yaml:"any"`
}

type Penalty struct {
	Reason string   `yaml:"reason"`
	Weight int      `yaml:"weight"`
	Any    []string `yaml:"any"`
}

// Band labels a score range for reporting consumers. Admission itself is
// binary on the cutoff; bands only annotate.
type Band struct {
	Min   int    `yaml:"min"`
	Label string `yaml:"label"`
}

type DomainRate struct {
	ReqPerSec float64 `yaml:"req_per_sec"`
	Burst     int     `yaml:"burst"`
}

type Config struct {
	App struct {
		DataDir string `yaml:"data_dir"`
	} `yaml:"app"`

	Search struct {
		Enabled    bool     `yaml:"enabled"`
		Endpoint   string   `yaml:"endpoint"`
		CX         string   `yaml:"cx"`
		Roles      []string `yaml:"roles"`
		Locations  []string `yaml:"locations"`
		Exclusions []string `yaml:"exclusions"`
		Boards     []string `yaml:"boards"`
		Pages      int      `yaml:"pages"`
	} `yaml:"search"`

	Email struct {
		Enabled        bool     `yaml:"enabled"`
		IMAPHost       string   `yaml:"imap_host"`
		IMAPPort       int      `yaml:"imap_port"`
		Username       string   `yaml:"username"`
		Mailbox        string   `yaml:"mailbox"`
		SubjectAny     []string `yaml:"subject_any"`
		MaxMessages    int      `yaml:"max_messages"`
		MarkSeen       bool     `yaml:"mark_seen"`
		KeyringAccount string   `yaml:"keyring_account"`
	} `yaml:"email"`

	Throttle struct {
		ReqPerSec          float64               `yaml:"req_per_sec"`
		Burst              int                   `yaml:"burst"`
		TripAfter          int                   `yaml:"trip_after"`
		CooldownSeconds    int                   `yaml:"cooldown_seconds"`
		MaxCooldownSeconds int                   `yaml:"max_cooldown_seconds"`
		Domains            map[string]DomainRate `yaml:"domains"`
	} `yaml:"throttle"`

	Fetch struct {
		TimeoutSeconds       int `yaml:"timeout_seconds"`
		MaxAttempts          int `yaml:"max_attempts"`
		RetryBaseMs          int `yaml:"retry_base_ms"`
		Workers              int `yaml:"workers"`
		SourceTimeoutSeconds int `yaml:"source_timeout_seconds"`
	} `yaml:"fetch"`

	Filters struct {
		FreshnessDays int `yaml:"freshness_days"`
		MinBodyLen    int `yaml:"min_body_len"`
	} `yaml:"filters"`

	Dedup struct {
		TitleThreshold   float64 `yaml:"title_threshold"`
		CompanyThreshold float64 `yaml:"company_threshold"`
		SeedDays         int     `yaml:"seed_days"`
	} `yaml:"dedup"`

	Scoring struct {
		Mode           string `yaml:"mode"` // local | remote
		Cutoff         int    `yaml:"cutoff"`
		FailScore      int    `yaml:"fail_score"`
		SnippetCap     int    `yaml:"snippet_cap"` // max score when only snippet text was available
		TimeoutSeconds int    `yaml:"timeout_seconds"`
		ProfilePath    string `yaml:"profile_path"`
		Bands          []Band `yaml:"bands"`
		Remote         struct {
			BaseURL string `yaml:"base_url"`
			Model   string `yaml:"model"`
		} `yaml:"remote"`
		TitleRules   []Rule    `yaml:"title_rules"`
		KeywordRules []Rule    `yaml:"keyword_rules"`
		Penalties    []Penalty `yaml:"penalties"`
	} `yaml:"scoring"`

	Notify struct {
		Telegram struct {
			Enabled  bool  `yaml:"enabled"`
			ChatID   int64 `yaml:"chat_id"`
			MinScore int   `yaml:"min_score"`
		} `yaml:"telegram"`
	} `yaml:"notify"`
}

func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Throttle.ReqPerSec <= 0 {
		cfg.Throttle.ReqPerSec = 1.0
	}
	if cfg.Throttle.Burst <= 0 {
		cfg.Throttle.Burst = 2
	}
	if cfg.Throttle.TripAfter <= 0 {
		cfg.Throttle.TripAfter = 3
	}
	if cfg.Throttle.CooldownSeconds <= 0 {
		cfg.Throttle.CooldownSeconds = 30
	}
	if cfg.Throttle.MaxCooldownSeconds <= 0 {
		cfg.Throttle.MaxCooldownSeconds = 600
	}
	if cfg.Fetch.TimeoutSeconds <= 0 {
		cfg.Fetch.TimeoutSeconds = 20
	}
	if cfg.Fetch.MaxAttempts <= 0 {
		cfg.Fetch.MaxAttempts = 2
	}
	if cfg.Fetch.RetryBaseMs <= 0 {
		cfg.Fetch.RetryBaseMs = 500
	}
	if cfg.Fetch.Workers <= 0 {
		cfg.Fetch.Workers = 8
	}
	if cfg.Fetch.SourceTimeoutSeconds <= 0 {
		cfg.Fetch.SourceTimeoutSeconds = 120
	}
	if cfg.Filters.FreshnessDays <= 0 {
		cfg.Filters.FreshnessDays = 7
	}
	if cfg.Filters.MinBodyLen <= 0 {
		cfg.Filters.MinBodyLen = 300
	}
	if cfg.Dedup.TitleThreshold <= 0 {
		cfg.Dedup.TitleThreshold = 0.80
	}
	if cfg.Dedup.CompanyThreshold <= 0 {
		cfg.Dedup.CompanyThreshold = 0.85
	}
	if cfg.Dedup.SeedDays <= 0 {
		cfg.Dedup.SeedDays = 30
	}
	if cfg.Scoring.Mode == "" {
		cfg.Scoring.Mode = "local"
	}
	if cfg.Scoring.Cutoff <= 0 {
		cfg.Scoring.Cutoff = 65
	}
	if cfg.Scoring.FailScore <= 0 {
		cfg.Scoring.FailScore = 40
	}
	if cfg.Scoring.SnippetCap <= 0 {
		cfg.Scoring.SnippetCap = 65
	}
	if cfg.Scoring.TimeoutSeconds <= 0 {
		cfg.Scoring.TimeoutSeconds = 60
	}
	if len(cfg.Scoring.Bands) == 0 {
		cfg.Scoring.Bands = []Band{
			{Min: 85, Label: "apply without overthinking"},
			{Min: 75, Label: "sanity check"},
			{Min: 65, Label: "opportunistic"},
		}
	}
	if cfg.Search.Pages <= 0 {
		cfg.Search.Pages = 2
	}
	if len(cfg.Search.Boards) == 0 {
		cfg.Search.Boards = []string{
			"boards.greenhouse.io",
			"jobs.ashbyhq.com",
			"jobs.lever.co",
			"apply.workable.com",
			"bamboohr.com",
		}
	}
	if cfg.Email.MaxMessages <= 0 {
		cfg.Email.MaxMessages = 50
	}
	if cfg.Notify.Telegram.MinScore <= 0 {
		cfg.Notify.Telegram.MinScore = 85
	}
}
