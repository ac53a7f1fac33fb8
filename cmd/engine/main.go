package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/joho/godotenv"

	"jobharvest-engine/internal/canonical"
	"jobharvest-engine/internal/config"
	"jobharvest-engine/internal/content"
	"jobharvest-engine/internal/fetch"
	"jobharvest-engine/internal/gate"
	"jobharvest-engine/internal/ledger"
	"jobharvest-engine/internal/notify"
	"jobharvest-engine/internal/oracle"
	"jobharvest-engine/internal/pipeline"
	"jobharvest-engine/internal/scheduler"
	"jobharvest-engine/internal/secrets"
	"jobharvest-engine/internal/source"
	"jobharvest-engine/internal/throttle"
)

func main() {
	var (
		dataDir  = flag.String("data", "", "data directory (default $JOBHARVEST_DATA_DIR or .)")
		cfgFlag  = flag.String("config", "", "config file (default <data>/config.yml, bootstrapped on first run)")
		once     = flag.Bool("once", false, "run a single harvest cycle and exit")
		force    = flag.Bool("force", false, "rescore jobs already in a terminal status")
		interval = flag.Duration("interval", time.Hour, "time between harvest cycles")
	)
	flag.Parse()

	_ = godotenv.Load()

	dir := *dataDir
	if dir == "" {
		dir = os.Getenv("JOBHARVEST_DATA_DIR")
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatal(err)
	}

	// One engine per data dir; a second instance would race the ledger.
	lock := flock.New(filepath.Join(dir, "engine.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		log.Fatalf("lock data dir: %v", err)
	}
	if !locked {
		log.Fatalf("another engine instance holds %s", dir)
	}
	defer lock.Unlock()

	cfgPath := *cfgFlag
	if cfgPath == "" {
		cfgPath, err = config.EnsureUserConfig(dir, filepath.Join("config", "config.yml"))
		if err != nil {
			log.Fatalf("config bootstrap: %v", err)
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load (%s): %v", cfgPath, err)
	}
	cfg, v := config.NormalizeAndValidate(cfg)
	for _, w := range v.Warnings {
		log.Printf("[config] warning: %s", w)
	}
	if len(v.Errors) > 0 {
		for _, e := range v.Errors {
			log.Printf("[config] error: %s", e)
		}
		os.Exit(1)
	}

	led, err := ledger.Open(filepath.Join(dir, "jobharvest.db"))
	if err != nil {
		log.Fatalf("ledger: %v", err)
	}
	defer led.Close()

	p, err := buildPipeline(cfg, led, *force)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run := func(ctx context.Context) error {
		_, err := p.Run(ctx)
		return err
	}

	if *once {
		if err := run(ctx); err != nil && ctx.Err() == nil {
			log.Fatal(err)
		}
		return
	}
	scheduler.Every(ctx, *interval, "harvest", run)
}

func buildPipeline(cfg config.Config, led *ledger.Ledger, force bool) (*pipeline.Pipeline, error) {
	tg := throttle.NewGate(throttleConfig(cfg))

	scorer, err := buildScorer(cfg)
	if err != nil {
		return nil, err
	}

	profile := ""
	if cfg.Scoring.ProfilePath != "" {
		b, err := os.ReadFile(cfg.Scoring.ProfilePath)
		if err != nil {
			return nil, err
		}
		profile = string(b)
	}

	srcs, err := buildSources(cfg)
	if err != nil {
		return nil, err
	}

	sinks := []notify.Sink{notify.LogSink{}}
	if cfg.Notify.Telegram.Enabled {
		token, err := secrets.GetTelegramToken()
		if err != nil {
			return nil, err
		}
		ts, err := notify.NewTelegramSink(token, cfg.Notify.Telegram.ChatID, cfg.Notify.Telegram.MinScore)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, ts)
	}

	return &pipeline.Pipeline{
		Sources: srcs,
		Fetcher: fetch.New(tg, time.Duration(cfg.Fetch.TimeoutSeconds)*time.Second),
		Filter:  content.NewFilter(cfg.Filters.FreshnessDays, cfg.Filters.MinBodyLen),
		Deduper: canonical.NewDeduper(cfg.Dedup.TitleThreshold, cfg.Dedup.CompanyThreshold),
		Gate:    gate.New(scorer, profile, cfg),
		Ledger:  led,
		Sinks:   sinks,
		Workers: cfg.Fetch.Workers,
		Retry: pipeline.RetryPolicy{
			MaxAttempts: cfg.Fetch.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Fetch.RetryBaseMs) * time.Millisecond,
		},
		SeedWindow:    time.Duration(cfg.Dedup.SeedDays) * 24 * time.Hour,
		SourceTimeout: time.Duration(cfg.Fetch.SourceTimeoutSeconds) * time.Second,
		SnippetCap:    cfg.Scoring.SnippetCap,
		ForceRescore:  force,
	}, nil
}

func buildScorer(cfg config.Config) (oracle.Scorer, error) {
	if cfg.Scoring.Mode == "remote" {
		key, err := secrets.GetOracleAPIKey()
		if err != nil {
			return nil, err
		}
		return oracle.NewRemoteScorer(
			cfg.Scoring.Remote.BaseURL, key, cfg.Scoring.Remote.Model,
			time.Duration(cfg.Scoring.TimeoutSeconds)*time.Second,
		), nil
	}
	return oracle.LocalScorer{Cfg: cfg}, nil
}

func buildSources(cfg config.Config) ([]source.Source, error) {
	var srcs []source.Source

	if cfg.Search.Enabled {
		key, err := secrets.GetSearchAPIKey()
		if err != nil {
			return nil, err
		}
		srcs = append(srcs, source.NewSearchSource(source.SearchConfig{
			Endpoint:   cfg.Search.Endpoint,
			CX:         cfg.Search.CX,
			APIKey:     key,
			Boards:     cfg.Search.Boards,
			Roles:      cfg.Search.Roles,
			Locations:  cfg.Search.Locations,
			Exclusions: cfg.Search.Exclusions,
			Pages:      cfg.Search.Pages,
		}))
	}

	if cfg.Email.Enabled {
		account := cfg.Email.KeyringAccount
		if account == "" {
			account = secrets.IMAPAccount(cfg.Email.Username, cfg.Email.IMAPHost)
		}
		password, err := secrets.GetIMAPPassword(account)
		if err != nil {
			return nil, err
		}
		port := cfg.Email.IMAPPort
		if port == 0 {
			port = 993
		}
		srcs = append(srcs, source.NewEmailSource(source.EmailConfig{
			Addr:        cfg.Email.IMAPHost + ":" + strconv.Itoa(port),
			Username:    cfg.Email.Username,
			Password:    password,
			Mailbox:     cfg.Email.Mailbox,
			SubjectAny:  cfg.Email.SubjectAny,
			MaxMessages: cfg.Email.MaxMessages,
			MarkSeen:    cfg.Email.MarkSeen,
			Boards:      cfg.Search.Boards,
		}))
	}
	return srcs, nil
}

func throttleConfig(cfg config.Config) throttle.Config {
	per := make(map[string]throttle.Rate, len(cfg.Throttle.Domains))
	for d, r := range cfg.Throttle.Domains {
		per[d] = throttle.Rate{ReqPerSec: r.ReqPerSec, Burst: r.Burst}
	}
	return throttle.Config{
		Default:     throttle.Rate{ReqPerSec: cfg.Throttle.ReqPerSec, Burst: cfg.Throttle.Burst},
		PerDomain:   per,
		TripAfter:   cfg.Throttle.TripAfter,
		Cooldown:    time.Duration(cfg.Throttle.CooldownSeconds) * time.Second,
		MaxCooldown: time.Duration(cfg.Throttle.MaxCooldownSeconds) * time.Second,
	}
}
