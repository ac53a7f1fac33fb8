// Package notify delivers admitted jobs to reporting sinks. Sinks are
// best-effort: a delivery failure never affects the ledger.
package notify

import (
	"context"
	"log"

	"jobharvest-engine/internal/domain"
)

type Sink interface {
	Name() string
	Deliver(ctx context.Context, job domain.AdmittedJob) error
}

// LogSink writes admitted jobs to the process log. Always on.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Deliver(_ context.Context, job domain.AdmittedJob) error {
	log.Printf("[admit] %d %s @ %s %s", job.Score, job.Title, job.Company, job.CanonicalURL)
	return nil
}
