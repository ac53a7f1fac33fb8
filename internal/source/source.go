// Package source holds the lead gateways: each Source discovers raw job
// postings from one upstream (a search API, a job-alert mailbox) without
// fetching or judging them.
package source

import (
	"context"

	"jobharvest-engine/internal/domain"
)

type Source interface {
	Name() string
	Discover(ctx context.Context) ([]domain.Posting, error)
}
