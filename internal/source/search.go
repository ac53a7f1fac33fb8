package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"jobharvest-engine/internal/domain"
)

// SearchConfig wires a Google-CSE-shaped JSON search endpoint as a lead
// source. Endpoint must accept q, cx, key, num, start and dateRestrict
// query params and return {"items":[{link,title,snippet}]}.
type SearchConfig struct {
	Endpoint   string
	CX         string
	APIKey     string
	Boards     []string
	Roles      []string
	Locations  []string
	Exclusions []string
	Pages      int // result pages per query, 10 items each
}

type SearchSource struct {
	cfg SearchConfig
	hc  *http.Client
}

func NewSearchSource(cfg SearchConfig) *SearchSource {
	if cfg.Pages <= 0 {
		cfg.Pages = 2
	}
	return &SearchSource{
		cfg: cfg,
		hc:  &http.Client{Timeout: 20 * time.Second},
	}
}

func (s *SearchSource) Name() string { return "search" }

type searchItem struct {
	Link    string `json:"link"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

type searchResponse struct {
	Items []searchItem `json:"items"`
}

// Discover runs the board x role query matrix and returns the deduplicated
// leads. Individual query failures are logged and skipped; a quota error
// aborts the remaining queries since they would all fail the same way.
func (s *SearchSource) Discover(ctx context.Context) ([]domain.Posting, error) {
	queries := BuildQueries(s.cfg.Boards, s.cfg.Roles, s.cfg.Locations, s.cfg.Exclusions)

	seen := make(map[string]struct{})
	var out []domain.Posting

	for _, q := range queries {
		for page := 0; page < s.cfg.Pages; page++ {
			items, err := s.page(ctx, q, 1+page*10)
			if err != nil {
				if ctx.Err() != nil {
					return out, ctx.Err()
				}
				log.Printf("[search] query %q page %d: %v", q, page+1, err)
				break
			}
			for _, it := range items {
				if it.Link == "" || IsJunkURL(it.Link) {
					continue
				}
				if _, dup := seen[it.Link]; dup {
					continue
				}
				seen[it.Link] = struct{}{}

				role, company := SplitTitle(it.Title)
				out = append(out, domain.Posting{
					SourceDomain: hostOf(it.Link),
					SourceID:     it.Link,
					URL:          it.Link,
					Title:        role,
					Company:      company,
					Snippet:      it.Snippet,
					DiscoveredAt: time.Now().UTC(),
				})
			}
			if len(items) < 10 {
				break // short page means no further results
			}
		}
	}
	log.Printf("[search] %d queries yielded %d unique leads", len(queries), len(out))
	return out, nil
}

func (s *SearchSource) page(ctx context.Context, query string, start int) ([]searchItem, error) {
	v := url.Values{}
	v.Set("q", query)
	v.Set("cx", s.cfg.CX)
	v.Set("key", s.cfg.APIKey)
	v.Set("num", "10")
	v.Set("start", strconv.Itoa(start))
	v.Set("dateRestrict", "w1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.Endpoint+"?"+v.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search endpoint status %d: %s", resp.StatusCode, string(body))
	}

	var sr searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return sr.Items, nil
}
