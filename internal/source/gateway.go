package source

import (
	"fmt"
	"net/url"
	"strings"
)

// SearchParams are the knobs for one board-scoped dork query.
type SearchParams struct {
	Board      string   // boards.greenhouse.io, jobs.lever.co, ...
	Role       string   // quoted verbatim in the query
	Locations  []string // OR-joined, quoted
	Exclusions []string // emitted as -Word
}

// DefaultBoards is the ATS allowlist queries are scoped to.
var DefaultBoards = []string{
	"boards.greenhouse.io",
	"jobs.ashbyhq.com",
	"jobs.lever.co",
	"apply.workable.com",
	"bamboohr.com",
}

// BuildSearchQuery renders one search query, e.g.
//
//	site:boards.greenhouse.io "Staff Engineer" ("Berlin" OR "Remote") -Intern -Junior
func BuildSearchQuery(p SearchParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "site:%s %q", p.Board, p.Role)

	if len(p.Locations) > 0 {
		quoted := make([]string, 0, len(p.Locations))
		for _, l := range p.Locations {
			if l = strings.TrimSpace(l); l != "" {
				quoted = append(quoted, fmt.Sprintf("%q", l))
			}
		}
		if len(quoted) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(quoted, " OR "))
		}
	}
	for _, x := range p.Exclusions {
		if x = strings.TrimSpace(strings.TrimPrefix(x, "-")); x != "" {
			fmt.Fprintf(&b, " -%s", x)
		}
	}
	return b.String()
}

// BuildQueries expands the role x board matrix into the full query list.
func BuildQueries(boards, roles, locations, exclusions []string) []string {
	if len(boards) == 0 {
		boards = DefaultBoards
	}
	out := make([]string, 0, len(boards)*len(roles))
	for _, board := range boards {
		for _, role := range roles {
			out = append(out, BuildSearchQuery(SearchParams{
				Board:      board,
				Role:       role,
				Locations:  locations,
				Exclusions: exclusions,
			}))
		}
	}
	return out
}

// IsJunkURL drops template and housekeeping links that job-alert emails
// and search results are littered with.
func IsJunkURL(u string) bool {
	lu := strings.ToLower(u)
	junks := []string{
		"unsubscribe",
		"preferences",
		"manage-preferences",
		"email-preferences",
		"privacy",
		"terms",
		"view-in-browser",
		"viewaswebpage",
		"tracking",
		"pixel",
		"beacon",
		"/alerts",
		"/settings",
		"/help",
		"/legal",
	}
	for _, j := range junks {
		if strings.Contains(lu, j) {
			return true
		}
	}
	return false
}

// SplitTitle splits an ATS result title like "Staff Engineer - Acme" or
// "Acme | Principal SRE" into role and company. Board titles usually put
// the job first, so the left side wins a tie.
func SplitTitle(title string) (role, company string) {
	title = strings.TrimSpace(title)
	for _, sep := range []string{" - ", " – ", " | ", " at "} {
		if i := strings.Index(title, sep); i > 0 {
			return strings.TrimSpace(title[:i]), strings.TrimSpace(title[i+len(sep):])
		}
	}
	return title, ""
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
