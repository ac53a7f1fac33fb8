package content

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Extract is the usable part of a fetched job page.
type Extract struct {
	Title    string
	Body     string
	PostedAt time.Time // zero when no structured markup carried a date
}

// ATS boards keep the description in predictable containers; the generic
// fallback strips chrome and takes what text is left.
var bodySelectors = []struct {
	hostPart string
	selector string
}{
	{"greenhouse.io", "#content, #main"},
	{"lever.co", ".content-wrapper, .posting-page"},
	{"workable.com", "main"},
	{"bamboohr.com", ".ResAts__description, main"},
}

// Parse pulls title, body text and the structured posting date out of a
// job page. It never fails outright; an empty body is the quality
// filter's problem, not the parser's.
func Parse(pageURL, html string) Extract {
	var ex Extract

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ex
	}

	ex.Title = cleanText(doc.Find("h1").First().Text())
	ex.PostedAt = datePosted(doc)

	lu := strings.ToLower(pageURL)
	if strings.Contains(lu, "ashbyhq.com") {
		if body := ashbyDescription(doc); body != "" {
			ex.Body = body
			return ex
		}
	}
	for _, bs := range bodySelectors {
		if !strings.Contains(lu, bs.hostPart) {
			continue
		}
		if sel := doc.Find(bs.selector).First(); sel.Length() > 0 {
			if body := cleanText(sel.Text()); body != "" {
				ex.Body = body
				return ex
			}
		}
	}

	ex.Body = genericBody(doc)
	return ex
}

func genericBody(doc *goquery.Document) string {
	body := doc.Find("body").Clone()
	if body.Length() == 0 {
		return cleanText(doc.Text())
	}
	body.Find("script, style, noscript, svg, nav, header, footer, button, iframe").Remove()
	return cleanText(body.Text())
}

// ashby renders the posting out of a JSON blob embedded in the page
func ashbyDescription(doc *goquery.Document) string {
	raw := doc.Find("script#__NEXT_DATA__").First().Text()
	if raw == "" {
		return ""
	}
	var payload struct {
		Props struct {
			PageProps struct {
				JobPosting struct {
					Description     string `json:"description"`
					DescriptionHTML string `json:"descriptionHtml"`
				} `json:"jobPosting"`
			} `json:"pageProps"`
		} `json:"props"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return ""
	}
	desc := payload.Props.PageProps.JobPosting.Description
	if desc == "" {
		desc = payload.Props.PageProps.JobPosting.DescriptionHTML
	}
	if strings.Contains(desc, "<") {
		if inner, err := goquery.NewDocumentFromReader(strings.NewReader(desc)); err == nil {
			desc = inner.Text()
		}
	}
	return cleanText(desc)
}

// datePosted walks every JSON-LD block looking for a JobPosting
// datePosted field, anywhere in the graph.
func datePosted(doc *goquery.Document) time.Time {
	var found time.Time
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data any
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return true
		}
		if raw := findDatePosted(data); raw != "" {
			if t, ok := parseDate(raw); ok {
				found = t
				return false
			}
		}
		return true
	})
	return found
}

func findDatePosted(v any) string {
	switch node := v.(type) {
	case map[string]any:
		if t, _ := node["@type"].(string); t == "JobPosting" {
			if d, _ := node["datePosted"].(string); d != "" {
				return d
			}
		}
		for _, child := range node {
			if d := findDatePosted(child); d != "" {
				return d
			}
		}
	case []any:
		for _, item := range node {
			if d := findDatePosted(item); d != "" {
				return d
			}
		}
	}
	return ""
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	// "2026-08-12T09:00:00Z" with date-only interest
	if idx := strings.IndexByte(raw, 'T'); idx > 0 {
		if t, err := time.Parse("2006-01-02", raw[:idx]); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func cleanText(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimSpace(s)
}
