package source

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"jobharvest-engine/internal/domain"
)

// EmailConfig wires a job-alert mailbox as a lead source.
type EmailConfig struct {
	Addr        string // host:port
	Username    string
	Password    string
	Mailbox     string
	SubjectAny  []string // keep only messages whose subject contains one of these (empty keeps all)
	MaxMessages int
	MarkSeen    bool
	Boards      []string // only links on these hosts become leads
}

type EmailSource struct {
	cfg EmailConfig
}

func NewEmailSource(cfg EmailConfig) *EmailSource {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 50
	}
	if len(cfg.Boards) == 0 {
		cfg.Boards = DefaultBoards
	}
	return &EmailSource{cfg: cfg}
}

func (s *EmailSource) Name() string { return "email" }

var linkPattern = regexp.MustCompile(`https?://[^\s"'<>)\]]+`)

// Discover pulls unseen alert messages and extracts board job links.
// Fetches use BODY.PEEK so nothing is marked \Seen unless configured.
func (s *EmailSource) Discover(ctx context.Context) ([]domain.Posting, error) {
	c, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer logoutAndClose(c)

	if _, err := c.Select(s.cfg.Mailbox, &imap.SelectOptions{ReadOnly: !s.cfg.MarkSeen}).Wait(); err != nil {
		return nil, fmt.Errorf("imap select %s: %w", s.cfg.Mailbox, err)
	}

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
		Since:   time.Now().AddDate(0, -3, 0),
	}
	searchData, err := c.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap uid search: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	// Newest first.
	for i, j := 0, len(uids)-1; i < j; i, j = i+1, j-1 {
		uids[i], uids[j] = uids[j], uids[i]
	}
	if len(uids) > s.cfg.MaxMessages {
		uids = uids[:s.cfg.MaxMessages]
	}

	bodyAll := &imap.FetchItemBodySection{Specifier: imap.PartSpecifierNone, Peek: true}
	fetchCmd := c.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{bodyAll},
	})
	defer func() { _ = fetchCmd.Close() }()

	seen := make(map[string]struct{})
	var out []domain.Posting
	var matched []imap.UID

	for {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			return out, fmt.Errorf("imap fetch collect: %w", err)
		}

		subject := ""
		sentAt := time.Now().UTC()
		if buf.Envelope != nil {
			subject = buf.Envelope.Subject
			if !buf.Envelope.Date.IsZero() {
				sentAt = buf.Envelope.Date
			}
		}
		if !s.subjectMatches(subject) {
			continue
		}
		matched = append(matched, buf.UID)

		var body []byte
		if b := buf.FindBodySection(bodyAll); b != nil {
			body = b
		}
		for _, link := range linkPattern.FindAllString(string(body), -1) {
			link = strings.TrimRight(link, ".,;")
			if IsJunkURL(link) || !s.onBoard(link) {
				continue
			}
			if _, dup := seen[link]; dup {
				continue
			}
			seen[link] = struct{}{}
			out = append(out, domain.Posting{
				SourceDomain: hostOf(link),
				SourceID:     link,
				URL:          link,
				DiscoveredAt: sentAt,
			})
		}
	}
	if err := fetchCmd.Close(); err != nil {
		return out, fmt.Errorf("imap fetch close: %w", err)
	}

	if s.cfg.MarkSeen && len(matched) > 0 {
		storeFlags := &imap.StoreFlags{
			Op:     imap.StoreFlagsAdd,
			Silent: true,
			Flags:  []imap.Flag{imap.FlagSeen},
		}
		if err := c.Store(imap.UIDSetNum(matched...), storeFlags, nil).Close(); err != nil {
			log.Printf("[email] mark seen: %v", err)
		}
	}

	log.Printf("[email] %d unseen messages yielded %d board links", len(uids), len(out))
	return out, nil
}

func (s *EmailSource) dial(ctx context.Context) (*imapclient.Client, error) {
	if s.cfg.Addr == "" {
		return nil, errors.New("imap addr is required")
	}
	if s.cfg.Username == "" || s.cfg.Password == "" {
		return nil, errors.New("imap username/password is required")
	}

	host := s.cfg.Addr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	c, err := imapclient.DialTLS(s.cfg.Addr, &imapclient.Options{
		TLSConfig: &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host},
	})
	if err != nil {
		return nil, fmt.Errorf("imap dial tls: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()

	if err := c.Login(s.cfg.Username, s.cfg.Password).Wait(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	return c, nil
}

func (s *EmailSource) subjectMatches(subject string) bool {
	if len(s.cfg.SubjectAny) == 0 {
		return true
	}
	ls := strings.ToLower(subject)
	for _, want := range s.cfg.SubjectAny {
		if strings.Contains(ls, strings.ToLower(want)) {
			return true
		}
	}
	return false
}

func (s *EmailSource) onBoard(link string) bool {
	host := hostOf(link)
	for _, b := range s.cfg.Boards {
		if host == b || strings.HasSuffix(host, "."+b) {
			return true
		}
	}
	return false
}

func logoutAndClose(c *imapclient.Client) {
	if err := c.Logout().Wait(); err != nil {
		log.Printf("[email] imap logout: %v", err)
	}
	_ = c.Close()
}
