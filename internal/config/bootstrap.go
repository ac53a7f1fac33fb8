package config

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

// EnsureUserConfig makes sure a writable config exists in the data dir,
// seeding it from the packaged default on first run.
func EnsureUserConfig(dataDir string, defaultPath string) (string, error) {
	userPath := filepath.Join(dataDir, "config.yml")

	_, err := os.Stat(userPath)
	if err == nil {
		return userPath, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	src, err := os.Open(defaultPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// no packaged default around (e.g. installed binary); start
			// from built-in defaults
			if werr := os.WriteFile(userPath, []byte(defaultYAML), 0o644); werr != nil {
				return "", werr
			}
			return userPath, nil
		}
		return "", err
	}
	defer src.Close()

	dst, err := os.Create(userPath)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	return userPath, nil
}

const defaultYAML = `app:
  data_dir: .

search:
  enabled: false
  endpoint: https://www.googleapis.com/customsearch/v1
  roles: []
  locations: []
  exclusions: [Intern, Junior]

email:
  enabled: false
  imap_host: imap.gmail.com
  imap_port: 993
  mailbox: INBOX
  subject_any: [job alert, new jobs]

throttle:
  req_per_sec: 1.0
  burst: 2
  trip_after: 3
  cooldown_seconds: 30

filters:
  freshness_days: 7
  min_body_len: 300

dedup:
  title_threshold: 0.80
  company_threshold: 0.85

scoring:
  mode: local
  cutoff: 65
  fail_score: 40
  snippet_cap: 65
  title_rules: []
  keyword_rules: []
  penalties: []

notify:
  telegram:
    enabled: false
    min_score: 85
`
