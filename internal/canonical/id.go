package canonical

import (
	"crypto/sha256"
	"encoding/hex"
)

// JobID derives the stable identity of a job from its normalized title,
// normalized company and canonical URL host+path. A pure function: the
// same posting fetched twice, from any source, hashes to the same id.
func JobID(title, company, canonicalURL string) string {
	h := sha256.New()
	h.Write([]byte(Normalize(title)))
	h.Write([]byte{0})
	h.Write([]byte(Normalize(company)))
	h.Write([]byte{0})
	h.Write([]byte(DedupKey(canonicalURL)))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// ProvisionalID identifies a raw posting by URL alone, before the body is
// fetched and the title/company are trusted. Used for cheap
// already-processed checks against the ledger; reconciled against the
// canonical JobID once the posting is fully normalized.
func ProvisionalID(rawURL string) string {
	sum := sha256.Sum256([]byte("url:" + DedupKey(CanonicalizeURL(rawURL))))
	return hex.EncodeToString(sum[:])[:32]
}
