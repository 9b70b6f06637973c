package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

const headlineHashLength = 16

// UsedTopic is one row of the content-deduplication ledger. Rows are
// append-only; a retention sweep deletes old ones.
type UsedTopic struct {
	ID           string         `json:"id"`
	WorkflowID   string         `json:"workflow_id"   validate:"required"`
	Headline     string         `json:"headline"      validate:"required"`
	HeadlineHash string         `json:"headline_hash"`
	UsedAt       time.Time      `json:"used_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// NormalizeHeadline lowercases and trims a headline so that whitespace and
// case variants of the same topic collide on purpose.
func NormalizeHeadline(headline string) string {
	return strings.ToLower(strings.TrimSpace(headline))
}

// HeadlineHash returns the first 16 hex characters of the sha256 of the
// normalized headline.
func HeadlineHash(headline string) string {
	sum := sha256.Sum256([]byte(NormalizeHeadline(headline)))

	return hex.EncodeToString(sum[:])[:headlineHashLength]
}
