// Package links holds the link record, the error taxonomy shared by every
// component, and the contract the durable store has to honour.
package links

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// MaxURLLength bounds OriginalURL in bytes.
const MaxURLLength = 2048

// Record is the authoritative code <-> URL mapping.
type Record struct {
	Code        string
	OriginalURL string
	URLHash     string
	CreatedAt   time.Time
	ClickCount  int64
	OwnerID     string
}

// DailyClicks is the click total of one code for one UTC day.
type DailyClicks struct {
	Day    time.Time
	Clicks int64
}

// Stats is what the stats endpoint and CLI report for a code.
type Stats struct {
	Record Record
	Daily  []DailyClicks
}

// HashURL returns the hex SHA-256 of url. The store enforces uniqueness on it
// and the cache keys the URL direction by it.
func HashURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// NewRecord builds a record ready for InsertUnique.
func NewRecord(code, url, ownerID string, now time.Time) Record {
	return Record{
		Code:        code,
		OriginalURL: url,
		URLHash:     HashURL(url),
		CreatedAt:   now.UTC(),
		OwnerID:     ownerID,
	}
}
