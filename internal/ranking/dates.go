package ranking

import (
	"strings"
	"time"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/models"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon Jan 2 15:04:05 MST 2006",
	time.UnixDate,
	"2006-01",
	"2006",
}

// ParseTimestamp parses the date formats found in indexed metadata. Times without a
// zone are taken as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// dateFields lists, per collection, the metadata keys holding a record's date.
var dateFields = map[string][]string{
	config.CollectionEmail:    {"date"},
	config.CollectionWeb:      {"captured_at", "date"},
	config.CollectionDocument: {"publication_date", "date"},
}

// DateFields returns the metadata keys consulted for a collection's record date.
func DateFields(collection string) []string {
	if f, ok := dateFields[collection]; ok {
		return f
	}
	return []string{"date"}
}

// TimestampFor returns the record timestamp, falling back to the collection's date
// metadata field. It returns nil when no parseable date exists.
func TimestampFor(rec *models.Record) *time.Time {
	if rec.Timestamp != nil {
		return rec.Timestamp
	}
	for _, key := range DateFields(rec.Collection) {
		if t, ok := ParseTimestamp(rec.MetadataString(key)); ok {
			return &t
		}
	}
	return nil
}
