// Package metadata scores stored record metadata against structured field queries.
package metadata

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/ranking"
)

// Aggregates for combining per-field scores.
const (
	AggregateMax  = "max"
	AggregateMean = "mean"
)

// Options controls matching. Without Fuzzy, a field matches only on exact
// (case-normalized) equality or one of the URL/date rules.
type Options struct {
	Fuzzy     bool
	Threshold float64
	Aggregate string
}

// FieldScore is the score of one queried field.
type FieldScore struct {
	Field string
	Score float64
}

// Match is the outcome of matching one record.
type Match struct {
	Score  float64
	Fields []FieldScore
}

// Matcher matches metadata queries against records.
type Matcher struct {
	opts Options
}

// NewMatcher returns a Matcher. An empty Aggregate means max.
func NewMatcher(opts Options) *Matcher {
	if opts.Aggregate == "" {
		opts.Aggregate = AggregateMax
	}
	return &Matcher{opts: opts}
}

// fieldAliases maps a queried field to the stored keys tried after the field itself.
var fieldAliases = map[string]map[string][]string{
	config.CollectionEmail: {
		"title":      {"subject"},
		"author":     {"from", "from_"},
		"from":       {"from_"},
		"source_url": {"url"},
	},
	config.CollectionDocument: {
		"date":             {"publication_date"},
		"publication_date": {"date"},
		"subject":          {"title"},
	},
	config.CollectionWeb: {
		"url":  {"source_url"},
		"date": {"captured_at"},
	},
}

// Match scores rec against every field in query. The record matches when its best
// field is accepted; the returned score is the configured aggregate over all fields.
func (m *Matcher) Match(query map[string]string, rec *models.Record) (Match, bool) {
	if len(query) == 0 {
		return Match{}, false
	}
	fields := make([]string, 0, len(query))
	for f := range query {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	out := Match{Fields: make([]FieldScore, 0, len(fields))}
	best, sum := 0.0, 0.0
	for _, f := range fields {
		s := m.FieldScore(f, query[f], rec)
		out.Fields = append(out.Fields, FieldScore{Field: f, Score: s})
		best = max(best, s)
		sum += s
	}
	if !m.accepted(best) {
		return out, false
	}
	if m.opts.Aggregate == AggregateMean {
		out.Score = sum / float64(len(fields))
	} else {
		out.Score = best
	}
	return out, true
}

func (m *Matcher) accepted(score float64) bool {
	if !m.opts.Fuzzy {
		return score >= 1.0
	}
	return score > 0 && score >= m.opts.Threshold
}

// FieldScore returns the score of one field: 1.0 for an exact or rule-based match,
// a similarity in [0,1] when fuzzy, and 0 otherwise.
func (m *Matcher) FieldScore(field, want string, rec *models.Record) float64 {
	field = strings.ToLower(field)
	switch field {
	case "doc_id":
		return m.stringScore(want, rec.DocID)
	case "id":
		return m.stringScore(want, rec.ID)
	case "domain":
		return m.domainScore(want, rec)
	}

	stored := storedValue(rec, field)
	if stored == "" {
		return 0
	}
	switch field {
	case "source_url", "url":
		return m.urlScore(want, stored)
	case "date", "publication_date", "captured_at":
		return m.dateScore(want, stored)
	case "from", "author":
		if rec.Collection == config.CollectionEmail {
			return m.stringScore(normalizeAddress(want), normalizeAddress(stored))
		}
	}
	return m.stringScore(want, stored)
}

func storedValue(rec *models.Record, field string) string {
	if v := rec.MetadataString(field); v != "" {
		return v
	}
	for _, alias := range fieldAliases[rec.Collection][field] {
		if v := rec.MetadataString(alias); v != "" {
			return v
		}
	}
	return ""
}

func (m *Matcher) stringScore(want, stored string) float64 {
	if normalize(want) == normalize(stored) {
		return 1.0
	}
	if !m.opts.Fuzzy {
		return 0
	}
	return Similarity(want, stored)
}

// urlScore accepts exact matches (ignoring scheme, "www." and a trailing slash),
// path-suffix matches, and same-host matches whose path ends with the queried path.
func (m *Matcher) urlScore(want, stored string) float64 {
	w, s := normalizeURL(want), normalizeURL(stored)
	if w == "" {
		return 0
	}
	if w == s {
		return 1.0
	}
	if hasHost(want) {
		wu, err := url.Parse(withScheme(want))
		su, serr := url.Parse(withScheme(stored))
		if err == nil && serr == nil && wu.Host != "" && hostOf(su) == hostOf(wu) {
			wp := strings.TrimSuffix(wu.Path, "/")
			if wp != "" && strings.HasSuffix(strings.TrimSuffix(su.Path, "/"), wp) {
				return 1.0
			}
		}
	} else if isPathSuffix(s, w) {
		return 1.0
	}
	if !m.opts.Fuzzy {
		return 0
	}
	return EditSimilarity(w, s)
}

// hasHost reports whether a source_url query names a host, either with a scheme
// or as a dotted first segment followed by a path ("example.com/page").
func hasHost(q string) bool {
	q = strings.TrimSpace(q)
	if strings.Contains(q, "://") {
		return true
	}
	if strings.HasPrefix(q, "/") {
		return false
	}
	i := strings.Index(q, "/")
	return i > 0 && strings.Contains(q[:i], ".")
}

func isPathSuffix(stored, want string) bool {
	if !strings.HasSuffix(stored, want) || len(stored) == len(want) {
		return false
	}
	if strings.HasPrefix(want, "/") || stored[len(stored)-len(want)-1] == '/' {
		return true
	}
	// File-name fragments need some length to avoid matching every URL.
	return len([]rune(want)) >= 4
}

func (m *Matcher) domainScore(want string, rec *models.Record) float64 {
	stored := rec.MetadataString("domain")
	if stored == "" {
		for _, key := range []string{"source_url", "url"} {
			if u, err := url.Parse(withScheme(rec.MetadataString(key))); err == nil && u.Host != "" {
				stored = u.Host
				break
			}
		}
	}
	w, s := normalizeDomain(want), normalizeDomain(stored)
	if w == "" || s == "" {
		return 0
	}
	if w == s {
		return 1.0
	}
	if !m.opts.Fuzzy {
		return 0
	}
	return EditSimilarity(w, s)
}

// dateScore handles "X to Y" ranges, prefix matches such as "2023-05" against
// "2023-05-01", and equal instants in different formats.
func (m *Matcher) dateScore(want, stored string) float64 {
	if i := strings.Index(strings.ToLower(want), " to "); i > 0 {
		from, to := want[:i], want[i+len(" to "):]
		st, ok := ranking.ParseTimestamp(stored)
		if !ok {
			return 0
		}
		start, ok1 := ranking.ParseTimestamp(from)
		end, ok2 := ranking.ParseTimestamp(to)
		if !ok1 || !ok2 {
			return 0
		}
		end = periodEnd(strings.TrimSpace(to), end)
		if !st.Before(start) && !st.After(end) {
			return 1.0
		}
		return 0
	}

	w, s := normalize(want), normalize(stored)
	if w == s || (isDatePrefix(w) && strings.HasPrefix(s, w)) {
		return 1.0
	}
	wt, ok1 := ranking.ParseTimestamp(want)
	st, ok2 := ranking.ParseTimestamp(stored)
	if ok1 && ok2 && wt.Equal(st) {
		return 1.0
	}
	if !m.opts.Fuzzy {
		return 0
	}
	return EditSimilarity(w, s)
}

// isDatePrefix accepts year ("2023") and year-month ("2023-05") prefixes.
func isDatePrefix(w string) bool {
	switch len(w) {
	case 4:
		_, err := strconv.Atoi(w)
		return err == nil
	case 7:
		_, err := strconv.Atoi(w[:4])
		_, err2 := strconv.Atoi(w[5:])
		return err == nil && err2 == nil && w[4] == '-'
	}
	return false
}

// periodEnd widens a date given at year, month or day precision to the last
// instant of that period.
func periodEnd(raw string, t time.Time) time.Time {
	switch len(raw) {
	case 4:
		return t.AddDate(1, 0, 0).Add(-time.Nanosecond)
	case 7:
		return t.AddDate(0, 1, 0).Add(-time.Nanosecond)
	case 10:
		return t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t
}

func normalizeAddress(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " at ", "@")
}

func normalizeURL(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	return strings.TrimSuffix(s, "/")
}

func normalizeDomain(s string) string {
	s = normalizeURL(s)
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return s
}

func withScheme(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "://") {
		return s
	}
	return "http://" + s
}

func hostOf(u *url.URL) string {
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
