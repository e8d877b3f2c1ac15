package models

import (
	"strings"
	"time"

	"clientreports/internal/apperrors"
)

// MessageSource tags who a message belongs to relative to the current query.
// It is computed at query time and never persisted.
type MessageSource string

const (
	SourceUser   MessageSource = "user"
	SourceClient MessageSource = "client"
	SourceOther  MessageSource = "other"
)

// Message represents a single email
type Message struct {
	ID                 string        `db:"id" json:"id"`
	Subject            string        `db:"subject" json:"subject"`
	From               string        `db:"from_addr" json:"from"`
	To                 string        `db:"to_addr" json:"to"`
	CC                 *string       `db:"cc" json:"cc,omitempty"`  // nil when the schema predates cc
	BCC                *string       `db:"bcc" json:"bcc,omitempty"` // nil when the schema predates bcc
	Date               string        `db:"date" json:"date"`        // ISO-8601, lexically comparable
	Body               string        `db:"body" json:"body"`
	Summary            string        `db:"summary" json:"summary"`
	Labels             []string      `db:"-" json:"labels"`
	Embedding          []float32     `db:"-" json:"-"`
	ProcessedForVector bool          `db:"processed_for_vector" json:"processed_for_vector"`
	Source             MessageSource `db:"-" json:"source,omitempty"`
}

// HasEmbedding reports whether the message carries a stored vector
func (m Message) HasEmbedding() bool {
	return m.ProcessedForVector && len(m.Embedding) > 0
}

// Participants returns the lower-cased from/to/cc/bcc text joined for matching
func (m Message) Participants() string {
	parts := []string{m.From, m.To}
	if m.CC != nil {
		parts = append(parts, *m.CC)
	}
	if m.BCC != nil {
		parts = append(parts, *m.BCC)
	}
	return strings.ToLower(strings.Join(parts, ","))
}

// DateRange bounds a query by message date (inclusive)
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// DateLayout is the canonical stored form; fixed width so string order equals time order
const DateLayout = "2006-01-02T15:04:05Z"

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// ParseDate parses an ISO-8601 date or timestamp
func ParseDate(value string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Validate checks both bounds parse and are ordered
func (r DateRange) Validate() error {
	start, ok := ParseDate(r.Start)
	if !ok {
		return apperrors.Validation("date range", "unparseable start date: "+r.Start)
	}
	end, ok := ParseDate(r.End)
	if !ok {
		return apperrors.Validation("date range", "unparseable end date: "+r.End)
	}
	if start.After(end) {
		return apperrors.Validation("date range", "start date is after end date")
	}
	return nil
}

// Bounds returns the parsed range; End is widened to the end of day for date-only values.
// Callers are expected to have run Validate.
func (r DateRange) Bounds() (time.Time, time.Time) {
	start, _ := ParseDate(r.Start)
	end, _ := ParseDate(r.End)
	if len(r.End) == len("2006-01-02") {
		end = end.Add(24*time.Hour - time.Nanosecond)
	}
	return start.UTC(), end.UTC()
}

// SQLBounds returns the range in the canonical stored form
func (r DateRange) SQLBounds() (string, string) {
	start, end := r.Bounds()
	return start.Format(DateLayout), end.Format(DateLayout)
}

// NormalizeDate rewrites a parseable date into DateLayout, leaving anything else untouched
func NormalizeDate(value string) string {
	if t, ok := ParseDate(value); ok {
		return t.UTC().Format(DateLayout)
	}
	return value
}
