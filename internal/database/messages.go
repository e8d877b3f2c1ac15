package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"clientreports/internal/models"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// MessageRow is the persistence shape of a message. Core code only sees models.Message.
type MessageRow struct {
	ID                 string           `db:"id"`
	Subject            string           `db:"subject"`
	From               string           `db:"from_addr"`
	To                 string           `db:"to_addr"`
	CC                 sql.NullString   `db:"cc"`
	BCC                sql.NullString   `db:"bcc"`
	Date               string           `db:"date"`
	Body               string           `db:"body"`
	Summary            string           `db:"summary"`
	Labels             pq.StringArray   `db:"labels"`
	Embedding          *pgvector.Vector `db:"embedding"`
	ProcessedForVector bool             `db:"processed_for_vector"`
}

// ToMessage maps a row into the typed model
func (r MessageRow) ToMessage() models.Message {
	msg := models.Message{
		ID:                 r.ID,
		Subject:            r.Subject,
		From:               r.From,
		To:                 r.To,
		Date:               r.Date,
		Body:               r.Body,
		Summary:            r.Summary,
		Labels:             []string(r.Labels),
		ProcessedForVector: r.ProcessedForVector,
	}
	if msg.Labels == nil {
		msg.Labels = []string{}
	}
	if r.CC.Valid {
		cc := r.CC.String
		msg.CC = &cc
	}
	if r.BCC.Valid {
		bcc := r.BCC.String
		msg.BCC = &bcc
	}
	if r.Embedding != nil {
		msg.Embedding = r.Embedding.Slice()
	}
	return msg
}

// MessageColumns returns the select list for messages. When the schema lacks cc/bcc
// the columns are projected as NULL so scanning still works. withEmbedding controls
// whether the (large) vector is fetched.
func MessageColumns(alias string, hasCCBCC, withEmbedding bool) string {
	p := ""
	if alias != "" {
		p = alias + "."
	}
	cols := []string{
		p + "id", p + "subject", p + "from_addr", p + "to_addr", p + "date",
		p + "body", p + "summary", p + "labels", p + "processed_for_vector",
	}
	if hasCCBCC {
		cols = append(cols, p+"cc", p+"bcc")
	} else {
		cols = append(cols, "NULL::text AS cc", "NULL::text AS bcc")
	}
	if withEmbedding {
		cols = append(cols, p+"embedding::text AS embedding")
	} else {
		cols = append(cols, "NULL::text AS embedding")
	}
	return strings.Join(cols, ", ")
}

// HasCCBCCColumns reports whether the messages table carries the cc and bcc columns.
// Databases created before 003_add_cc_bcc lack them.
func HasCCBCCColumns(ctx context.Context, wc *WriteClient) (bool, error) {
	var count int
	err := wc.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM information_schema.columns
		WHERE table_name = 'messages' AND column_name IN ('cc', 'bcc')`)
	if err != nil {
		return false, err
	}
	return count == 2, nil
}

// ParticipantPatterns turns domains and addresses into ILIKE patterns
func ParticipantPatterns(domains, addresses []string) []string {
	var patterns []string
	for _, d := range domains {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "@")
		if d != "" {
			patterns = append(patterns, "%@"+d+"%", "%@%."+d+"%")
		}
	}
	for _, a := range addresses {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			patterns = append(patterns, "%"+a+"%")
		}
	}
	return patterns
}

// ParticipantClause matches from/to (and cc/bcc when present) against the pattern array at $n
func ParticipantClause(n int, hasCCBCC bool) string {
	cols := []string{"from_addr", "to_addr"}
	if hasCCBCC {
		cols = append(cols, "cc", "bcc")
	}
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = fmt.Sprintf("%s ILIKE ANY($%d)", col, n)
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}
