package models

import "time"

// Client is a named counterparty whose domains and addresses drive relevance filtering
type Client struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Domains   []string  `db:"-" json:"domains"`
	Emails    []string  `db:"-" json:"emails"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"` // nil for legacy/shared records
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ReportTemplate is a saved report layout consumed by the report composer
type ReportTemplate struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Content   string    `db:"content" json:"content"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ReportFeedback records a user's rating of a generated report
type ReportFeedback struct {
	ID        int64     `db:"id" json:"id"`
	ReportID  string    `db:"report_id" json:"report_id"`
	ClientID  *int64    `db:"client_id" json:"client_id,omitempty"`
	Rating    int       `db:"rating" json:"rating"`
	Comment   string    `db:"comment" json:"comment"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
