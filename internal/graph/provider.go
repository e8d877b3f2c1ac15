package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"clientreports/internal/apperrors"
	"clientreports/internal/config"
	"clientreports/internal/emails"
	"clientreports/internal/models"
	"clientreports/internal/sanitizer"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const (
	maxPageSize    = 1000
	selectFields   = "id,internetMessageId,subject,from,toRecipients,ccRecipients,bccRecipients,receivedDateTime,body,categories"
	maxErrorDetail = 512
)

// MessageStore persists fetched messages
type MessageStore interface {
	InsertIfAbsent(ctx context.Context, msg models.Message) (bool, error)
}

// Provider reads one mailbox through Microsoft Graph
type Provider struct {
	baseURL    string
	mailbox    string
	identity   IdentityProvider
	store      MessageStore
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewProvider creates a Graph mail provider for cfg.GraphMailbox. store may be nil,
// in which case nothing is persisted and NewIDs stays empty.
func NewProvider(cfg *config.Config, identity IdentityProvider, store MessageStore, logger zerolog.Logger) *Provider {
	timeout := time.Duration(cfg.GraphTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Provider{
		baseURL:    strings.TrimRight(cfg.GraphBaseURL, "/"),
		mailbox:    cfg.GraphMailbox,
		identity:   identity,
		store:      store,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "graph_provider").Logger(),
	}
}

// Mailbox returns the address whose mailbox is read
func (p *Provider) Mailbox() string {
	return p.mailbox
}

type emailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type itemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphMessage struct {
	ID                string      `json:"id"`
	InternetMessageID string      `json:"internetMessageId"`
	Subject           string      `json:"subject"`
	From              *recipient  `json:"from"`
	ToRecipients      []recipient `json:"toRecipients"`
	CcRecipients      []recipient `json:"ccRecipients"`
	BccRecipients     []recipient `json:"bccRecipients"`
	ReceivedDateTime  string      `json:"receivedDateTime"`
	Body              itemBody    `json:"body"`
	Categories        []string    `json:"categories"`
}

type messagesPage struct {
	Value []graphMessage `json:"value"`
}

// FetchRange lists the mailbox's messages in the date range, keeps the ones that
// involve the client, stores any not seen before and reports their ids as new.
func (p *Provider) FetchRange(ctx context.Context, dateRange models.DateRange, domains, addresses []string, limit int) (emails.RemoteResult, error) {
	if err := dateRange.Validate(); err != nil {
		return emails.RemoteResult{}, err
	}

	page, err := p.listMessages(ctx, dateRange, limit)
	if err != nil {
		return emails.RemoteResult{}, err
	}

	matcher := emails.NewClientMatcher(domains, addresses)
	result := emails.RemoteResult{Messages: []models.Message{}, NewIDs: []string{}}
	for _, gm := range page.Value {
		msg := toMessage(gm)
		if msg.ID == "" {
			continue
		}
		rel := emails.ClassifyWith(msg, matcher, p.mailbox)
		if !rel.Any() {
			continue
		}
		msg.Source = emails.SourceFor(msg, rel, p.mailbox)
		result.Messages = append(result.Messages, msg)

		if p.store == nil {
			continue
		}
		inserted, err := p.store.InsertIfAbsent(ctx, msg)
		if err != nil {
			p.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("Failed to store fetched message")
			continue
		}
		if inserted {
			result.NewIDs = append(result.NewIDs, msg.ID)
		}
	}

	p.logger.Info().
		Int("fetched", len(page.Value)).
		Int("relevant", len(result.Messages)).
		Int("new", len(result.NewIDs)).
		Msg("Fetched messages from Graph")
	return result, nil
}

func (p *Provider) listMessages(ctx context.Context, dateRange models.DateRange, limit int) (*messagesPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.messagesURL(dateRange, limit), nil)
	if err != nil {
		return nil, apperrors.Provider("build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", `outlook.body-content-type="html"`)

	client := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, p.httpClient), TokenSource(ctx, p.identity))
	resp, err := client.Do(req)
	if err != nil {
		var tokenErr *apperrors.Error
		if errors.As(err, &tokenErr) {
			return nil, tokenErr
		}
		return nil, apperrors.Provider("list messages", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorDetail))
		return nil, apperrors.Provider("list messages",
			fmt.Errorf("graph returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))))
	}

	var page messagesPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, apperrors.Provider("decode messages", err)
	}
	return &page, nil
}

func (p *Provider) messagesURL(dateRange models.DateRange, limit int) string {
	if limit <= 0 {
		limit = emails.DefaultMaxResults
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	start, end := dateRange.SQLBounds()

	q := url.Values{}
	q.Set("$filter", fmt.Sprintf("receivedDateTime ge %s and receivedDateTime le %s", start, end))
	q.Set("$top", fmt.Sprintf("%d", limit))
	q.Set("$orderby", "receivedDateTime desc")
	q.Set("$select", selectFields)

	query := strings.ReplaceAll(q.Encode(), "+", "%20")
	return fmt.Sprintf("%s/users/%s/messages?%s", p.baseURL, url.PathEscape(p.mailbox), query)
}

// toMessage flattens a Graph message into the canonical shape. The RFC 822
// Message-ID is preferred as id so webhook and Graph copies of a mail coincide.
func toMessage(gm graphMessage) models.Message {
	id := strings.Trim(strings.TrimSpace(gm.InternetMessageID), "<>")
	if id == "" {
		id = gm.ID
	}

	body := gm.Body.Content
	if strings.EqualFold(gm.Body.ContentType, "html") {
		body = sanitizer.StripHTML(body)
	}

	msg := models.Message{
		ID:      id,
		Subject: gm.Subject,
		To:      joinRecipients(gm.ToRecipients),
		Date:    models.NormalizeDate(gm.ReceivedDateTime),
		Body:    strings.TrimSpace(body),
		Labels:  gm.Categories,
	}
	if gm.From != nil {
		msg.From = formatAddress(gm.From.EmailAddress)
	}
	if cc := joinRecipients(gm.CcRecipients); cc != "" {
		msg.CC = &cc
	}
	if bcc := joinRecipients(gm.BccRecipients); bcc != "" {
		msg.BCC = &bcc
	}
	if msg.Labels == nil {
		msg.Labels = []string{}
	}
	return msg
}

func joinRecipients(rs []recipient) string {
	parts := make([]string, 0, len(rs))
	for _, r := range rs {
		if s := formatAddress(r.EmailAddress); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

func formatAddress(a emailAddress) string {
	addr := strings.TrimSpace(a.Address)
	name := strings.TrimSpace(a.Name)
	switch {
	case addr == "":
		return ""
	case name == "" || strings.EqualFold(name, addr):
		return addr
	default:
		return fmt.Sprintf("%s <%s>", name, addr)
	}
}
