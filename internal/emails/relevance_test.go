package emails

import (
	"testing"

	"clientreports/internal/models"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestClassifyRelevance(t *testing.T) {
	domains := []string{"acme.com"}
	emails := []string{"carol@partner.org"}
	user := "me@co.com"

	tests := []struct {
		name     string
		msg      models.Message
		expected Relevance
	}{
		{
			name:     "client to user",
			msg:      models.Message{From: "Bob <bob@acme.com>", To: "me@co.com"},
			expected: Relevance{IsClientSender: true, IsClientToUser: true},
		},
		{
			name:     "user to client",
			msg:      models.Message{From: "me@co.com", To: "Bob <bob@acme.com>, other@x.io"},
			expected: Relevance{IsClientRecipient: true, IsUserToClient: true},
		},
		{
			name:     "client via explicit address",
			msg:      models.Message{From: "carol@partner.org", To: "someone@else.com"},
			expected: Relevance{IsClientSender: true},
		},
		{
			name:     "client subdomain",
			msg:      models.Message{From: "ops@eu.acme.com", To: "me@co.com"},
			expected: Relevance{IsClientSender: true, IsClientToUser: true},
		},
		{
			name:     "client only in cc",
			msg:      models.Message{From: "me@co.com", To: "x@y.com", CC: strPtr("bob@acme.com")},
			expected: Relevance{IsClientRecipient: true, IsUserToClient: true},
		},
		{
			name:     "client only in bcc",
			msg:      models.Message{From: "x@y.com", To: "z@y.com", BCC: strPtr("BOB@ACME.COM")},
			expected: Relevance{IsClientRecipient: true},
		},
		{
			name:     "unrelated",
			msg:      models.Message{From: "spam@other.com", To: "me@co.com"},
			expected: Relevance{},
		},
		{
			name:     "lookalike domain is not a client",
			msg:      models.Message{From: "x@notacme.com", To: "y@acme.com.evil.io"},
			expected: Relevance{},
		},
		{
			name:     "missing cc/bcc tolerated",
			msg:      models.Message{From: "me@co.com", To: "me@co.com"},
			expected: Relevance{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel := ClassifyRelevance(tt.msg, domains, emails, user)
			assert.Equal(t, tt.expected, rel)
			assert.Equal(t, rel.Any(), IsRelevant(tt.msg, domains, emails, user))
		})
	}
}

func TestSourceFor(t *testing.T) {
	user := "me@co.com"
	domains := []string{"acme.com"}

	fromClient := models.Message{From: "bob@acme.com", To: user}
	assert.Equal(t, models.SourceClient, SourceFor(fromClient, ClassifyRelevance(fromClient, domains, nil, user), user))

	fromUser := models.Message{From: "Me <ME@co.com>", To: "bob@acme.com"}
	assert.Equal(t, models.SourceUser, SourceFor(fromUser, ClassifyRelevance(fromUser, domains, nil, user), user))

	thirdParty := models.Message{From: "ann@vendor.io", To: "bob@acme.com"}
	assert.Equal(t, models.SourceOther, SourceFor(thirdParty, ClassifyRelevance(thirdParty, domains, nil, user), user))
}

func TestExpandDomains(t *testing.T) {
	tests := []struct {
		name     string
		domains  []string
		emails   []string
		expected []string
	}{
		{
			name:     "adds uncovered address domain",
			domains:  []string{"acme.com"},
			emails:   []string{"user@foo.edu"},
			expected: []string{"acme.com", "foo.edu"},
		},
		{
			name:     "covered address adds nothing",
			domains:  []string{"Acme.com"},
			emails:   []string{"bob@acme.com", "ops@eu.acme.com"},
			expected: []string{"acme.com"},
		},
		{
			name:     "dedupes and normalizes",
			domains:  []string{" @beta.io ", "beta.io", ""},
			emails:   []string{"A@Gamma.net", "b@gamma.net", "not-an-address"},
			expected: []string{"beta.io", "gamma.net"},
		},
		{
			name:     "nothing in",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExpandDomains(tt.domains, tt.emails))
		})
	}
}

func TestExtractAddresses(t *testing.T) {
	assert.Equal(t, []string{"bob@acme.com", "ann@acme.com"}, ExtractAddresses(`"Smith, Bob" <Bob@Acme.com>, ann@acme.com`))
	assert.Empty(t, ExtractAddresses("undisclosed-recipients:;"))
}
