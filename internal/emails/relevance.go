package emails

import (
	"regexp"
	"strings"

	"clientreports/internal/models"
)

var addressPattern = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9\-]+(\.[a-z0-9\-]+)+`)

// Relevance records how a message involves a client
type Relevance struct {
	IsClientSender    bool
	IsClientRecipient bool
	IsUserToClient    bool
	IsClientToUser    bool
}

// Any reports whether the message involves the client at all
func (r Relevance) Any() bool {
	return r.IsClientSender || r.IsClientRecipient || r.IsUserToClient || r.IsClientToUser
}

// ClientMatcher decides whether an address belongs to a client
type ClientMatcher struct {
	domains []string
	emails  map[string]struct{}
}

// NewClientMatcher builds a matcher over client domains and addresses
func NewClientMatcher(domains, emails []string) ClientMatcher {
	m := ClientMatcher{emails: make(map[string]struct{}, len(emails))}
	for _, d := range domains {
		if d = normalizeDomain(d); d != "" {
			m.domains = append(m.domains, d)
		}
	}
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			m.emails[e] = struct{}{}
		}
	}
	return m
}

// Empty reports whether the matcher can never match
func (m ClientMatcher) Empty() bool {
	return len(m.domains) == 0 && len(m.emails) == 0
}

// Matches reports whether addr is a client address. Subdomains of a client domain match.
func (m ClientMatcher) Matches(addr string) bool {
	addr = strings.ToLower(addr)
	if _, ok := m.emails[addr]; ok {
		return true
	}
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return false
	}
	return domainCovered(addr[at+1:], m.domains)
}

func (m ClientMatcher) anyMatches(addrs []string) bool {
	for _, a := range addrs {
		if m.Matches(a) {
			return true
		}
	}
	return false
}

// ClassifyRelevance evaluates the four relevance conditions. Absent cc/bcc are
// treated as no recipients there.
func ClassifyRelevance(msg models.Message, domains, emails []string, userAddress string) Relevance {
	return ClassifyWith(msg, NewClientMatcher(domains, emails), userAddress)
}

// ClassifyWith is ClassifyRelevance over a prebuilt matcher
func ClassifyWith(msg models.Message, matcher ClientMatcher, userAddress string) Relevance {
	senders := ExtractAddresses(msg.From)
	recipients := ExtractAddresses(msg.To)
	if msg.CC != nil {
		recipients = append(recipients, ExtractAddresses(*msg.CC)...)
	}
	if msg.BCC != nil {
		recipients = append(recipients, ExtractAddresses(*msg.BCC)...)
	}

	user := strings.ToLower(strings.TrimSpace(userAddress))
	fromUser := user != "" && containsAddress(senders, user)
	toUser := user != "" && containsAddress(recipients, user)

	clientSender := matcher.anyMatches(senders)
	clientRecipient := matcher.anyMatches(recipients)

	return Relevance{
		IsClientSender:    clientSender,
		IsClientRecipient: clientRecipient,
		IsUserToClient:    fromUser && clientRecipient,
		IsClientToUser:    clientSender && toUser,
	}
}

// IsRelevant reports whether the message passes the relevance rule
func IsRelevant(msg models.Message, domains, emails []string, userAddress string) bool {
	return ClassifyRelevance(msg, domains, emails, userAddress).Any()
}

// SourceFor tags a message as client-sent, user-sent or other
func SourceFor(msg models.Message, rel Relevance, userAddress string) models.MessageSource {
	if rel.IsClientSender {
		return models.SourceClient
	}
	user := strings.ToLower(strings.TrimSpace(userAddress))
	if user != "" && containsAddress(ExtractAddresses(msg.From), user) {
		return models.SourceUser
	}
	return models.SourceOther
}

// ExpandDomains returns the client domains plus the domain of every client address
// not already covered by one of them. Output is lower-cased, deduplicated and keeps
// input order.
func ExpandDomains(domains, emails []string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(d string) {
		if _, ok := seen[d]; ok || d == "" {
			return
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}

	for _, d := range domains {
		add(normalizeDomain(d))
	}
	explicit := append([]string(nil), out...)

	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		at := strings.LastIndex(e, "@")
		if at < 0 || at == len(e)-1 {
			continue
		}
		d := e[at+1:]
		if domainCovered(d, explicit) {
			continue
		}
		add(d)
	}

	if out == nil {
		return []string{}
	}
	return out
}

// ExtractAddresses pulls bare lower-cased addresses out of a header-style field
// such as "Bob <bob@acme.com>, ann@acme.com".
func ExtractAddresses(field string) []string {
	found := addressPattern.FindAllString(field, -1)
	for i := range found {
		found[i] = strings.ToLower(found[i])
	}
	return found
}

func containsAddress(addrs []string, target string) bool {
	for _, a := range addrs {
		if a == target {
			return true
		}
	}
	return false
}

func domainCovered(domain string, domains []string) bool {
	for _, d := range domains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

func normalizeDomain(d string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "@")
}
