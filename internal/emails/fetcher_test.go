package emails

import (
	"context"
	"errors"
	"testing"

	"clientreports/internal/apperrors"
	"clientreports/internal/embeddings"
	"clientreports/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLocal struct {
	messages []models.Message
	err      error
	calls    []FilterParams
}

func (f *fakeLocal) QueryByFilters(_ context.Context, p FilterParams) ([]models.Message, error) {
	f.calls = append(f.calls, p)
	if f.err != nil {
		return nil, f.err
	}
	return f.messages, nil
}

type fakeSimilarity struct {
	messages []models.Message
	queries  []string
	panicOn  bool
}

func (f *fakeSimilarity) FindSimilar(_ context.Context, q string, _ embeddings.SearchOptions) []models.Message {
	if f.panicOn {
		panic("index exploded")
	}
	f.queries = append(f.queries, q)
	return f.messages
}

type fakeRemote struct {
	result  RemoteResult
	err     error
	calls   int
	domains []string
	limit   int
}

func (f *fakeRemote) FetchRange(_ context.Context, _ models.DateRange, domains, _ []string, limit int) (RemoteResult, error) {
	f.calls++
	f.domains = domains
	f.limit = limit
	return f.result, f.err
}

type fakeEnqueuer struct {
	err    error
	types  []models.TaskType
	params []models.TaskParams
}

func (f *fakeEnqueuer) Enqueue(taskType models.TaskType, params models.TaskParams) (string, error) {
	f.types = append(f.types, taskType)
	f.params = append(f.params, params)
	if f.err != nil {
		return "", f.err
	}
	return "task-1", nil
}

var march = models.DateRange{Start: "2024-03-01", End: "2024-03-31"}

func ids(messages []models.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.ID
	}
	return out
}

func TestFetcher_MergesLocalAndRemote(t *testing.T) {
	repo, mock := newMockRepository(t)
	expectColumnProbe(mock, 2)
	mock.ExpectQuery(`FROM messages WHERE date >= \$1`).
		WillReturnRows(sqlmock.NewRows(messageRowColumns).
			AddRow("1", "Local subject", "bob@acme.com", "me@co.com", "2024-03-02T09:00:00Z", "local", "", "{}", false, nil, nil, nil).
			AddRow("2", "Buy now", "spam@other.com", "me@co.com", "2024-03-02T08:00:00Z", "spam", "", "{}", false, nil, nil, nil))

	remote := &fakeRemote{result: RemoteResult{
		Messages: []models.Message{
			{ID: "1", Subject: "Remote subject", From: "bob@acme.com", To: "me@co.com", Date: "2024-03-02T09:00:00Z"},
			{ID: "3", Subject: "Re: renewal", From: "me@co.com", To: "bob@acme.com", Date: "2024-03-01T15:00:00Z", Source: models.SourceUser},
		},
		NewIDs: []string{"3"},
	}}
	tasks := &fakeEnqueuer{}

	f := NewFetcher(repo, nil, remote, tasks, "me@co.com", zerolog.Nop())
	res := f.GetClientEmails(context.Background(), FetchParams{
		DateRange:     march,
		ClientDomains: []string{"acme.com"},
		ClientEmails:  []string{"bob@acme.com"},
	})

	assert.Empty(t, res.Error)
	assert.True(t, res.FromExternalProvider)
	require.Equal(t, []string{"1", "3"}, ids(res.Emails))
	assert.Equal(t, "Local subject", res.Emails[0].Subject)
	assert.Equal(t, models.SourceClient, res.Emails[0].Source)

	require.Len(t, tasks.types, 1)
	assert.Equal(t, models.TaskProcessNewEmails, tasks.types[0])
	assert.Equal(t, []string{"3"}, tasks.params[0].MessageIDs)
	assert.Equal(t, []string{"acme.com"}, remote.domains)
	assert.Equal(t, DefaultMaxResults, remote.limit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetcher_SimilaritySupersedesKeyword(t *testing.T) {
	local := &fakeLocal{messages: []models.Message{
		{ID: "k1", From: "bob@acme.com", To: "me@co.com", Date: "2024-03-05T00:00:00Z"},
	}}
	similar := &fakeSimilarity{messages: []models.Message{
		{ID: "s2", From: "me@co.com", To: "bob@acme.com", Date: "2024-03-01T00:00:00Z"},
		{ID: "s1", From: "bob@acme.com", To: "me@co.com", Date: "2024-03-09T00:00:00Z"},
	}}

	f := NewFetcher(local, similar, nil, nil, "me@co.com", zerolog.Nop())
	res := f.GetClientEmails(context.Background(), FetchParams{
		DateRange:           march,
		ClientDomains:       []string{"acme.com"},
		SearchQuery:         "renewal pricing",
		UseSimilaritySearch: true,
	})

	assert.Empty(t, res.Error)
	assert.False(t, res.FromExternalProvider)
	assert.Equal(t, []string{"s2", "s1"}, ids(res.Emails))
	assert.Equal(t, models.SourceUser, res.Emails[0].Source)
	assert.Equal(t, models.SourceClient, res.Emails[1].Source)
	assert.Equal(t, []string{"renewal pricing"}, similar.queries)
	assert.Len(t, local.calls, 1)
}

func TestFetcher_SimilarityDropsLookalikeDomains(t *testing.T) {
	local := &fakeLocal{messages: []models.Message{
		{ID: "k1", From: "bob@acme.com", To: "me@co.com", Date: "2024-03-05T00:00:00Z"},
	}}
	similar := &fakeSimilarity{messages: []models.Message{
		{ID: "evil", From: "x@acme.com.evil.net", To: "me@co.com", Date: "2024-03-02T00:00:00Z"},
		{ID: "s1", From: "ann@mail.acme.com", To: "me@co.com", Date: "2024-03-09T00:00:00Z"},
	}}

	f := NewFetcher(local, similar, nil, nil, "me@co.com", zerolog.Nop())
	res := f.GetClientEmails(context.Background(), FetchParams{
		DateRange:           march,
		ClientDomains:       []string{"acme.com"},
		SearchQuery:         "renewal",
		UseSimilaritySearch: true,
	})

	assert.Equal(t, []string{"s1"}, ids(res.Emails))
	assert.Equal(t, models.SourceClient, res.Emails[0].Source)

	similar.messages = similar.messages[:1]
	res = f.GetClientEmails(context.Background(), FetchParams{
		DateRange:           march,
		ClientDomains:       []string{"acme.com"},
		SearchQuery:         "renewal",
		UseSimilaritySearch: true,
	})
	assert.Equal(t, []string{"k1"}, ids(res.Emails))
}

func TestFetcher_EmptySimilarityFallsBackToKeyword(t *testing.T) {
	local := &fakeLocal{messages: []models.Message{{ID: "k1", Date: "2024-03-05T00:00:00Z"}}}
	similar := &fakeSimilarity{}

	f := NewFetcher(local, similar, nil, nil, "me@co.com", zerolog.Nop())
	res := f.GetClientEmails(context.Background(), FetchParams{
		DateRange:           march,
		ClientDomains:       []string{"acme.com"},
		SearchQuery:         "renewal",
		UseSimilaritySearch: true,
	})

	assert.Equal(t, []string{"k1"}, ids(res.Emails))
}

func TestFetcher_SimilarityNotUsedWithoutFlag(t *testing.T) {
	local := &fakeLocal{messages: []models.Message{{ID: "k1"}}}
	similar := &fakeSimilarity{messages: []models.Message{{ID: "s1"}}}

	f := NewFetcher(local, similar, nil, nil, "", zerolog.Nop())
	res := f.GetClientEmails(context.Background(), FetchParams{
		DateRange:     march,
		ClientDomains: []string{"acme.com"},
		SearchQuery:   "renewal",
	})

	assert.Equal(t, []string{"k1"}, ids(res.Emails))
	assert.Empty(t, similar.queries)
}

func TestFetcher_ShortCircuitsWhenLocalIsEnough(t *testing.T) {
	local := &fakeLocal{messages: []models.Message{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	remote := &fakeRemote{}

	f := NewFetcher(local, nil, remote, nil, "", zerolog.Nop())
	res := f.GetClientEmails(context.Background(), FetchParams{
		DateRange:     march,
		ClientDomains: []string{"acme.com"},
		MaxResults:    2,
	})

	assert.Equal(t, []string{"a", "b"}, ids(res.Emails))
	assert.False(t, res.FromExternalProvider)
	assert.Zero(t, remote.calls)
}

func TestFetcher_SkipProvider(t *testing.T) {
	local := &fakeLocal{messages: []models.Message{{ID: "a"}}}
	remote := &fakeRemote{}

	f := NewFetcher(local, nil, remote, nil, "", zerolog.Nop())
	res := f.GetClientEmails(context.Background(), FetchParams{
		DateRange:     march,
		ClientDomains: []string{"acme.com"},
		SkipProvider:  true,
	})

	assert.Equal(t, []string{"a"}, ids(res.Emails))
	assert.Zero(t, remote.calls)
}

func TestFetcher_ProviderFailureDegrades(t *testing.T) {
	local := &fakeLocal{messages: []models.Message{{ID: "a"}}}
	remote := &fakeRemote{err: apperrors.Provider("list messages", errors.New("503 service unavailable"))}
	tasks := &fakeEnqueuer{}

	f := NewFetcher(local, nil, remote, tasks, "", zerolog.Nop())
	res := f.GetClientEmails(context.Background(), FetchParams{
		DateRange:     march,
		ClientDomains: []string{"acme.com"},
	})

	assert.Equal(t, []string{"a"}, ids(res.Emails))
	assert.False(t, res.FromExternalProvider)
	assert.Contains(t, res.Error, "mail provider unavailable")
	assert.Contains(t, res.Error, "503")
	assert.Empty(t, tasks.types)
}

func TestFetcher_LocalFailureStillQueriesProvider(t *testing.T) {
	local := &fakeLocal{err: apperrors.Storage("query", errors.New("db down"))}
	remote := &fakeRemote{result: RemoteResult{Messages: []models.Message{{ID: "r1"}}}}

	f := NewFetcher(local, nil, remote, nil, "", zerolog.Nop())
	res := f.GetClientEmails(context.Background(), FetchParams{
		DateRange:     march,
		ClientDomains: []string{"acme.com"},
	})

	assert.Empty(t, res.Error)
	assert.True(t, res.FromExternalProvider)
	assert.Equal(t, []string{"r1"}, ids(res.Emails))
	assert.Equal(t, 1, remote.calls)
}

func TestFetcher_SortsAndTruncatesMerged(t *testing.T) {
	local := &fakeLocal{messages: []models.Message{
		{ID: "l1", Date: "2024-03-10T00:00:00Z"},
		{ID: "l2", Date: "2024-03-02T00:00:00Z"},
	}}
	remote := &fakeRemote{result: RemoteResult{Messages: []models.Message{
		{ID: "r1", Date: "2024-03-05T12:00:00+00:00"},
		{ID: "r2", Date: "2024-03-01T00:00:00Z"},
	}}}

	f := NewFetcher(local, nil, remote, nil, "", zerolog.Nop())
	res := f.GetClientEmails(context.Background(), FetchParams{
		DateRange:     march,
		ClientDomains: []string{"acme.com"},
		MaxResults:    3,
	})

	assert.Equal(t, []string{"l1", "r1", "l2"}, ids(res.Emails))
	assert.Equal(t, 3, remote.limit)
}

func TestFetcher_EnqueueFailureIsTolerated(t *testing.T) {
	local := &fakeLocal{}
	remote := &fakeRemote{result: RemoteResult{
		Messages: []models.Message{{ID: "r1"}},
		NewIDs:   []string{"r1"},
	}}
	tasks := &fakeEnqueuer{err: errors.New("queue closed")}

	f := NewFetcher(local, nil, remote, tasks, "", zerolog.Nop())
	res := f.GetClientEmails(context.Background(), FetchParams{
		DateRange:     march,
		ClientDomains: []string{"acme.com"},
	})

	assert.Empty(t, res.Error)
	assert.Equal(t, []string{"r1"}, ids(res.Emails))
	assert.Len(t, tasks.types, 1)
}

func TestFetcher_ExpandsDomainsFromAddresses(t *testing.T) {
	local := &fakeLocal{}
	remote := &fakeRemote{}

	f := NewFetcher(local, nil, remote, nil, "", zerolog.Nop())
	f.GetClientEmails(context.Background(), FetchParams{
		DateRange:     march,
		ClientDomains: []string{"acme.com"},
		ClientEmails:  []string{"user@foo.edu"},
	})

	require.Len(t, local.calls, 1)
	assert.Equal(t, []string{"acme.com", "foo.edu"}, local.calls[0].ClientDomains)
	assert.Equal(t, []string{"acme.com", "foo.edu"}, remote.domains)
}

func TestFetcher_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		params FetchParams
	}{
		{"no client", FetchParams{DateRange: march}},
		{"inverted range", FetchParams{DateRange: models.DateRange{Start: "2024-04-01", End: "2024-03-01"}, ClientDomains: []string{"acme.com"}}},
		{"bad date", FetchParams{DateRange: models.DateRange{Start: "yesterday", End: "2024-03-01"}, ClientDomains: []string{"acme.com"}}},
		{"negative max", FetchParams{DateRange: march, ClientDomains: []string{"acme.com"}, MaxResults: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := &fakeLocal{}
			f := NewFetcher(local, nil, nil, nil, "", zerolog.Nop())

			assert.True(t, apperrors.IsValidation(f.Validate(tt.params)))

			res := f.GetClientEmails(context.Background(), tt.params)
			assert.NotEmpty(t, res.Error)
			assert.NotNil(t, res.Emails)
			assert.Empty(t, res.Emails)
			assert.Empty(t, local.calls)
		})
	}
}

func TestFetcher_RecoversFromPanics(t *testing.T) {
	f := NewFetcher(&fakeLocal{}, &fakeSimilarity{panicOn: true}, nil, nil, "", zerolog.Nop())
	res := f.GetClientEmails(context.Background(), FetchParams{
		DateRange:           march,
		ClientDomains:       []string{"acme.com"},
		SearchQuery:         "anything",
		UseSimilaritySearch: true,
	})

	assert.NotNil(t, res.Emails)
	assert.Empty(t, res.Emails)
	assert.False(t, res.FromExternalProvider)
	assert.Contains(t, res.Error, "index exploded")
}
