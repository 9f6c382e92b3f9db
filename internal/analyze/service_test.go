package analyze

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callsense/callsense/internal/model"
	"github.com/callsense/callsense/internal/store"
	"github.com/callsense/callsense/pkg/anthropic"
	"github.com/callsense/callsense/pkg/summarizer"
)

// fakeStore serves canned records per status and captures writebacks.
type fakeStore struct {
	store.Store
	byStatus map[model.CallStatus]*store.PortalData
	saved    []store.CallDataUpdate
}

func (f *fakeStore) FetchByStatus(_ context.Context, _ string, status model.CallStatus, _ bool) (*store.PortalData, error) {
	if data, ok := f.byStatus[status]; ok {
		return data, nil
	}
	return &store.PortalData{}, nil
}

func (f *fakeStore) UpdateCallData(_ context.Context, _ string, updates []store.CallDataUpdate) error {
	f.saved = append(f.saved, updates...)
	return nil
}

// scriptedClient replays replies in order and can fail on demand.
type scriptedClient struct {
	replies []string
	errs    map[int]error
	n       int
}

func (c *scriptedClient) CreateMessage(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	i := c.n
	c.n++
	if err, ok := c.errs[i]; ok {
		return nil, err
	}
	return &anthropic.MessageResponse{Text: c.replies[i]}, nil
}

func analytics(records ...model.CallRecord) *store.PortalData {
	return &store.PortalData{
		Records: records,
		Criteria: []model.Criterion{
			{ID: 10, Name: "Greeting", Prompt: "greeting", ShowTextDescription: true, EvaluateCriterion: true},
			{ID: 11, Name: "Outcome", Prompt: "outcome", ShowTextDescription: true},
		},
		Categories: []model.Category{
			{ID: 1, Name: "Sales", Prompt: "sales calls", Criteria: []int{10, 11}},
		},
	}
}

func newService(st store.Store, client anthropic.Client) *Service {
	sum := summarizer.New(client, "test-model", 0)
	return NewService(st, sum, 1, 1, time.Millisecond)
}

func TestRunAdvancesFullyAnalyzedRecord(t *testing.T) {
	fs := &fakeStore{byStatus: map[model.CallStatus]*store.PortalData{
		model.StatusRecognized: analytics(model.CallRecord{
			ID:       "call-1",
			Dialogue: "0: hello\n1: hi",
			Status:   model.StatusRecognized,
		}),
	}}
	client := &scriptedClient{replies: []string{
		`{"category_id": 1}`,
		`{"text": "greeted politely", "evaluation": 5}`,
		`{"text": "customer will call back", "evaluation": null}`,
		"short sales call",
	}}

	require.NoError(t, newService(fs, client).Run(context.Background(), "acme"))

	require.Len(t, fs.saved, 1)
	u := fs.saved[0]
	assert.True(t, u.Advance)
	assert.Equal(t, 1, u.Record.Data.CategoryID)
	assert.Equal(t, "Sales", u.Record.Data.Category)
	assert.Equal(t, "short sales call", u.Record.Summary)
	require.Len(t, u.Record.Data.Criteria, 2)
	assert.Equal(t, "greeted politely", u.Record.Data.Criteria[0].Text)
	require.NotNil(t, u.Record.Data.Criteria[0].Evaluation)
	assert.Equal(t, 5.0, *u.Record.Data.Criteria[0].Evaluation)
	assert.Nil(t, u.Record.Data.Criteria[1].Evaluation)
}

func TestRunKeepsPartialResultsWithoutAdvancing(t *testing.T) {
	fs := &fakeStore{byStatus: map[model.CallStatus]*store.PortalData{
		model.StatusRecognized: analytics(model.CallRecord{
			ID:       "call-1",
			Dialogue: "0: hello",
			Status:   model.StatusRecognized,
		}),
	}}
	// The second criterion fails; the record keeps the first result and
	// stays behind for the next run.
	client := &scriptedClient{
		replies: []string{
			`{"category_id": 1}`,
			`{"text": "ok", "evaluation": 3}`,
			"",
			"summary",
		},
		errs: map[int]error{
			2: eris.New("model overloaded"),
		},
	}

	require.NoError(t, newService(fs, client).Run(context.Background(), "acme"))

	require.Len(t, fs.saved, 1)
	u := fs.saved[0]
	assert.False(t, u.Advance)
	assert.Len(t, u.Record.Data.Criteria, 1)
	assert.Equal(t, "summary", u.Record.Summary)
}

func TestRunAnalyzesEmptyRecordsWithoutSummary(t *testing.T) {
	fs := &fakeStore{byStatus: map[model.CallStatus]*store.PortalData{
		model.StatusEmpty: analytics(model.CallRecord{
			ID:     "call-2",
			Status: model.StatusEmpty,
		}),
	}}
	client := &scriptedClient{replies: []string{
		`{"category_id": 1}`,
		`{"text": "no conversation took place", "evaluation": null}`,
		`{"text": "no outcome", "evaluation": null}`,
	}}

	require.NoError(t, newService(fs, client).Run(context.Background(), "acme"))

	require.Len(t, fs.saved, 1)
	u := fs.saved[0]
	assert.True(t, u.Advance)
	assert.Empty(t, u.Record.Summary)
	assert.Len(t, u.Record.Data.Criteria, 2)
}

func TestRunSkipsExistingCriteria(t *testing.T) {
	eval := 4.0
	fs := &fakeStore{byStatus: map[model.CallStatus]*store.PortalData{
		model.StatusRecognized: analytics(model.CallRecord{
			ID:       "call-3",
			Dialogue: "0: hello",
			Summary:  "already summarized",
			Status:   model.StatusRecognized,
			Data: model.CallData{
				CategoryID: 1,
				Category:   "Sales",
				Criteria: []model.CriterionResult{
					{ID: 10, Name: "Greeting", Text: "kept", Evaluation: &eval},
				},
			},
		}),
	}}
	// Only the missing criterion is evaluated; no classify, no summary.
	client := &scriptedClient{replies: []string{
		`{"text": "callback agreed", "evaluation": null}`,
	}}

	require.NoError(t, newService(fs, client).Run(context.Background(), "acme"))

	require.Len(t, fs.saved, 1)
	u := fs.saved[0]
	assert.True(t, u.Advance)
	assert.Equal(t, 1, client.n)
	require.Len(t, u.Record.Data.Criteria, 2)
	assert.Equal(t, "kept", u.Record.Data.Criteria[0].Text)
}

func TestRunWithoutCategoriesSkipsAnalysis(t *testing.T) {
	fs := &fakeStore{byStatus: map[model.CallStatus]*store.PortalData{
		model.StatusRecognized: {
			Records: []model.CallRecord{{ID: "call-4", Status: model.StatusRecognized}},
		},
	}}
	client := &scriptedClient{}

	require.NoError(t, newService(fs, client).Run(context.Background(), "acme"))
	assert.Empty(t, fs.saved)
	assert.Zero(t, client.n)
}
