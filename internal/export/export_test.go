package export

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/callsense/callsense/internal/model"
	"github.com/callsense/callsense/internal/store"
)

type fakeStore struct {
	store.Store
	data *store.PortalData
}

func (f *fakeStore) FetchByStatus(context.Context, string, model.CallStatus, bool) (*store.PortalData, error) {
	return f.data, nil
}

func f64(v float64) *float64 { return &v }

func TestExportWritesWorkbook(t *testing.T) {
	data := &store.PortalData{
		Records: []model.CallRecord{
			{
				ID:          "call-1",
				Date:        time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
				PhoneNumber: "+79990001122",
				CallType:    model.CallOutbound,
				Summary:     "short sales call",
				Status:      model.StatusReady,
				Data: model.CallData{
					CategoryID: 1,
					Category:   "Sales",
					Criteria: []model.CriterionResult{
						{ID: 10, Name: "Greeting", Text: "polite", Evaluation: f64(4.5)},
					},
				},
			},
		},
		Entities: map[model.EntityKey]model.Entity{
			{Type: model.EntityLead, ExternalID: 101}: {
				ID: 1, Type: model.EntityLead, ExternalID: 101,
				Title: "New lead", Name: "Ivan", LastName: "Petrov",
				Summary: "wants a demo",
				Data: model.EntityData{Criteria: []model.CriterionResult{
					{ID: 10, Name: "Greeting", Text: "consistently polite"},
				}},
			},
		},
		Criteria: []model.Criterion{
			{ID: 10, Name: "Greeting"},
		},
	}

	path := filepath.Join(t.TempDir(), "acme.xlsx")
	s := NewService(&fakeStore{data: data})
	require.NoError(t, s.Export(context.Background(), "acme", path))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	calls := f.Sheets[0]
	assert.Equal(t, "calls", calls.Name)
	require.Len(t, calls.Rows, 2)
	assert.Equal(t, "Greeting", calls.Rows[0].Cells[6].String())
	assert.Equal(t, "call-1", calls.Rows[1].Cells[0].String())
	assert.Equal(t, "Sales", calls.Rows[1].Cells[4].String())
	assert.Equal(t, "polite (4.50)", calls.Rows[1].Cells[6].String())

	entities := f.Sheets[1]
	assert.Equal(t, "entities", entities.Name)
	require.Len(t, entities.Rows, 2)
	assert.Equal(t, "LEAD", entities.Rows[1].Cells[0].String())
	assert.Equal(t, "Ivan Petrov", entities.Rows[1].Cells[3].String())
	assert.Equal(t, "consistently polite", entities.Rows[1].Cells[5].String())
}

func TestFormatResult(t *testing.T) {
	assert.Equal(t, "ok", formatResult(model.CriterionResult{Text: "ok"}))
	assert.Equal(t, "3.00", formatResult(model.CriterionResult{Evaluation: f64(3)}))
	assert.Equal(t, "ok (3.50)", formatResult(model.CriterionResult{Text: "ok", Evaluation: f64(3.5)}))
	assert.Empty(t, formatResult(model.CriterionResult{}))
}
