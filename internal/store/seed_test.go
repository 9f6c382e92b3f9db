package store

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callsense/callsense/internal/model"
)

func TestSyncCriteriaProvisionsPortal(t *testing.T) {
	s, mock := newMockStore(t)

	seed := model.CriteriaSeed{
		Groups: []model.CriterionGroup{{Name: "Quality"}},
		Criteria: []model.SeedCriterion{
			{Name: "Greeting", Group: "Quality", Prompt: "Did the agent greet?", EvaluateCriterion: true},
			{Name: "Needs", Group: "Quality", Prompt: "What does the client need?", IncludeInEntityDescription: true},
		},
		Categories: []model.SeedCategory{
			{Name: "Sales", Prompt: "Classify the call", Criteria: []string{"Greeting", "Needs"}},
		},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "acme_criterion_groups"`).
		WithArgs("Quality").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO "acme_criteria"`).
		WithArgs(1, "Greeting", "Did the agent greet?", false, true, false, false).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(10))
	mock.ExpectQuery(`INSERT INTO "acme_criteria"`).
		WithArgs(1, "Needs", "What does the client need?", false, false, false, true).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectQuery(`INSERT INTO "acme_categories"`).
		WithArgs("Sales", "Classify the call").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(`DELETE FROM "acme_categories_criteria"`).
		WithArgs(1).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO "acme_categories_criteria"`).
		WithArgs(1, 10).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO "acme_categories_criteria"`).
		WithArgs(1, 11).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.SyncCriteria(context.Background(), "acme", seed))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncCriteriaUnknownGroup(t *testing.T) {
	s, mock := newMockStore(t)

	seed := model.CriteriaSeed{
		Criteria: []model.SeedCriterion{
			{Name: "Greeting", Group: "Missing", Prompt: "Did the agent greet?"},
		},
	}

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.SyncCriteria(context.Background(), "acme", seed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown group")
	require.NoError(t, mock.ExpectationsWereMet())
}
