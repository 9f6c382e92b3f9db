// Package store persists calls, CRM entities and analytics reference
// data in PostgreSQL. Each portal gets its own isolated table set so
// that portals never see each other's data.
package store

import (
	"context"

	"github.com/callsense/callsense/internal/model"
)

// DialogueUpdate carries the recognition result for a single call.
type DialogueUpdate struct {
	ID       string
	Dialogue string
	Status   model.CallStatus
}

// CallDataUpdate carries one call's analysis writeback. Advance is set
// when every criterion of the call's category has a result and the
// record may leave the recognized or empty status.
type CallDataUpdate struct {
	Record  model.CallRecord
	Advance bool
}

// PortalData bundles the records selected for a processing stage with
// the analytics reference data they are evaluated against.
type PortalData struct {
	Records    []model.CallRecord
	Entities   map[model.EntityKey]model.Entity
	Criteria   []model.Criterion
	Categories []model.Category
}

// Store is the persistence boundary for the processing pipeline.
type Store interface {
	// Migrate creates the portal's table set if it does not exist yet.
	Migrate(ctx context.Context, portal string) error

	// SyncCriteria provisions the portal's criterion groups, criteria
	// and categories from seed data, matching existing rows by name.
	SyncCriteria(ctx context.Context, portal string, seed model.CriteriaSeed) error

	// ListCallIDs returns every call ID already stored for the portal.
	ListCallIDs(ctx context.Context, portal string) ([]string, error)

	// UpsertUsers inserts or refreshes portal users.
	UpsertUsers(ctx context.Context, portal string, users []model.User) error

	// UpsertEntities inserts or refreshes CRM entities and returns the
	// internal id assigned to each entity key.
	UpsertEntities(ctx context.Context, portal string, entities []model.Entity) (map[model.EntityKey]int, error)

	// UpsertCalls persists new call records in a single transaction and
	// returns the number of rows written.
	UpsertCalls(ctx context.Context, portal string, records []model.CallRecord) (int, error)

	// FetchByStatus loads call records in the given status. When
	// withAnalytics is set the portal's entities, criteria and
	// categories are loaded alongside.
	FetchByStatus(ctx context.Context, portal string, status model.CallStatus, withAnalytics bool) (*PortalData, error)

	// UpdateDialogues writes recognition results back. Only records
	// still awaiting recognition are touched, so a record can never
	// move backwards.
	UpdateDialogues(ctx context.Context, portal string, updates []DialogueUpdate) error

	// UpdateCallData writes analysis results back. A record advances to
	// the fixed status only when its update says the criteria results
	// are complete.
	UpdateCallData(ctx context.Context, portal string, updates []CallDataUpdate) error

	// SaveEntityRollups stores refreshed entity summaries and criteria
	// rollups.
	SaveEntityRollups(ctx context.Context, portal string, entities []model.Entity) error

	// MarkReady finalizes fixed records whose contributions have been
	// aggregated.
	MarkReady(ctx context.Context, portal string, ids []string) error

	// StatusCounts reports how many records sit in each status.
	StatusCounts(ctx context.Context, portal string) (map[model.CallStatus]int, error)

	Close()
}
