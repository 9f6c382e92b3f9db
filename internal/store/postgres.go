package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/callsense/callsense/internal/db"
	"github.com/callsense/callsense/internal/model"
)

// PostgresStore implements Store on top of a pgx connection pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore connects to PostgreSQL and verifies the connection.
// Zero pool bounds keep the pgx defaults.
func NewPostgresStore(ctx context.Context, connString string, maxConns, minConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "parsing postgres connection string")
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "creating postgres pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "pinging postgres")
	}

	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreWithPool wraps an existing pool. Used by tests.
func NewPostgresStoreWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// table builds the quoted per-portal table name.
func table(portal, suffix string) string {
	return pgx.Identifier{portal + "_" + suffix}.Sanitize()
}

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id SERIAL PRIMARY KEY,
	crm_entity_type TEXT NOT NULL CHECK (crm_entity_type IN ('LEAD', 'DEAL', 'CONTACT', 'COMPANY')),
	entity_id INTEGER NOT NULL,
	title TEXT,
	name TEXT,
	last_name TEXT,
	summary TEXT,
	data JSONB NOT NULL DEFAULT '{}'::jsonb,
	UNIQUE (crm_entity_type, entity_id)
);

CREATE TABLE IF NOT EXISTS %[2]s (
	id INTEGER PRIMARY KEY,
	name TEXT,
	last_name TEXT,
	departments JSONB NOT NULL DEFAULT '[]'::jsonb
);

CREATE TABLE IF NOT EXISTS %[3]s (
	id TEXT PRIMARY KEY,
	date TIMESTAMPTZ NOT NULL,
	user_id INTEGER REFERENCES %[2]s(id) ON DELETE SET NULL,
	entity_id INTEGER REFERENCES %[1]s(id) ON DELETE SET NULL,
	phone_number VARCHAR(50),
	call_type TEXT,
	audio_metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	dialogue TEXT,
	summary TEXT,
	data JSONB NOT NULL DEFAULT '{}'::jsonb,
	status TEXT NOT NULL CHECK (status IN ('uploaded', 'recognized', 'empty', 'fixed', 'ready'))
);

CREATE INDEX IF NOT EXISTS %[8]s ON %[3]s (status);
CREATE INDEX IF NOT EXISTS %[9]s ON %[3]s (entity_id);

CREATE TABLE IF NOT EXISTS %[4]s (
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS %[5]s (
	id SERIAL PRIMARY KEY,
	group_id INTEGER REFERENCES %[4]s(id) ON DELETE CASCADE,
	name TEXT NOT NULL UNIQUE,
	prompt TEXT NOT NULL,
	show_text_description BOOLEAN NOT NULL DEFAULT FALSE,
	evaluate_criterion BOOLEAN NOT NULL DEFAULT FALSE,
	include_in_score BOOLEAN NOT NULL DEFAULT FALSE,
	include_in_entity_description BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS %[6]s (
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	prompt TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS %[7]s (
	category_id INTEGER NOT NULL REFERENCES %[6]s(id) ON DELETE CASCADE,
	criterion_id INTEGER NOT NULL REFERENCES %[5]s(id) ON DELETE CASCADE,
	PRIMARY KEY (category_id, criterion_id)
);
`

// Migrate creates the portal's table set. Safe to run repeatedly.
func (s *PostgresStore) Migrate(ctx context.Context, portal string) error {
	schema := fmt.Sprintf(schemaTemplate,
		table(portal, "entities"),
		table(portal, "users"),
		table(portal, "calls"),
		table(portal, "criterion_groups"),
		table(portal, "criteria"),
		table(portal, "categories"),
		table(portal, "categories_criteria"),
		pgx.Identifier{portal + "_calls_status_idx"}.Sanitize(),
		pgx.Identifier{portal + "_calls_entity_idx"}.Sanitize(),
	)

	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return eris.Wrapf(err, "migrating schema for portal %s", portal)
	}

	zap.L().Info("schema migrated", zap.String("portal", portal))
	return nil
}

func (s *PostgresStore) ListCallIDs(ctx context.Context, portal string) ([]string, error) {
	query := fmt.Sprintf(`SELECT id FROM %s`, table(portal, "calls"))

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "listing call ids for portal %s", portal)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "scanning call id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "iterating call ids")
	}
	return ids, nil
}

// UpsertUsers refreshes the portal's full user directory in one bulk
// upsert.
func (s *PostgresStore) UpsertUsers(ctx context.Context, portal string, users []model.User) error {
	if len(users) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(users))
	for _, u := range users {
		depts, err := json.Marshal(u.Departments)
		if err != nil {
			return eris.Wrapf(err, "marshaling departments for user %d", u.ID)
		}
		rows = append(rows, []any{u.ID, u.Name, u.LastName, depts})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        portal + "_users",
		Columns:      []string{"id", "name", "last_name", "departments"},
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return eris.Wrapf(err, "upserting %d users for portal %s", len(users), portal)
	}
	return nil
}

func (s *PostgresStore) UpsertEntities(ctx context.Context, portal string, entities []model.Entity) (map[model.EntityKey]int, error) {
	ids := make(map[model.EntityKey]int, len(entities))
	if len(entities) == 0 {
		return ids, nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (crm_entity_type, entity_id, title, name, last_name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (crm_entity_type, entity_id) DO UPDATE SET
			title = EXCLUDED.title,
			name = EXCLUDED.name,
			last_name = EXCLUDED.last_name
		RETURNING id`,
		table(portal, "entities"))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "beginning entities transaction")
	}
	defer tx.Rollback(ctx)

	for _, e := range entities {
		var id int
		err := tx.QueryRow(ctx, query, e.Type, e.ExternalID, e.Title, e.Name, e.LastName).Scan(&id)
		if err != nil {
			return nil, eris.Wrapf(err, "upserting entity %s:%d", e.Type, e.ExternalID)
		}
		ids[e.Key()] = id
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "committing entities transaction")
	}
	return ids, nil
}

// UpsertCalls inserts new records and refreshes the portal-sourced
// fields of existing ones. Status, dialogue and analysis data belong to
// the local lifecycle and are never overwritten here.
func (s *PostgresStore) UpsertCalls(ctx context.Context, portal string, records []model.CallRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, date, user_id, entity_id, phone_number, call_type, audio_metadata, dialogue, summary, data, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			date = EXCLUDED.date,
			user_id = EXCLUDED.user_id,
			entity_id = EXCLUDED.entity_id,
			phone_number = EXCLUDED.phone_number,
			call_type = EXCLUDED.call_type,
			audio_metadata = EXCLUDED.audio_metadata`,
		table(portal, "calls"))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "beginning calls transaction")
	}
	defer tx.Rollback(ctx)

	written := 0
	for _, r := range records {
		audio, err := json.Marshal(r.Audio)
		if err != nil {
			return 0, eris.Wrapf(err, "marshaling audio metadata for call %s", r.ID)
		}
		data, err := json.Marshal(r.Data)
		if err != nil {
			return 0, eris.Wrapf(err, "marshaling data for call %s", r.ID)
		}
		tag, err := tx.Exec(ctx, query,
			r.ID, r.Date, r.UserID, r.EntityID, r.PhoneNumber, r.CallType,
			audio, r.Dialogue, r.Summary, data, r.Status)
		if err != nil {
			return 0, eris.Wrapf(err, "upserting call %s", r.ID)
		}
		written += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "committing calls transaction")
	}
	return written, nil
}

func (s *PostgresStore) FetchByStatus(ctx context.Context, portal string, status model.CallStatus, withAnalytics bool) (*PortalData, error) {
	query := fmt.Sprintf(`
		SELECT id, date, user_id, entity_id, phone_number, call_type, audio_metadata, dialogue, summary, data, status
		FROM %s
		WHERE status = $1
		ORDER BY date`,
		table(portal, "calls"))

	rows, err := s.pool.Query(ctx, query, status)
	if err != nil {
		return nil, eris.Wrapf(err, "fetching %s calls for portal %s", status, portal)
	}
	defer rows.Close()

	data := &PortalData{}
	for rows.Next() {
		var (
			r          model.CallRecord
			audioJSON  []byte
			dataJSON   []byte
			callType   *string
			dialogue   *string
			summary    *string
			phone      *string
		)
		if err := rows.Scan(&r.ID, &r.Date, &r.UserID, &r.EntityID, &phone, &callType,
			&audioJSON, &dialogue, &summary, &dataJSON, &r.Status); err != nil {
			return nil, eris.Wrap(err, "scanning call record")
		}
		if phone != nil {
			r.PhoneNumber = *phone
		}
		if callType != nil {
			r.CallType = model.CallType(*callType)
		}
		if dialogue != nil {
			r.Dialogue = *dialogue
		}
		if summary != nil {
			r.Summary = *summary
		}
		if len(audioJSON) > 0 {
			if err := json.Unmarshal(audioJSON, &r.Audio); err != nil {
				return nil, eris.Wrapf(err, "decoding audio metadata for call %s", r.ID)
			}
		}
		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &r.Data); err != nil {
				return nil, eris.Wrapf(err, "decoding data for call %s", r.ID)
			}
		}
		data.Records = append(data.Records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "iterating call records")
	}

	if !withAnalytics {
		return data, nil
	}

	if data.Entities, err = s.fetchEntities(ctx, portal); err != nil {
		return nil, err
	}
	if data.Criteria, err = s.fetchCriteria(ctx, portal); err != nil {
		return nil, err
	}
	if data.Categories, err = s.fetchCategories(ctx, portal); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *PostgresStore) fetchEntities(ctx context.Context, portal string) (map[model.EntityKey]model.Entity, error) {
	query := fmt.Sprintf(`
		SELECT id, crm_entity_type, entity_id, title, name, last_name, summary, data
		FROM %s`,
		table(portal, "entities"))

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "fetching entities for portal %s", portal)
	}
	defer rows.Close()

	entities := make(map[model.EntityKey]model.Entity)
	for rows.Next() {
		var (
			e        model.Entity
			title    *string
			name     *string
			lastName *string
			summary  *string
			dataJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.ExternalID, &title, &name, &lastName, &summary, &dataJSON); err != nil {
			return nil, eris.Wrap(err, "scanning entity")
		}
		if title != nil {
			e.Title = *title
		}
		if name != nil {
			e.Name = *name
		}
		if lastName != nil {
			e.LastName = *lastName
		}
		if summary != nil {
			e.Summary = *summary
		}
		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &e.Data); err != nil {
				return nil, eris.Wrapf(err, "decoding data for entity %d", e.ID)
			}
		}
		entities[e.Key()] = e
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "iterating entities")
	}
	return entities, nil
}

func (s *PostgresStore) fetchCriteria(ctx context.Context, portal string) ([]model.Criterion, error) {
	query := fmt.Sprintf(`
		SELECT id, group_id, name, prompt, show_text_description, evaluate_criterion, include_in_score, include_in_entity_description
		FROM %s
		ORDER BY id`,
		table(portal, "criteria"))

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "fetching criteria for portal %s", portal)
	}
	defer rows.Close()

	var criteria []model.Criterion
	for rows.Next() {
		var c model.Criterion
		if err := rows.Scan(&c.ID, &c.GroupID, &c.Name, &c.Prompt,
			&c.ShowTextDescription, &c.EvaluateCriterion, &c.IncludeInScore, &c.IncludeInEntityDescription); err != nil {
			return nil, eris.Wrap(err, "scanning criterion")
		}
		criteria = append(criteria, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "iterating criteria")
	}
	return criteria, nil
}

func (s *PostgresStore) fetchCategories(ctx context.Context, portal string) ([]model.Category, error) {
	query := fmt.Sprintf(`
		SELECT c.id, c.name, c.prompt, COALESCE(array_agg(cc.criterion_id) FILTER (WHERE cc.criterion_id IS NOT NULL), '{}')
		FROM %s c
		LEFT JOIN %s cc ON cc.category_id = c.id
		GROUP BY c.id, c.name, c.prompt
		ORDER BY c.id`,
		table(portal, "categories"),
		table(portal, "categories_criteria"))

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "fetching categories for portal %s", portal)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Prompt, &c.Criteria); err != nil {
			return nil, eris.Wrap(err, "scanning category")
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "iterating categories")
	}
	return categories, nil
}

// UpdateDialogues writes recognition results. The status guard keeps a
// record from ever leaving the uploaded state twice.
func (s *PostgresStore) UpdateDialogues(ctx context.Context, portal string, updates []DialogueUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET dialogue = $2, status = $3
		WHERE id = $1 AND status = 'uploaded'`,
		table(portal, "calls"))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "beginning dialogues transaction")
	}
	defer tx.Rollback(ctx)

	for _, u := range updates {
		if _, err := tx.Exec(ctx, query, u.ID, u.Dialogue, u.Status); err != nil {
			return eris.Wrapf(err, "updating dialogue for call %s", u.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "committing dialogues transaction")
	}
	return nil
}

// UpdateCallData writes analysis results. A record advances to fixed
// only when its update is marked complete; otherwise the data is saved
// and the record stays where it is for the next run.
func (s *PostgresStore) UpdateCallData(ctx context.Context, portal string, updates []CallDataUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	advance := fmt.Sprintf(`
		UPDATE %s
		SET data = $2, summary = $3, dialogue = $4, status = 'fixed'
		WHERE id = $1 AND status IN ('recognized', 'empty')`,
		table(portal, "calls"))
	keep := fmt.Sprintf(`
		UPDATE %s
		SET data = $2, summary = $3, dialogue = $4
		WHERE id = $1 AND status IN ('recognized', 'empty')`,
		table(portal, "calls"))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "beginning call data transaction")
	}
	defer tx.Rollback(ctx)

	for _, u := range updates {
		r := u.Record
		data, err := json.Marshal(r.Data)
		if err != nil {
			return eris.Wrapf(err, "marshaling data for call %s", r.ID)
		}
		query := keep
		if u.Advance {
			query = advance
		}
		if _, err := tx.Exec(ctx, query, r.ID, data, r.Summary, r.Dialogue); err != nil {
			return eris.Wrapf(err, "updating data for call %s", r.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "committing call data transaction")
	}
	return nil
}

func (s *PostgresStore) SaveEntityRollups(ctx context.Context, portal string, entities []model.Entity) error {
	if len(entities) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET summary = $2, data = $3
		WHERE id = $1`,
		table(portal, "entities"))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "beginning rollups transaction")
	}
	defer tx.Rollback(ctx)

	for _, e := range entities {
		data, err := json.Marshal(e.Data)
		if err != nil {
			return eris.Wrapf(err, "marshaling data for entity %d", e.ID)
		}
		if _, err := tx.Exec(ctx, query, e.ID, e.Summary, data); err != nil {
			return eris.Wrapf(err, "saving rollup for entity %d", e.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "committing rollups transaction")
	}
	return nil
}

// MarkReady finalizes aggregated records. Only fixed records qualify.
func (s *PostgresStore) MarkReady(ctx context.Context, portal string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET status = 'ready'
		WHERE id IN (%s) AND status = 'fixed'`,
		table(portal, "calls"),
		strings.Join(placeholders, ", "))

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return eris.Wrapf(err, "marking %d calls ready", len(ids))
	}
	return nil
}

func (s *PostgresStore) StatusCounts(ctx context.Context, portal string) (map[model.CallStatus]int, error) {
	query := fmt.Sprintf(`SELECT status, COUNT(*) FROM %s GROUP BY status`, table(portal, "calls"))

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "counting statuses for portal %s", portal)
	}
	defer rows.Close()

	counts := make(map[model.CallStatus]int)
	for rows.Next() {
		var (
			status model.CallStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "scanning status count")
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "iterating status counts")
	}
	return counts, nil
}
