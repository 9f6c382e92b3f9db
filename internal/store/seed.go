package store

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/callsense/callsense/internal/model"
)

// SyncCriteria provisions the portal's criterion groups, criteria and
// categories from seed data. Rows are matched by name and refreshed in
// place, so criterion ids already referenced by analyzed calls survive
// a re-sync. Category-criterion links are replaced wholesale.
func (s *PostgresStore) SyncCriteria(ctx context.Context, portal string, seed model.CriteriaSeed) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "beginning criteria sync transaction")
	}
	defer tx.Rollback(ctx)

	groupQuery := fmt.Sprintf(`
		INSERT INTO %s (name)
		VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`,
		table(portal, "criterion_groups"))

	groupIDs := make(map[string]int, len(seed.Groups))
	for _, g := range seed.Groups {
		var id int
		if err := tx.QueryRow(ctx, groupQuery, g.Name).Scan(&id); err != nil {
			return eris.Wrapf(err, "syncing criterion group %s", g.Name)
		}
		groupIDs[g.Name] = id
	}

	criterionQuery := fmt.Sprintf(`
		INSERT INTO %s (group_id, name, prompt, show_text_description, evaluate_criterion, include_in_score, include_in_entity_description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			group_id = EXCLUDED.group_id,
			prompt = EXCLUDED.prompt,
			show_text_description = EXCLUDED.show_text_description,
			evaluate_criterion = EXCLUDED.evaluate_criterion,
			include_in_score = EXCLUDED.include_in_score,
			include_in_entity_description = EXCLUDED.include_in_entity_description
		RETURNING id`,
		table(portal, "criteria"))

	criterionIDs := make(map[string]int, len(seed.Criteria))
	for _, c := range seed.Criteria {
		groupID, ok := groupIDs[c.Group]
		if !ok {
			return eris.Errorf("criterion %q references unknown group %q", c.Name, c.Group)
		}
		var id int
		if err := tx.QueryRow(ctx, criterionQuery, groupID, c.Name, c.Prompt,
			c.ShowTextDescription, c.EvaluateCriterion, c.IncludeInScore, c.IncludeInEntityDescription).Scan(&id); err != nil {
			return eris.Wrapf(err, "syncing criterion %s", c.Name)
		}
		criterionIDs[c.Name] = id
	}

	categoryQuery := fmt.Sprintf(`
		INSERT INTO %s (name, prompt)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET prompt = EXCLUDED.prompt
		RETURNING id`,
		table(portal, "categories"))
	clearLinks := fmt.Sprintf(`DELETE FROM %s WHERE category_id = $1`,
		table(portal, "categories_criteria"))
	insertLink := fmt.Sprintf(`
		INSERT INTO %s (category_id, criterion_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		table(portal, "categories_criteria"))

	for _, c := range seed.Categories {
		var id int
		if err := tx.QueryRow(ctx, categoryQuery, c.Name, c.Prompt).Scan(&id); err != nil {
			return eris.Wrapf(err, "syncing category %s", c.Name)
		}
		if _, err := tx.Exec(ctx, clearLinks, id); err != nil {
			return eris.Wrapf(err, "clearing criteria links for category %s", c.Name)
		}
		for _, name := range c.Criteria {
			criterionID, ok := criterionIDs[name]
			if !ok {
				return eris.Errorf("category %q references unknown criterion %q", c.Name, name)
			}
			if _, err := tx.Exec(ctx, insertLink, id, criterionID); err != nil {
				return eris.Wrapf(err, "linking category %s to criterion %s", c.Name, name)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "committing criteria sync transaction")
	}

	zap.L().Info("criteria synced",
		zap.String("portal", portal),
		zap.Int("groups", len(seed.Groups)),
		zap.Int("criteria", len(seed.Criteria)),
		zap.Int("categories", len(seed.Categories)))
	return nil
}
