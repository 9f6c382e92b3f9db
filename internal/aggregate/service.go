// Package aggregate folds finished call analyses into per-entity
// rollups: one merged text and one averaged score per criterion, plus a
// merged entity summary. Aggregated calls move to the ready status.
package aggregate

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/callsense/callsense/internal/executor"
	"github.com/callsense/callsense/internal/model"
	"github.com/callsense/callsense/internal/resilience"
	"github.com/callsense/callsense/internal/store"
	"github.com/callsense/callsense/pkg/summarizer"
)

// Service runs the aggregation stage over fixed records.
type Service struct {
	store      store.Store
	summarizer *summarizer.Summarizer
	limit      int
	maxWords   int
	retry      resilience.RetryConfig
}

func NewService(st store.Store, sum *summarizer.Summarizer, limit, maxWords, retries int, retryDelay time.Duration) *Service {
	return &Service{
		store:      st,
		summarizer: sum,
		limit:      limit,
		maxWords:   maxWords,
		retry:      resilience.FixedDelay(retries, retryDelay),
	}
}

// group is one entity together with the fixed calls contributing to it.
type group struct {
	entity model.Entity
	calls  []model.CallRecord
}

// Run aggregates every fixed record of the portal. Calls without a CRM
// entity have nothing to roll up and are finalized directly. A group
// that fails keeps its calls in the fixed status for the next run.
func (s *Service) Run(ctx context.Context, portal string) error {
	data, err := s.store.FetchByStatus(ctx, portal, model.StatusFixed, true)
	if err != nil {
		return eris.Wrapf(err, "loading fixed calls for portal %s", portal)
	}
	if len(data.Records) == 0 {
		zap.L().Info("no calls to aggregate", zap.String("portal", portal))
		return nil
	}

	rollup := make(map[int]bool, len(data.Criteria))
	for _, c := range data.Criteria {
		if c.IncludeInEntityDescription {
			rollup[c.ID] = true
		}
	}

	byEntity := make(map[int]model.Entity, len(data.Entities))
	for _, e := range data.Entities {
		byEntity[e.ID] = e
	}

	groups := make(map[int]*group)
	var done []string
	for _, r := range data.Records {
		if r.EntityID == nil {
			done = append(done, r.ID)
			continue
		}
		entity, ok := byEntity[*r.EntityID]
		if !ok {
			zap.L().Warn("call references unknown entity",
				zap.String("call_id", r.ID),
				zap.Int("entity_id", *r.EntityID))
			done = append(done, r.ID)
			continue
		}
		g, ok := groups[entity.ID]
		if !ok {
			g = &group{entity: entity}
			groups[entity.ID] = g
		}
		g.calls = append(g.calls, r)
	}

	units := make([]*group, 0, len(groups))
	for _, g := range groups {
		units = append(units, g)
	}

	results := executor.Run(ctx, units, s.limit, s.retry,
		func(ctx context.Context, g *group) (model.Entity, error) {
			return s.aggregateEntity(ctx, g, rollup)
		})

	executor.Tally("aggregate", results)

	entities := executor.Succeeded(results)
	if err := s.store.SaveEntityRollups(ctx, portal, entities); err != nil {
		return eris.Wrapf(err, "saving rollups for portal %s", portal)
	}

	for _, r := range results {
		if r.OK() {
			for _, c := range r.Input.calls {
				done = append(done, c.ID)
			}
		}
	}
	if err := s.store.MarkReady(ctx, portal, done); err != nil {
		return eris.Wrapf(err, "finalizing calls for portal %s", portal)
	}
	return nil
}

// aggregateEntity folds the group's calls into the entity's rollups.
func (s *Service) aggregateEntity(ctx context.Context, g *group, rollup map[int]bool) (model.Entity, error) {
	entity := g.entity
	// A failed attempt may be retried; every attempt must read the fetched
	// rollup state, not the previous attempt's in-place updates.
	entity.Data.Criteria = slices.Clone(g.entity.Data.Criteria)

	contributions := make(map[int][]model.CriterionResult)
	var summaries []string
	for _, call := range g.calls {
		for _, cr := range call.Data.Criteria {
			if rollup[cr.ID] && (cr.Text != "" || cr.Evaluation != nil) {
				contributions[cr.ID] = append(contributions[cr.ID], cr)
			}
		}
		if call.Summary != "" {
			summaries = append(summaries, call.Summary)
		}
	}

	for id, results := range contributions {
		existing := entity.Data.Criterion(id)

		merged := model.CriterionResult{ID: id, Name: results[0].Name}
		texts := make([]string, 0, len(results)+1)
		evals := make([]*float64, 0, len(results)+1)
		if existing != nil {
			merged.Name = existing.Name
			if existing.Text != "" {
				texts = append(texts, existing.Text)
			}
			evals = append(evals, existing.Evaluation)
		}
		for _, r := range results {
			if r.Text != "" {
				texts = append(texts, r.Text)
			}
			evals = append(evals, r.Evaluation)
		}

		text, err := s.merge(ctx, texts)
		if err != nil {
			// Keep the first available value rather than losing the
			// criterion entirely.
			zap.L().Warn("criterion rollup failed, keeping first value",
				zap.Int("entity_id", entity.ID),
				zap.Int("criterion_id", id),
				zap.Error(err))
			text = texts[0]
		}
		merged.Text = text
		merged.Evaluation = meanEvaluation(evals)

		entity.Data.SetCriterion(merged)
	}

	if len(summaries) > 0 {
		texts := summaries
		if entity.Summary != "" {
			texts = append([]string{entity.Summary}, summaries...)
		}
		summary, err := s.merge(ctx, texts)
		if err != nil {
			return entity, eris.Wrapf(err, "merging summary for entity %d", entity.ID)
		}
		entity.Summary = summary
	}

	return entity, nil
}

// merge applies the rollup rule: no texts yield nothing, a single text
// is taken verbatim without a model call, several are combined.
func (s *Service) merge(ctx context.Context, texts []string) (string, error) {
	switch len(texts) {
	case 0:
		return "", nil
	case 1:
		return texts[0], nil
	default:
		return resilience.DoVal(ctx, s.retry, func(ctx context.Context) (string, error) {
			return s.summarizer.Combine(ctx, texts, s.maxWords)
		})
	}
}

// meanEvaluation averages the non-nil scores to two decimal places.
// All-nil input yields nil, keeping "never scored" distinct from zero.
func meanEvaluation(evals []*float64) *float64 {
	var sum float64
	n := 0
	for _, e := range evals {
		if e != nil {
			sum += *e
			n++
		}
	}
	if n == 0 {
		return nil
	}
	mean := math.Round(sum/float64(n)*100) / 100
	return &mean
}
