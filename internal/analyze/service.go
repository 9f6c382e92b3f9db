// Package analyze classifies recognized calls and evaluates the
// criteria of their category. Records advance to the fixed status once
// every criterion has a result.
package analyze

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/callsense/callsense/internal/executor"
	"github.com/callsense/callsense/internal/model"
	"github.com/callsense/callsense/internal/resilience"
	"github.com/callsense/callsense/internal/store"
	"github.com/callsense/callsense/pkg/summarizer"
)

// Service runs the analysis stage over recognized and empty records.
// Empty records are analyzed with a blank transcript so that criteria
// such as "was there a conversation at all" still get a result.
type Service struct {
	store      store.Store
	summarizer *summarizer.Summarizer
	limit      int
	retry      resilience.RetryConfig
}

func NewService(st store.Store, sum *summarizer.Summarizer, limit, retries int, retryDelay time.Duration) *Service {
	return &Service{
		store:      st,
		summarizer: sum,
		limit:      limit,
		retry:      resilience.FixedDelay(retries, retryDelay),
	}
}

// Run analyzes every recognized and empty record of the portal.
func (s *Service) Run(ctx context.Context, portal string) error {
	for _, status := range []model.CallStatus{model.StatusRecognized, model.StatusEmpty} {
		if err := s.runStatus(ctx, portal, status); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) runStatus(ctx context.Context, portal string, status model.CallStatus) error {
	data, err := s.store.FetchByStatus(ctx, portal, status, true)
	if err != nil {
		return eris.Wrapf(err, "loading %s calls for portal %s", status, portal)
	}
	if len(data.Records) == 0 {
		return nil
	}
	if len(data.Categories) == 0 {
		zap.L().Warn("no categories configured, analysis skipped",
			zap.String("portal", portal),
			zap.Int("calls", len(data.Records)))
		return nil
	}

	criteria := make(map[int]model.Criterion, len(data.Criteria))
	for _, c := range data.Criteria {
		criteria[c.ID] = c
	}
	categories := make(map[int]model.Category, len(data.Categories))
	for _, c := range data.Categories {
		categories[c.ID] = c
	}

	results := executor.Run(ctx, data.Records, s.limit, s.retry,
		func(ctx context.Context, r model.CallRecord) (store.CallDataUpdate, error) {
			return s.analyzeCall(ctx, r, data.Categories, categories, criteria)
		})

	executor.Tally("analyze", results)

	if err := s.store.UpdateCallData(ctx, portal, executor.Succeeded(results)); err != nil {
		return eris.Wrapf(err, "saving analysis for portal %s", portal)
	}
	return nil
}

// analyzeCall fills in the record's category, criteria results and
// summary. Work already present on the record is kept, so a partially
// analyzed record finishes incrementally across runs. A failed
// criterion leaves its result missing rather than failing the record;
// the record then stays in place for the next run.
func (s *Service) analyzeCall(
	ctx context.Context,
	r model.CallRecord,
	all []model.Category,
	categories map[int]model.Category,
	criteria map[int]model.Criterion,
) (store.CallDataUpdate, error) {
	if r.Data.CategoryID == 0 {
		id, err := s.summarizer.Classify(ctx, r.Dialogue, all)
		if err != nil {
			return store.CallDataUpdate{}, eris.Wrapf(err, "classifying call %s", r.ID)
		}
		if cat, ok := categories[id]; ok {
			r.Data.CategoryID = cat.ID
			r.Data.Category = cat.Name
		}
	}

	category, ok := categories[r.Data.CategoryID]
	if !ok {
		// Nothing fit. Leave the record as is and let a config change
		// pick it up later.
		return store.CallDataUpdate{Record: r}, nil
	}

	existing := make(map[int]bool, len(r.Data.Criteria))
	for _, cr := range r.Data.Criteria {
		if cr.Name != "" {
			existing[cr.ID] = true
		}
	}

	covered := 0
	for _, id := range category.Criteria {
		criterion, ok := criteria[id]
		if !ok {
			continue
		}
		if existing[id] {
			covered++
			continue
		}
		result, err := s.summarizer.Evaluate(ctx, r.Dialogue, criterion)
		if err != nil {
			zap.L().Warn("criterion evaluation failed",
				zap.String("call_id", r.ID),
				zap.Int("criterion_id", id),
				zap.Error(err))
			continue
		}
		r.Data.Criteria = append(r.Data.Criteria, result)
		covered++
	}

	if r.Summary == "" && r.Dialogue != "" {
		summary, err := s.summarizer.SummarizeDialogue(ctx, r.Dialogue)
		if err != nil {
			return store.CallDataUpdate{Record: r}, eris.Wrapf(err, "summarizing call %s", r.ID)
		}
		r.Summary = summary
	}

	complete := covered == len(category.Criteria) &&
		(len(category.Criteria) == 0 || r.Data.CriteriaComplete())
	return store.CallDataUpdate{Record: r, Advance: complete}, nil
}
