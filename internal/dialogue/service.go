package dialogue

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/callsense/callsense/internal/executor"
	"github.com/callsense/callsense/internal/model"
	"github.com/callsense/callsense/internal/resilience"
	"github.com/callsense/callsense/internal/store"
	"github.com/callsense/callsense/pkg/recognizer"
)

// Service runs the recognition stage: uploaded records get their
// recording transcribed and move to recognized, or to empty when the
// recording holds no speech.
type Service struct {
	store      store.Store
	recognizer recognizer.Recognizer
	limit      int
	retry      resilience.RetryConfig
}

func NewService(st store.Store, rec recognizer.Recognizer, limit, retries int, retryDelay time.Duration) *Service {
	return &Service{
		store:      st,
		recognizer: rec,
		limit:      limit,
		retry:      resilience.FixedDelay(retries, retryDelay),
	}
}

// Run transcribes every uploaded record of the portal. Records whose
// audio metadata is incomplete are skipped and picked up again once a
// later ingestion fills the gaps.
func (s *Service) Run(ctx context.Context, portal string) error {
	data, err := s.store.FetchByStatus(ctx, portal, model.StatusUploaded, false)
	if err != nil {
		return eris.Wrapf(err, "loading uploaded calls for portal %s", portal)
	}

	var ready []model.CallRecord
	for _, r := range data.Records {
		if !r.Audio.Complete() {
			zap.L().Warn("skipping call with incomplete audio metadata",
				zap.String("portal", portal),
				zap.String("call_id", r.ID))
			continue
		}
		ready = append(ready, r)
	}
	if len(ready) == 0 {
		zap.L().Info("no calls to recognize", zap.String("portal", portal))
		return nil
	}

	results := executor.Run(ctx, ready, s.limit, s.retry,
		func(ctx context.Context, r model.CallRecord) (store.DialogueUpdate, error) {
			utterances, err := s.recognizer.Recognize(ctx, r.Audio)
			if err != nil {
				return store.DialogueUpdate{}, eris.Wrapf(err, "recognizing call %s", r.ID)
			}

			update := store.DialogueUpdate{ID: r.ID, Dialogue: Build(utterances)}
			if update.Dialogue == "" {
				update.Status = model.StatusEmpty
			} else {
				update.Status = model.StatusRecognized
			}
			return update, nil
		})

	executor.Tally("recognize", results)

	updates := executor.Succeeded(results)
	if err := s.store.UpdateDialogues(ctx, portal, updates); err != nil {
		return eris.Wrapf(err, "saving dialogues for portal %s", portal)
	}
	return nil
}
