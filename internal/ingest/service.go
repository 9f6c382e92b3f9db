// Package ingest discovers new portal calls, downloads their
// recordings, uploads them to durable storage and persists call records
// in the uploaded status for the recognition stage.
package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/callsense/callsense/internal/executor"
	"github.com/callsense/callsense/internal/model"
	"github.com/callsense/callsense/internal/planner"
	"github.com/callsense/callsense/internal/resilience"
	"github.com/callsense/callsense/internal/store"
	"github.com/callsense/callsense/pkg/portal"
	"github.com/callsense/callsense/pkg/storage"
)

// CycleStats summarizes one ingestion cycle for a portal.
type CycleStats struct {
	Remote     int // calls with a recording reported by the portal
	Known      int // already persisted, skipped by the planner
	Planned    int // calls this cycle set out to persist
	Downloaded int
	Persisted  int
}

// SuccessRate is the fraction of planned calls that made it into the
// store. Local audio is cleaned up only after a perfect cycle, so a
// failed call keeps its recording around for the next attempt.
func (s CycleStats) SuccessRate() float64 {
	if s.Planned == 0 {
		return 1.0
	}
	return float64(s.Persisted) / float64(s.Planned)
}

// Options carries the per-portal knobs of the ingestion cycle.
type Options struct {
	Portal      string
	DaysBack    int
	DownloadDir string
	Downloads   int // concurrent downloads
	Uploads     int // concurrent probe-and-upload units
	Retries     int
	RetryDelay  time.Duration
}

// Prober reads audio parameters from a local file. Satisfied by
// media.Prober.
type Prober interface {
	Probe(ctx context.Context, path string) (model.AudioMetadata, error)
}

// Service runs ingestion cycles for one portal.
type Service struct {
	store    store.Store
	portal   portal.Client
	uploader storage.Uploader
	prober   Prober
	opts     Options
}

func NewService(st store.Store, pc portal.Client, up storage.Uploader, prober Prober, opts Options) *Service {
	return &Service{
		store:    st,
		portal:   pc,
		uploader: up,
		prober:   prober,
		opts:     opts,
	}
}

// downloaded pairs a remote call with its local recording path.
type downloaded struct {
	call model.RemoteCall
	path string
}

// RunCycle executes one full ingestion pass and returns its stats.
func (s *Service) RunCycle(ctx context.Context) (CycleStats, error) {
	var stats CycleStats
	retry := resilience.FixedDelay(s.opts.Retries, s.opts.RetryDelay)

	// Refresh the user directory first so new calls can reference their
	// operator.
	users, err := s.portal.ListUsers(ctx)
	if err != nil {
		return stats, eris.Wrapf(err, "listing users for portal %s", s.opts.Portal)
	}
	if err := s.store.UpsertUsers(ctx, s.opts.Portal, users); err != nil {
		return stats, err
	}

	from := time.Now().AddDate(0, 0, -s.opts.DaysBack)
	remote, err := s.portal.ListCalls(ctx, from)
	if err != nil {
		return stats, eris.Wrapf(err, "listing calls for portal %s", s.opts.Portal)
	}
	stats.Remote = len(remote)

	byID := make(map[string]model.RemoteCall, len(remote))
	remoteIDs := make([]string, 0, len(remote))
	for _, c := range remote {
		if _, seen := byID[c.ID]; seen {
			continue
		}
		byID[c.ID] = c
		remoteIDs = append(remoteIDs, c.ID)
	}

	stored, err := s.store.ListCallIDs(ctx, s.opts.Portal)
	if err != nil {
		return stats, err
	}
	local, err := s.listLocal()
	if err != nil {
		return stats, err
	}

	plan := planner.Compute(remoteIDs, stored, local)
	stats.Known = len(remoteIDs) - plan.Outstanding()
	stats.Planned = plan.Outstanding()
	zap.L().Info("ingestion plan",
		zap.String("portal", s.opts.Portal),
		zap.Int("remote", stats.Remote),
		zap.Int("download", len(plan.Download)),
		zap.Int("already_local", len(plan.Satisfied)))

	if stats.Planned == 0 {
		return stats, nil
	}

	// Download the missing recordings.
	results := executor.Run(ctx, plan.Download, s.opts.Downloads, retry,
		func(ctx context.Context, id string) (downloaded, error) {
			call := byID[id]
			dest := s.localPath(id)
			if err := s.portal.Download(ctx, call.RecordingURL, dest); err != nil {
				return downloaded{}, err
			}
			return downloaded{call: call, path: dest}, nil
		})
	executor.Tally("download", results)

	units := executor.Succeeded(results)
	stats.Downloaded = len(units)
	for _, id := range plan.Satisfied {
		units = append(units, downloaded{call: byID[id], path: s.localPath(id)})
	}

	// Probe and upload each recording, then shape the call record.
	uploaded := executor.Run(ctx, units, s.opts.Uploads, retry,
		func(ctx context.Context, d downloaded) (model.CallRecord, error) {
			return s.prepareRecord(ctx, d)
		})
	executor.Tally("upload", uploaded)

	records := executor.Succeeded(uploaded)

	// Resolve CRM references before the calls land in the store.
	if err := s.linkEntities(ctx, records, byID); err != nil {
		return stats, err
	}

	stats.Persisted, err = s.store.UpsertCalls(ctx, s.opts.Portal, records)
	if err != nil {
		return stats, err
	}

	if stats.SuccessRate() == 1.0 {
		if err := s.cleanup(); err != nil {
			zap.L().Warn("cleanup failed", zap.String("portal", s.opts.Portal), zap.Error(err))
		}
	}

	zap.L().Info("ingestion cycle complete",
		zap.String("portal", s.opts.Portal),
		zap.Int("planned", stats.Planned),
		zap.Int("persisted", stats.Persisted),
		zap.Float64("success_rate", stats.SuccessRate()))
	return stats, nil
}

// prepareRecord probes the local file, uploads it and returns the call
// record in the uploaded status.
func (s *Service) prepareRecord(ctx context.Context, d downloaded) (model.CallRecord, error) {
	meta, err := s.prober.Probe(ctx, d.path)
	if err != nil {
		return model.CallRecord{}, err
	}

	uri, err := s.uploader.Put(ctx, s.opts.Portal, d.path)
	if err != nil {
		return model.CallRecord{}, err
	}
	meta.URI = uri

	record := model.CallRecord{
		ID:          d.call.ID,
		Date:        d.call.Date,
		PhoneNumber: d.call.PhoneNumber,
		CallType:    d.call.CallType,
		Audio:       meta,
		Status:      model.StatusUploaded,
	}
	if d.call.UserID != 0 {
		uid := d.call.UserID
		record.UserID = &uid
	}
	return record, nil
}

// linkEntities fetches the CRM objects referenced by the new calls,
// upserts them and fills each record's internal entity id.
func (s *Service) linkEntities(ctx context.Context, records []model.CallRecord, byID map[string]model.RemoteCall) error {
	idsByType := make(map[model.CRMEntityType][]int)
	seen := make(map[model.EntityKey]bool)
	for _, r := range records {
		call := byID[r.ID]
		if call.EntityID == 0 || !call.EntityType.Valid() {
			continue
		}
		key := model.EntityKey{Type: call.EntityType, ExternalID: call.EntityID}
		if !seen[key] {
			seen[key] = true
			idsByType[call.EntityType] = append(idsByType[call.EntityType], call.EntityID)
		}
	}
	if len(idsByType) == 0 {
		return nil
	}

	var entities []model.Entity
	for typ, ids := range idsByType {
		fetched, err := s.portal.ListEntities(ctx, typ, ids)
		if err != nil {
			return eris.Wrapf(err, "listing %s entities for portal %s", typ, s.opts.Portal)
		}
		entities = append(entities, fetched...)
	}

	internal, err := s.store.UpsertEntities(ctx, s.opts.Portal, entities)
	if err != nil {
		return err
	}

	for i := range records {
		call := byID[records[i].ID]
		key := model.EntityKey{Type: call.EntityType, ExternalID: call.EntityID}
		if id, ok := internal[key]; ok {
			records[i].EntityID = &id
		}
	}
	return nil
}

func (s *Service) portalDir() string {
	return filepath.Join(s.opts.DownloadDir, s.opts.Portal)
}

func (s *Service) localPath(id string) string {
	return filepath.Join(s.portalDir(), id+".mp3")
}

// listLocal returns the call ids of recordings already on disk from a
// previous, partially failed cycle.
func (s *Service) listLocal() ([]string, error) {
	entries, err := os.ReadDir(s.portalDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "listing %s", s.portalDir())
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ids = append(ids, strings.TrimSuffix(name, filepath.Ext(name)))
	}
	return ids, nil
}

// cleanup removes the portal's download directory. Called only after a
// cycle persisted everything it planned.
func (s *Service) cleanup() error {
	if err := os.RemoveAll(s.portalDir()); err != nil {
		return eris.Wrapf(err, "removing %s", s.portalDir())
	}
	zap.L().Info("local recordings cleaned up", zap.String("portal", s.opts.Portal))
	return nil
}
