package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callsense/callsense/internal/model"
	"github.com/callsense/callsense/internal/store"
)

type fakeStore struct {
	store.Store
	knownIDs  []string
	users     []model.User
	entities  []model.Entity
	persisted []model.CallRecord
}

func (f *fakeStore) ListCallIDs(context.Context, string) ([]string, error) {
	return f.knownIDs, nil
}

func (f *fakeStore) UpsertUsers(_ context.Context, _ string, users []model.User) error {
	f.users = append(f.users, users...)
	return nil
}

func (f *fakeStore) UpsertEntities(_ context.Context, _ string, entities []model.Entity) (map[model.EntityKey]int, error) {
	ids := make(map[model.EntityKey]int)
	for i, e := range entities {
		f.entities = append(f.entities, e)
		ids[e.Key()] = i + 1
	}
	return ids, nil
}

func (f *fakeStore) UpsertCalls(_ context.Context, _ string, records []model.CallRecord) (int, error) {
	f.persisted = append(f.persisted, records...)
	return len(records), nil
}

type fakePortal struct {
	calls     []model.RemoteCall
	users     []model.User
	entities  map[model.CRMEntityType][]model.Entity
	failCalls map[string]error
}

func (f *fakePortal) ListCalls(context.Context, time.Time) ([]model.RemoteCall, error) {
	return f.calls, nil
}

func (f *fakePortal) ListEntities(_ context.Context, typ model.CRMEntityType, _ []int) ([]model.Entity, error) {
	return f.entities[typ], nil
}

func (f *fakePortal) ListUsers(context.Context) ([]model.User, error) {
	return f.users, nil
}

func (f *fakePortal) Download(_ context.Context, url, dest string) error {
	if err, ok := f.failCalls[url]; ok {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, []byte("audio"), 0o644)
}

type fakeUploader struct {
	uploads []string
	err     error
}

func (f *fakeUploader) Put(_ context.Context, portal, localPath string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.uploads = append(f.uploads, localPath)
	return "gs://bucket/" + portal + "/" + filepath.Base(localPath), nil
}

func (f *fakeUploader) Close() error { return nil }

type fakeProber struct{}

func (fakeProber) Probe(context.Context, string) (model.AudioMetadata, error) {
	return model.AudioMetadata{
		Encoding:        "MPEG_AUDIO",
		NumChannels:     2,
		SampleRateHertz: 8000,
		DurationSeconds: 42,
	}, nil
}

func remoteCall(id string, entityType model.CRMEntityType, entityID int) model.RemoteCall {
	return model.RemoteCall{
		ID:           id,
		Date:         time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		UserID:       7,
		PhoneNumber:  "+79990001122",
		RecordingURL: "https://portal.example/rec/" + id,
		EntityID:     entityID,
		EntityType:   entityType,
		CallType:     model.CallOutbound,
	}
}

func newTestService(t *testing.T, fs *fakeStore, fp *fakePortal, fu *fakeUploader) *Service {
	t.Helper()
	return NewService(fs, fp, fu, fakeProber{}, Options{
		Portal:      "acme",
		DaysBack:    7,
		DownloadDir: t.TempDir(),
		Downloads:   2,
		Uploads:     2,
		Retries:     1,
		RetryDelay:  time.Millisecond,
	})
}

func TestRunCyclePersistsNewCalls(t *testing.T) {
	fs := &fakeStore{knownIDs: []string{"old-1"}}
	fp := &fakePortal{
		calls: []model.RemoteCall{
			remoteCall("old-1", model.EntityLead, 101),
			remoteCall("new-1", model.EntityLead, 101),
		},
		users: []model.User{{ID: 7, Name: "Anna"}},
		entities: map[model.CRMEntityType][]model.Entity{
			model.EntityLead: {{Type: model.EntityLead, ExternalID: 101, Title: "New lead"}},
		},
	}
	fu := &fakeUploader{}
	s := newTestService(t, fs, fp, fu)

	stats, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Remote)
	assert.Equal(t, 1, stats.Known)
	assert.Equal(t, 1, stats.Planned)
	assert.Equal(t, 1, stats.Persisted)
	assert.Equal(t, 1.0, stats.SuccessRate())

	require.Len(t, fs.persisted, 1)
	r := fs.persisted[0]
	assert.Equal(t, "new-1", r.ID)
	assert.Equal(t, model.StatusUploaded, r.Status)
	assert.Equal(t, "gs://bucket/acme/new-1.mp3", r.Audio.URI)
	assert.True(t, r.Audio.Complete())
	require.NotNil(t, r.UserID)
	assert.Equal(t, 7, *r.UserID)
	require.NotNil(t, r.EntityID)
	assert.Equal(t, 1, *r.EntityID)

	assert.Equal(t, []model.User{{ID: 7, Name: "Anna"}}, fs.users)
	require.Len(t, fs.entities, 1)
}

func TestRunCycleCleansUpAfterPerfectCycle(t *testing.T) {
	fs := &fakeStore{}
	fp := &fakePortal{calls: []model.RemoteCall{remoteCall("new-1", "", 0)}}
	fu := &fakeUploader{}
	s := newTestService(t, fs, fp, fu)

	_, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	_, statErr := os.Stat(s.portalDir())
	assert.True(t, os.IsNotExist(statErr), "download dir must be removed after a perfect cycle")
}

func TestRunCycleKeepsFilesAfterPartialFailure(t *testing.T) {
	fs := &fakeStore{}
	fp := &fakePortal{
		calls: []model.RemoteCall{
			remoteCall("good-1", "", 0),
			remoteCall("bad-1", "", 0),
		},
		failCalls: map[string]error{
			"https://portal.example/rec/bad-1": eris.New("gateway timeout"),
		},
	}
	fu := &fakeUploader{}
	s := newTestService(t, fs, fp, fu)

	stats, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Planned)
	assert.Equal(t, 1, stats.Persisted)
	assert.Less(t, stats.SuccessRate(), 1.0)

	_, statErr := os.Stat(filepath.Join(s.portalDir(), "good-1.mp3"))
	assert.NoError(t, statErr, "recordings must survive a partial failure")
}

func TestRunCyclePicksUpLeftoverLocalFiles(t *testing.T) {
	fs := &fakeStore{}
	fp := &fakePortal{calls: []model.RemoteCall{remoteCall("left-1", "", 0)}}
	fu := &fakeUploader{}
	s := newTestService(t, fs, fp, fu)

	// A previous cycle downloaded the file but never persisted it.
	require.NoError(t, os.MkdirAll(s.portalDir(), 0o755))
	require.NoError(t, os.WriteFile(s.localPath("left-1"), []byte("audio"), 0o644))

	stats, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Downloaded, "leftover file must not be downloaded again")
	assert.Equal(t, 1, stats.Persisted)
	require.Len(t, fu.uploads, 1)
}

func TestRunCycleNothingToDo(t *testing.T) {
	fs := &fakeStore{knownIDs: []string{"old-1"}}
	fp := &fakePortal{calls: []model.RemoteCall{remoteCall("old-1", "", 0)}}
	fu := &fakeUploader{}
	s := newTestService(t, fs, fp, fu)

	stats, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Planned)
	assert.Empty(t, fs.persisted)
	assert.Equal(t, 1.0, stats.SuccessRate())
}
