package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callsense/callsense/internal/model"
	"github.com/callsense/callsense/internal/resilience"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "1", "token", WithRateLimit(1000))
}

func TestListCallsPaginatesAndFilters(t *testing.T) {
	var starts []int
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/1/token/voximplant.statistic.get.json", r.URL.Path)

		var params map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		start := int(params["start"].(float64))
		starts = append(starts, start)

		if start == 0 {
			next := 1
			writeEnvelope(t, w, []map[string]any{
				{
					"ID":              "call-1",
					"CALL_START_DATE": "2025-06-01T10:00:00+03:00",
					"PORTAL_USER_ID":  "7",
					"PHONE_NUMBER":    "+79990001122",
					"CALL_RECORD_URL": "https://portal.example/rec/1",
					"CRM_ENTITY_ID":   "101",
					"CRM_ENTITY_TYPE": "LEAD",
					"CALL_TYPE":       "1",
				},
				{
					"ID":              "call-2",
					"CALL_START_DATE": "2025-06-01T11:00:00+03:00",
					"CALL_RECORD_URL": "",
				},
			}, &next)
			return
		}
		writeEnvelope(t, w, []map[string]any{
			{
				"ID":              "call-3",
				"CALL_START_DATE": "2025-06-01T12:00:00+03:00",
				"CALL_RECORD_URL": "https://portal.example/rec/3",
				"CALL_TYPE":       "2",
			},
		}, nil)
	}

	c := newTestClient(t, handler)
	calls, err := c.ListCalls(context.Background(), time.Now().AddDate(0, 0, -7))
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, starts)
	require.Len(t, calls, 2, "calls without a recording must be dropped")

	assert.Equal(t, "call-1", calls[0].ID)
	assert.Equal(t, 7, calls[0].UserID)
	assert.Equal(t, 101, calls[0].EntityID)
	assert.Equal(t, model.EntityLead, calls[0].EntityType)
	assert.Equal(t, model.CallOutbound, calls[0].CallType)

	assert.Equal(t, "call-3", calls[1].ID)
	assert.Equal(t, model.CallInbound, calls[1].CallType)
}

func TestListUsers(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/1/token/user.get.json", r.URL.Path)
		writeEnvelope(t, w, []map[string]any{
			{"ID": "7", "NAME": "Anna", "LAST_NAME": "Ivanova", "UF_DEPARTMENT": []int{1, 3}},
		}, nil)
	}

	c := newTestClient(t, handler)
	users, err := c.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, model.User{ID: 7, Name: "Anna", LastName: "Ivanova", Departments: []int{1, 3}}, users[0])
}

func TestListEntitiesUsesTypedMethod(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/1/token/crm.deal.list.json", r.URL.Path)
		writeEnvelope(t, w, []map[string]any{
			{"ID": "55", "TITLE": "Big deal"},
		}, nil)
	}

	c := newTestClient(t, handler)
	entities, err := c.ListEntities(context.Background(), model.EntityDeal, []int{55})
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, model.EntityDeal, entities[0].Type)
	assert.Equal(t, 55, entities[0].ExternalID)
	assert.Equal(t, "Big deal", entities[0].Title)
}

func TestListEntitiesEmptyIDs(t *testing.T) {
	c := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Fatal("no request expected for an empty id list")
	})
	entities, err := c.ListEntities(context.Background(), model.EntityLead, nil)
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestCallSurfacesPortalError(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error":             "INVALID_TOKEN",
			"error_description": "webhook token revoked",
		})
	}

	c := newTestClient(t, handler)
	_, err := c.ListUsers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_TOKEN")
}

func TestCallMarksServerErrorsTransient(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	c := newTestClient(t, handler)
	_, err := c.ListUsers(context.Background())
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestDownloadWritesFile(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("audio-bytes"))
	}
	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "1", "token", WithRateLimit(1000))
	dest := filepath.Join(t.TempDir(), "acme", "call-1.mp3")
	require.NoError(t, c.Download(context.Background(), srv.URL, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "audio-bytes", string(data))
}

func TestDownloadNotFoundIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "1", "token", WithRateLimit(1000))
	err := c.Download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "x.mp3"))
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func writeEnvelope(t *testing.T, w http.ResponseWriter, result any, next *int) {
	t.Helper()
	env := map[string]any{"result": result}
	if next != nil {
		env["next"] = *next
	}
	require.NoError(t, json.NewEncoder(w).Encode(env))
}
