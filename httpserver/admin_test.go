package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/npa-publisher-orchestrator/interfaces"
	"github.com/ruteri/npa-publisher-orchestrator/orchestrator"
)

func newAdminTestServer(t *testing.T) (*Server, interfaces.StateStore, interfaces.PlanLock) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	state, err := orchestrator.NewFileStateStore(filepath.Join(dir, "state.json"), logger)
	require.NoError(t, err)
	lock := orchestrator.NewFlockPlanLock(filepath.Join(dir, "plan.lock"), time.Second, logger)

	handler := NewHandler(&fakeReconciler{}, "npa-pub", 1, logger)
	admin := NewAdminHandler(state, lock, logger)
	srv, err := New(&HTTPServerConfig{
		ListenAddr: "127.0.0.1:0",
		Log:        logger,
	}, handler, admin)
	require.NoError(t, err)
	return srv, state, lock
}

func TestHandleState(t *testing.T) {
	srv, state, _ := newAdminTestServer(t)
	router := srv.getRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/state", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"units":{}}`, rec.Body.String())

	require.NoError(t, state.Save(context.Background(), &interfaces.UnitRecord{
		Key:         "npa-pub",
		DisplayName: "npa-pub",
		PublisherID: "pubid-1",
		InstanceID:  "i-abc123",
		Registered:  true,
	}))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/state", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Units map[interfaces.UnitKey]*interfaces.UnitRecord `json:"units"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp.Units, interfaces.UnitKey("npa-pub"))
	assert.Equal(t, "pubid-1", resp.Units["npa-pub"].PublisherID)
}

func TestHandleForceUnlock(t *testing.T) {
	srv, _, lock := newAdminTestServer(t)
	router := srv.getRouter()

	// Simulate a crashed run that left the lock held.
	require.NoError(t, lock.Lock(context.Background()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/force-unlock", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"lock released"}`, rec.Body.String())

	// The lock is usable again.
	require.NoError(t, lock.Lock(context.Background()))
	require.NoError(t, lock.Unlock())
}

func TestAdminEndpointsUnmountedWithoutHandler(t *testing.T) {
	srv := newTestServer(t, &fakeReconciler{})

	rec := httptest.NewRecorder()
	srv.getRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/state", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
