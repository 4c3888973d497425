package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/npa-publisher-orchestrator/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileStateStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	store, err := NewFileStateStore(path, testLogger())
	require.NoError(t, err)

	units, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, units)

	rec := &interfaces.UnitRecord{
		Key:         "npa-pub-2",
		DisplayName: "npa-pub-2",
		Ordinal:     1,
		PublisherID: "pubid-7",
		InstanceID:  "i-abc123",
		SecretPath:  interfaces.SecretPath("npa", "npa-pub-2"),
		Registered:  true,
	}
	require.NoError(t, store.Save(ctx, rec))

	// A fresh store instance sees the persisted record.
	store2, err := NewFileStateStore(path, testLogger())
	require.NoError(t, err)
	units, err = store2.Load(ctx)
	require.NoError(t, err)
	require.Contains(t, units, interfaces.UnitKey("npa-pub-2"))
	assert.Equal(t, rec, units["npa-pub-2"])

	require.NoError(t, store2.Delete(ctx, "npa-pub-2"))
	require.NoError(t, store2.Delete(ctx, "npa-pub-2"))
	units, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestFileStateStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	store, err := NewFileStateStore(path, testLogger())
	require.NoError(t, err)

	_, err = store.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt state file")
}

func TestFlockPlanLock_Exclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.lock")
	log := testLogger()

	holder := NewFlockPlanLock(path, time.Second, log)
	require.NoError(t, holder.Lock(context.Background()))

	// A second lock on the same path times out while the first is held.
	contender := NewFlockPlanLock(path, 50*time.Millisecond, log)
	err := contender.Lock(context.Background())
	require.Error(t, err)

	require.NoError(t, holder.Unlock())
	require.NoError(t, contender.Lock(context.Background()))
	require.NoError(t, contender.Unlock())
}

func TestFlockPlanLock_ForceRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.lock")
	log := testLogger()

	holder := NewFlockPlanLock(path, time.Second, log)
	require.NoError(t, holder.Lock(context.Background()))
	require.NoError(t, holder.ForceRelease())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	fresh := NewFlockPlanLock(path, time.Second, log)
	require.NoError(t, fresh.Lock(context.Background()))
	require.NoError(t, fresh.Unlock())
}
