package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"studiobook/kvstore"
)

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	require.NoError(t, store.Write(ctx, "services", `[{"id":"1","title":"Photography Session"}]`))
	require.NoError(t, store.Write(ctx, "bookings", `[]`))
	require.NoError(t, store.Write(ctx, "adminToken", "raw-token"))

	dir := filepath.Join(t.TempDir(), "backups")
	now := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)

	path, err := Snapshot(ctx, store, dir, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "studiobook-20240304T050607.000Z.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.True(t, gjson.Valid(content))
	assert.Equal(t, "Photography Session", gjson.Get(content, "services.0.title").String())
	assert.True(t, gjson.Get(content, "bookings").IsArray())
	assert.Equal(t, "raw-token", gjson.Get(content, "adminToken").String(), "non-JSON values are kept as strings")

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestSnapshot_EmptyStore(t *testing.T) {
	path, err := Snapshot(context.Background(), kvstore.NewMemoryStore(), t.TempDir(), time.Now())
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
}

func TestNewScheduler_InvalidSchedule(t *testing.T) {
	_, err := NewScheduler(kvstore.NewMemoryStore(), t.TempDir(), "every tuesday")
	assert.Error(t, err)
}

func TestScheduler_StartStop(t *testing.T) {
	dir := t.TempDir()
	store := kvstore.NewMemoryStore()
	require.NoError(t, store.Write(context.Background(), "videos", `[]`))

	s, err := NewScheduler(store, dir, "@every 1s")
	require.NoError(t, err)
	s.Start()

	assert.Eventually(t, func() bool {
		matches, _ := filepath.Glob(filepath.Join(dir, "studiobook-*.json"))
		return len(matches) > 0
	}, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(ctx)
}
