package project

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/scopeguard/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "scopeguard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	s.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestStorePutGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved, err := s.Put(ctx, model.Project{
		ID:           "promo",
		Name:         "Drone Launch Promo",
		Description:  "60-second edit",
		Deliverables: []string{"Edited master", "Social cutdowns"},
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), saved.UpdatedAt)

	got, err := s.Get(ctx, "promo")
	require.NoError(t, err)
	assert.Equal(t, "Drone Launch Promo", got.Name)
	assert.Equal(t, []string{"Edited master", "Social cutdowns"}, got.Deliverables)
	assert.True(t, got.UpdatedAt.Equal(saved.UpdatedAt))
}

func TestStorePutReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, model.Project{ID: "p", Name: "Old", Description: "old"})
	require.NoError(t, err)
	_, err = s.Put(ctx, model.Project{ID: "p", Name: "New"})
	require.NoError(t, err)

	got, err := s.Get(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, "New", got.Name)
	assert.Empty(t, got.Description)
	assert.Nil(t, got.Deliverables)
}

func TestStoreGetUnknown(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrProjectNotFound)
}

func TestStorePutValidates(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Put(context.Background(), model.Project{ID: " ", Name: "x"})
	assert.Error(t, err)
	_, err = s.Put(context.Background(), model.Project{ID: "x"})
	assert.Error(t, err)
}

func TestStoreList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"b", "a", "c"} {
		_, err := s.Put(ctx, model.Project{ID: id, Name: "Project " + id})
		require.NoError(t, err)
	}

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "c", list[2].ID)
}
