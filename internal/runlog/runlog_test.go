package runlog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/portmark/internal/storage"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "portmark.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestStartAndFinish(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	id, err := s.Start(ctx, StartRequest{Controller: "10.0.0.5:30004", Carton: "frozen_small", Side: "A", Tasks: 7})
	require.NoError(t, err)

	r, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, r.Status)
	assert.Equal(t, 7, r.Tasks)
	assert.Nil(t, r.CompletedAt)
	assert.Zero(t, r.Duration())

	require.NoError(t, s.Finish(ctx, id, StatusFailed, 42, errors.New("connection lost")))

	r, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, 42, r.Cycles)
	require.NotNil(t, r.CompletedAt)
	require.NotNil(t, r.LastError)
	assert.Equal(t, "connection lost", *r.LastError)
}

func TestFinishValidates(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	assert.Error(t, s.Finish(ctx, "", StatusSucceeded, 0, nil))
	assert.Error(t, s.Finish(ctx, "x", StatusRunning, 0, nil))
	assert.ErrorIs(t, s.Finish(ctx, "missing", StatusSucceeded, 0, nil), ErrRunNotFound)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = s.Start(ctx, StartRequest{Carton: "testing"})
	assert.Error(t, err)
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	var ids []string
	for _, carton := range []string{"testing", "frozen_small", "chilled_large"} {
		id, err := s.Start(ctx, StartRequest{Controller: "sim", Carton: carton, Side: "B", Tasks: 1})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	runs, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
}
