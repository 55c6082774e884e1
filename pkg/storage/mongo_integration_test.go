//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func TestMongoStoreContract(t *testing.T) {
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	store, err := OpenMongo(ctx, uri, "reelwatch_test")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sample, err := store.RandomSample(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, sample)

	m := &Movie{ExternalID: 603, Title: "The Matrix", Year: "1999", Actors: "Keanu Reeves", Director: "Lana Wachowski", Overview: "Neo.", Rating: NewScore(8.2), WhereToWatch: "Check streaming platforms"}
	require.NoError(t, store.InsertMovie(ctx, m))
	require.ErrorIs(t, store.InsertMovie(ctx, m), ErrConflict)

	exists, err := store.Exists(ctx, 603)
	require.NoError(t, err)
	require.True(t, exists)

	got, err := store.GetMovie(ctx, 603)
	require.NoError(t, err)
	require.Equal(t, NewScore(8.2), got.Rating)

	_, err = store.GetMovie(ctx, 1)
	require.ErrorIs(t, err, ErrNotFound)

	base := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= 4; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		store.now = func() time.Time { return ts }
		require.NoError(t, store.LogActivity(ctx, "sync", map[string]any{"n": i}))
	}
	acts, err := store.RecentActivities(ctx, 3)
	require.NoError(t, err)
	require.Len(t, acts, 3)
	require.True(t, acts[0].Timestamp.Equal(base.Add(4*time.Minute)))
	require.True(t, acts[2].Timestamp.Equal(base.Add(2*time.Minute)))

	sample, err = store.RandomSample(ctx, 1)
	require.NoError(t, err)
	require.Len(t, sample, 1)
}
