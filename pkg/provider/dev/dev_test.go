package dev

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reelwatch/reelwatch/pkg/provider"
	"github.com/reelwatch/reelwatch/pkg/provider/tmdb"
)

func TestBatchRotates(t *testing.T) {
	p := New()
	ctx := context.Background()

	first, err := p.FetchCurrentBatch(ctx)
	require.NoError(t, err)
	require.Len(t, first, 3)

	second, err := p.FetchCurrentBatch(ctx)
	require.NoError(t, err)
	require.Len(t, second, 4)
	require.EqualValues(t, 1004, second[3].ID)
}

func TestEveryListedItemNormalizes(t *testing.T) {
	p := New()
	ctx := context.Background()
	p.FetchCurrentBatch(ctx)
	items, err := p.FetchCurrentBatch(ctx)
	require.NoError(t, err)

	for _, item := range items {
		d, err := p.FetchDetails(ctx, item.ID)
		require.NoError(t, err)
		m := p.Normalize(item, d)
		require.Equal(t, item.ID, m.ExternalID)
		require.NotEmpty(t, m.Title)
	}

	bare, _ := p.FetchDetails(ctx, 1003)
	m := p.Normalize(items[2], bare)
	require.Equal(t, tmdb.NotAvailable, m.Year)
	require.Equal(t, tmdb.NotAvailable, m.Director)
	require.Equal(t, tmdb.OverviewFallback, m.Overview)
	require.False(t, m.Rating.Known)
	require.Empty(t, m.PosterURL)
}

func TestSearch(t *testing.T) {
	p := New()
	res, err := p.SearchByTitle(context.Background(), "paper harbor")
	require.NoError(t, err)
	require.EqualValues(t, 1002, res.ID)

	_, err = p.SearchByTitle(context.Background(), "missing")
	require.ErrorIs(t, err, provider.ErrNotFound)
}

func TestUnknownDetails(t *testing.T) {
	_, err := New().FetchDetails(context.Background(), 1)
	require.ErrorIs(t, err, provider.ErrNotFound)
}
