package utils

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSyncLockExcludesSecondHolder(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reelwatch.sqlite")

	first, err := NewSyncLock(dbPath)
	require.NoError(t, err)
	second, err := NewSyncLock(dbPath)
	require.NoError(t, err)

	ok, err := first.TryLock()
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.TryLock()
	require.NoError(t, err)
	require.False(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 600*time.Millisecond)
	defer cancel()
	require.Error(t, second.Lock(ctx))

	require.NoError(t, first.Unlock())
	require.NoError(t, second.Lock(context.Background()))
	require.NoError(t, second.Unlock())
}

func TestSetLogLevelParsing(t *testing.T) {
	require.NoError(t, SetLogLevel("WARN"))
	require.Error(t, SetLogLevel("loud"))
	require.NoError(t, SetLogLevel("info"))
}
