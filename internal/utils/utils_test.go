package utils

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestSetLogLevel(t *testing.T) {
	t.Cleanup(func() { Log.SetLevel(logrus.InfoLevel) })

	require.NoError(t, SetLogLevel("WARN"))
	require.Equal(t, logrus.WarnLevel, Log.GetLevel())
	require.Error(t, SetLogLevel("trace"))
}

func TestDiscardIsSilent(t *testing.T) {
	l, ok := Discard.(*logrus.Logger)
	require.True(t, ok)
	require.False(t, l.IsLevelEnabled(logrus.ErrorLevel))
	Discard.WithField("k", "v").Errorf("dropped %d", 1)
}
