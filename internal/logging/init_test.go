package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	t.Cleanup(func() {
		require.NoError(t, Setup("", ""))
	})

	require.NoError(t, Setup("", ""))
	require.Equal(t, logrus.InfoLevel, logrus.GetLevel())
	require.IsType(t, &logrus.TextFormatter{}, logrus.StandardLogger().Formatter)

	require.NoError(t, Setup("warning", "JSON"))
	require.Equal(t, logrus.WarnLevel, logrus.GetLevel())
	require.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)

	require.Error(t, Setup("loud", "text"))
	require.Error(t, Setup("info", "xml"))
}
