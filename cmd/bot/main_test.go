package main

import (
	"testing"

	"github.com/C4T-BuT-S4D/gatekeeper/internal/journal"
	"github.com/stretchr/testify/require"
)

func TestBotSettingsKeepUpdateOrder(t *testing.T) {
	settings := botSettings("token", journal.New(nil))

	require.True(t, settings.Synchronous)
	require.Equal(t, "token", settings.Token)
	require.NotNil(t, settings.OnError)
}
