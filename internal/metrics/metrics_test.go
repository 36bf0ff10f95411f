package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(verificationOutcomesTotal.WithLabelValues("verified"))
	IncOutcome("verified")
	IncOutcome("verified")
	require.Equal(t, before+2, testutil.ToFloat64(verificationOutcomesTotal.WithLabelValues("verified")))

	before = testutil.ToFloat64(eventsTotal.WithLabelValues("join", "ok"))
	IncEvent("join", "ok")
	require.Equal(t, before+1, testutil.ToFloat64(eventsTotal.WithLabelValues("join", "ok")))

	SetPending(3)
	require.Equal(t, float64(3), testutil.ToFloat64(pendingVerifications))
	SetPending(0)
	require.Equal(t, float64(0), testutil.ToFloat64(pendingVerifications))
}
