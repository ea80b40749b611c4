package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NotNil(t, m)

	m.RecordGateDecision(true, "admin")
	m.RecordGateDecision(false, "no_session")
	m.RecordGateDecision(false, "no_session")

	assert.InDelta(t, 1, testutil.ToFloat64(m.GateDecisions.WithLabelValues(ResultAllow, "admin")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.GateDecisions.WithLabelValues(ResultDeny, "no_session")), 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

type reusedToken struct{}

func (reusedToken) Error() string      { return "refresh token reused" }
func (reusedToken) ErrorClass() string { return "invalid_refresh_token" }

func TestRecordAuthFailure_LabelsByErrorClass(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordAuthFailure("refresh", fmt.Errorf("refresh: %w", reusedToken{}))
	m.RecordAuthFailure("refresh", errors.New("boom"))
	m.RecordAuthFailure("refresh", nil)

	assert.Equal(t, 2, testutil.CollectAndCount(m.AuthFailures))
	assert.InDelta(t, 1, testutil.ToFloat64(m.AuthFailures.WithLabelValues("refresh", "invalid_refresh_token")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.AuthFailures.WithLabelValues("refresh", "other")), 0)
}

func TestObserveHTTP(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveHTTP("GET", 303, 5*time.Millisecond)
	assert.InDelta(t, 1, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "303")), 0)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordGateDecision(true, "x")
		m.RecordAuthEvent("SIGNED_IN")
		m.RecordAuthFailure("sign_in", errors.New("x"))
		m.ObserveHTTP("GET", 200, time.Millisecond)
	})
}
