package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	// These should not panic.
	m.TokenIssued("access_token", "client_credentials")
	m.TokenRevoked("refresh_token")
	m.SweptFamily("token", 1, 2, 3)
	m.SweepDuration(time.Second)
	m.JWKSFetched(nil)
}

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	m, err := New(reg)
	require.NoError(t, err)

	m.TokenIssued("access_token", "client_credentials")
	m.TokenIssued("access_token", "client_credentials")
	m.TokenRevoked("refresh_token")
	m.SweptFamily("client", 2, 1, 0)
	m.JWKSFetched(errors.New("timeout"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.tokensIssued.WithLabelValues("access_token", "client_credentials")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tokensRevoked.WithLabelValues("refresh_token")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sweepDeletions.WithLabelValues("client")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepSkips.WithLabelValues("client")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jwksFetches.WithLabelValues("failure")))
}

func TestNew_RegisteringTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}
