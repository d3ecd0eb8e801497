package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTimerDuration tests duration measurement
func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	require.False(t, timer.start.IsZero())

	sleepDuration := 20 * time.Millisecond
	time.Sleep(sleepDuration)

	assert.GreaterOrEqual(t, timer.Duration(), sleepDuration)
}

// TestTimerObserveDurationVec tests histogram vec observation
func TestTimerObserveDurationVec(t *testing.T) {
	vec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_stabilization_seconds",
			Help:    "Test histogram vec",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "outcome"},
	)

	NewTimer().ObserveDurationVec(vec, "web", "stabilized")

	assert.Equal(t, 1, testutil.CollectAndCount(vec))
}

func TestPushSkippedWithoutURL(t *testing.T) {
	assert.NoError(t, Push(context.Background(), "", "ecsdeploy"))
}

func TestPushSendsToGateway(t *testing.T) {
	var method, path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	RunsTotal.WithLabelValues("success").Inc()

	require.NoError(t, Push(context.Background(), server.URL, "ecsdeploy"))
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/ecsdeploy", path)
}

func TestPushReportsGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := Push(context.Background(), server.URL, "ecsdeploy")
	assert.Error(t, err)
}
