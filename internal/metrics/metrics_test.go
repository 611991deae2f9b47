package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConformanceMetrics(t *testing.T) {
	t.Run("case counter accumulates by operator and status", func(t *testing.T) {
		before := testutil.ToFloat64(CasesTotal.WithLabelValues("op_a", "passed"))
		CasesTotal.WithLabelValues("op_a", "passed").Inc()
		CasesTotal.WithLabelValues("op_a", "passed").Inc()
		assert.Equal(t, before+2, testutil.ToFloat64(CasesTotal.WithLabelValues("op_a", "passed")))
	})

	t.Run("phase histograms accept observations", func(t *testing.T) {
		assert.NotPanics(t, func() {
			DevicePhaseDuration.WithLabelValues("op_a").Observe(1.5)
			HostPhaseDuration.WithLabelValues("op_a").Observe(0.3)
		})
	})

	t.Run("gauges hold the last value", func(t *testing.T) {
		TheoryGFLOPS.WithLabelValues("op_a").Set(12.5)
		assert.Equal(t, 12.5, testutil.ToFloat64(TheoryGFLOPS.WithLabelValues("op_a")))

		DeviceMemoryUsedBytes.Set(1024)
		assert.Equal(t, 1024.0, testutil.ToFloat64(DeviceMemoryUsedBytes))
	})
}

func TestMiddleware(t *testing.T) {
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), "/test")

	before := testutil.ToFloat64(EndpointResponses.WithLabelValues("/test", "418"))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	assert.Equal(t, before+1, testutil.ToFloat64(EndpointResponses.WithLabelValues("/test", "418")))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(EndpointDuration), 1)
}
