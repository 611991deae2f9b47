package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EndpointResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "endpoint_responses_total",
		Help: "The total number of endpoint responses",
	}, []string{"endpoint", "status_code"})

	EndpointDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "endpoint_duration_ms",
		Help:    "Wall time spent handling a request in milliseconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 16),
	}, []string{"endpoint"})

	// Conformance case metrics
	CasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conformance_cases_total",
		Help: "Conformance test cases by operator and outcome",
	}, []string{"operator", "status"})

	DevicePhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "conformance_device_phase_ms",
		Help:    "Duration of the device compute phase in milliseconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 16), // 0.1ms to ~3s
	}, []string{"operator"})

	HostPhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "conformance_host_phase_ms",
		Help:    "Duration of the host reference phase in milliseconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 16),
	}, []string{"operator"})

	TheoryGFLOPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "conformance_theory_gflops",
		Help: "Theoretical throughput of the last case, from the theory op count and device phase time",
	}, []string{"operator"})

	CompareMismatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conformance_mismatched_elements_total",
		Help: "Output elements that exceeded the comparison tolerance",
	}, []string{"operator", "tensor"})

	// Device metrics
	DeviceMemoryUsedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "device_memory_used_bytes",
		Help: "Device memory currently in use in bytes",
	})
)
