package harness

import (
	"encoding/json"
	"net/http"

	"github.com/accelmark/opcheck/internal/cases"
	"github.com/accelmark/opcheck/internal/executor"
	"github.com/accelmark/opcheck/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ConformanceHandler runs one case per request: the body is a JSON case
// (operator, params, tensors or seed) and the response is the case report.
func ConformanceHandler(runner *Runner, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var c cases.Case
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if c.Name == "" {
			c.Name = "http"
		}

		rep := runner.Run(r.Context(), &c)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(rep); err != nil {
			log.Error("failed to encode case report", zap.Error(err))
		}
	}
}

// OperatorsHandler lists the registered operator names.
func OperatorsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string][]string{"operators": executor.Names()})
	}
}

// NewMux wires the harness endpoints with response metrics.
func NewMux(runner *Runner, log *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/conformance", metrics.Middleware(ConformanceHandler(runner, log), "/conformance"))
	mux.Handle("/operators", metrics.Middleware(OperatorsHandler(), "/operators"))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
