package rpcServer

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Layr-Labs/marketplace-indexer/pkg/metrics/metricsTypes"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *RpcServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Sugar().Errorw("Failed to encode response", zap.Error(err))
	}
}

func (s *RpcServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, &errorResponse{Error: message})
}

// parseUintParam returns nil when the parameter is absent.
func parseUintParam(r *http.Request, name string) (*uint64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, errors.Errorf("invalid '%s': %s", name, raw)
	}
	return &v, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// metricsMiddleware labels requests by route template so ids in the path do
// not explode cardinality.
func (s *RpcServer) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}

		s.Logger.Sugar().Debugw("Handled request",
			zap.String("method", r.Method),
			zap.String("path", path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
		if s.metricsSink == nil {
			return
		}
		labels := []metricsTypes.MetricsLabel{
			{Name: "method", Value: r.Method},
			{Name: "path", Value: path},
			{Name: "status_code", Value: strconv.Itoa(rec.status)},
		}
		_ = s.metricsSink.Incr(metricsTypes.Metric_Incr_HttpRequest, labels, 1)
		_ = s.metricsSink.Timing(metricsTypes.Metric_Timing_HttpDuration, time.Since(start), labels)
	})
}

// adminAuthMiddleware rejects requests whose token header does not match the
// configured admin token. No token configured means no admin access.
func (s *RpcServer) adminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := s.rpcConfig.AdminToken
		got := r.Header.Get(AdminTokenHeader)
		if want == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			s.Logger.Sugar().Warnw("Rejected admin request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Bool("tokenConfigured", want != ""),
				zap.Bool("tokenPresent", got != ""),
			)
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
