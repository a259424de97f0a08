// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	service "github.com/okian/blastppv/internal/app"
	"github.com/okian/blastppv/internal/domain/features"
	"github.com/okian/blastppv/internal/domain/model"
	"github.com/okian/blastppv/pkg/logger"
)

const defaultMaxFormBytes int64 = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Predict(ctx context.Context, src features.Source) (service.Result, error)
	Ready(ctx context.Context) error
	ModelInfo() model.Info
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	predictHandler *PredictHandler
	logger         logger.Logger
}

type options struct {
	granularStatus bool
	maxFormBytes   int64
	logger         logger.Logger
}

// Option configures the API server.
type Option func(*options)

// WithGranularStatus maps parse failures to 400 and an unloaded model to 503
// instead of the uniform 500.
func WithGranularStatus(enabled bool) Option {
	return func(o *options) {
		o.granularStatus = enabled
	}
}

// WithMaxFormBytes limits the size of a /predict request body.
func WithMaxFormBytes(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxFormBytes = n
		}
	}
}

// WithLogger sets the logger used by handlers and middleware.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	o := options{maxFormBytes: defaultMaxFormBytes}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Named("api")
	}
	return &Server{
		healthHandler:  NewHealthHandler(deps),
		statsHandler:   NewStatsHandler(deps),
		predictHandler: NewPredictHandler(deps, o.logger, o.granularStatus, o.maxFormBytes),
		logger:         o.logger,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	wrap := func(h http.HandlerFunc, endpoint string) http.HandlerFunc {
		return RecoverMiddleware(RequestIDMiddleware(MetricsMiddleware(h, endpoint)), s.logger)
	}

	mux.HandleFunc("/predict", wrap(s.predictHandler.HandlePredict, "predict"))
	mux.HandleFunc("/healthz", wrap(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/readyz", wrap(s.healthHandler.HandleReady, "readyz"))
	mux.HandleFunc("/stats", wrap(s.statsHandler.HandleStats, "stats"))
	mux.Handle("/metrics", s.healthHandler.MetricsHandler())
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v before committing the status, so an unencodable value
// becomes a 500 error envelope instead of an empty body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorResponse{Error: ErrInternal.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}
