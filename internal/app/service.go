// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/okian/blastppv/internal/domain/features"
	"github.com/okian/blastppv/internal/domain/model"
	"github.com/okian/blastppv/pkg/logger"
	"github.com/okian/blastppv/pkg/metrics"
)

const (
	defaultCacheSize = 1024
	ppvDecimals      = 2
)

// Result is the outcome of one successful prediction.
type Result struct {
	// PPV is the prediction rounded to two decimals.
	PPV float64
	// Raw is the unrounded model output.
	Raw float64
	// Record is the coerced model input.
	Record features.Record
	// Cached reports whether the value came from the record cache.
	Cached bool
}

type cached struct {
	ppv float64
	raw float64
}

// Service turns raw form input into PPV predictions using the model handle
// resolved at startup. It holds no per-request state.
type Service struct {
	handle    model.Handle
	cacheSize int
	cache     *lru.Cache[string, cached]
	metrics   *metrics.Manager
	logger    logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithHandle sets the model handle produced at startup.
func WithHandle(h model.Handle) Option {
	return func(s *Service) {
		s.handle = h
	}
}

// WithCacheSize bounds the prediction cache. Zero disables caching.
func WithCacheSize(size int) Option {
	return func(s *Service) {
		if size >= 0 {
			s.cacheSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics manager; the process-wide one is the default.
func WithMetrics(m *metrics.Manager) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// New constructs a new Service. Without WithHandle the model is unavailable.
func New(opts ...Option) *Service {
	s := &Service{
		cacheSize: defaultCacheSize,
		metrics:   metrics.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("predictor")
	}
	if s.cacheSize > 0 {
		if c, err := lru.New[string, cached](s.cacheSize); err == nil {
			s.cache = c
		}
	}

	info := s.handle.Info()
	s.metrics.SetModelLoaded(s.handle.State() == model.StateLoaded)
	if s.handle.State() == model.StateLoaded {
		s.metrics.SetModelInfo(info.Name, info.Version, info.Kind)
	}
	return s
}

// Predict coerces src into a feature record and returns the rounded PPV.
// Errors are *features.ParseError, or wrap model.ErrUnavailable or
// model.ErrPrediction.
func (s *Service) Predict(ctx context.Context, src features.Source) (Result, error) {
	p, err := s.handle.Predictor()
	if err != nil {
		s.metrics.RecordPrediction(metrics.OutcomeUnavailable)
		return Result{}, err
	}

	rec, err := features.Parse(src)
	if err != nil {
		s.metrics.RecordPrediction(metrics.OutcomeParse)
		return Result{}, err
	}
	for _, name := range rec.Defaulted() {
		s.metrics.RecordDefaultedField(name)
	}
	s.logger.Debug(ctx, "processed input data",
		logger.String("record", rec.String()),
		logger.Any("defaulted", rec.Defaulted()),
	)

	key := rec.Key()
	if s.cache != nil {
		if hit, ok := s.cache.Get(key); ok {
			s.metrics.RecordCacheHit()
			s.metrics.RecordPrediction(metrics.OutcomeSuccess)
			s.metrics.RecordPredictedPPV(hit.ppv)
			s.logger.Info(ctx, "prediction successful",
				logger.Float64("predicted_ppv", hit.ppv),
				logger.Bool("cached", true),
			)
			return Result{PPV: hit.ppv, Raw: hit.raw, Record: rec, Cached: true}, nil
		}
		s.metrics.RecordCacheMiss()
	}

	start := time.Now()
	raw, err := p.Predict(ctx, rec)
	elapsed := time.Since(start)
	s.metrics.RecordPredictionLatency(float64(elapsed.Microseconds()) / 1000)
	ppv := Round(raw, ppvDecimals)
	if err == nil && !finite(raw, ppv) {
		err = fmt.Errorf("non-finite prediction %v", raw)
	}
	if err != nil {
		s.metrics.RecordPrediction(metrics.OutcomePrediction)
		return Result{}, fmt.Errorf("%w: %w", model.ErrPrediction, err)
	}

	if s.cache != nil {
		s.cache.Add(key, cached{ppv: ppv, raw: raw})
	}
	s.metrics.RecordPrediction(metrics.OutcomeSuccess)
	s.metrics.RecordPredictedPPV(ppv)
	s.logger.Info(ctx, "prediction successful",
		logger.Float64("predicted_ppv", ppv),
		logger.Duration("latency", elapsed),
	)
	return Result{PPV: ppv, Raw: raw, Record: rec}, nil
}

// maxFractional is the magnitude above which a float64 has no fractional
// digits left to round.
const maxFractional = 1 << 52

// Round rounds v to the given number of decimals, half away from zero.
// Negative zero is normalized to zero. Values too large to scale are
// returned unchanged.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	scaled := v * p
	if math.IsNaN(scaled) || math.Abs(scaled) >= maxFractional {
		return v
	}
	r := math.Round(scaled) / p
	if r == 0 {
		return 0
	}
	return r
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Ready returns nil when the model loaded, otherwise the load failure
// wrapped in model.ErrUnavailable.
func (s *Service) Ready(_ context.Context) error {
	if s.handle.State() == model.StateLoaded {
		return nil
	}
	return fmt.Errorf("%w: %w", model.ErrUnavailable, s.handle.Reason())
}

// ModelInfo describes the loaded model.
func (s *Service) ModelInfo() model.Info {
	return s.handle.Info()
}

// ModelState reports the handle state.
func (s *Service) ModelState() model.State {
	return s.handle.State()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	stats := map[string]any{
		"modelState": s.handle.State().String(),
		"cacheSize":  s.cacheSize,
	}
	if s.handle.State() == model.StateLoaded {
		stats["model"] = s.handle.Info()
	} else if reason := s.handle.Reason(); reason != nil {
		stats["modelError"] = reason.Error()
	}
	if s.cache != nil {
		stats["cacheEntries"] = s.cache.Len()
	}
	return stats
}

// Classify maps a Predict error to its metrics outcome label.
func Classify(err error) string {
	var perr *features.ParseError
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.As(err, &perr):
		return metrics.OutcomeParse
	case errors.Is(err, model.ErrUnavailable):
		return metrics.OutcomeUnavailable
	default:
		return metrics.OutcomePrediction
	}
}
