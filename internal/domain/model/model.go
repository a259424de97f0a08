// Package model defines the prediction capability the service depends on
// and the load-once handle that carries it.
package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/blastppv/internal/domain/features"
)

// Sentinel kinds for model errors.
var (
	// ErrUnavailable means the model did not load at startup.
	ErrUnavailable = errors.New("model not loaded properly. Check server logs for details")
	// ErrPrediction wraps any failure raised by a Predictor.
	ErrPrediction = errors.New("prediction failed")
)

// Predictor estimates peak particle velocity for one record. Implementations
// must be safe for concurrent use; they are shared by all requests.
type Predictor interface {
	Predict(ctx context.Context, rec features.Record) (float64, error)
}

// PredictorFunc adapts a function to Predictor.
type PredictorFunc func(ctx context.Context, rec features.Record) (float64, error)

// Predict calls f.
func (f PredictorFunc) Predict(ctx context.Context, rec features.Record) (float64, error) {
	return f(ctx, rec)
}

// Info describes the loaded model artifact.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Kind    string `json:"kind"`
	Path    string `json:"path"`
}

// State is the lifecycle of a Handle.
type State int

const (
	StateUninitialized State = iota
	StateLoaded
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateUnavailable:
		return "unavailable"
	default:
		return "uninitialized"
	}
}

// Handle is the startup result of loading the model: either Ready with a
// predictor or Unavailable with a reason. It never changes afterwards.
// The zero Handle is uninitialized and behaves as unavailable.
type Handle struct {
	state     State
	predictor Predictor
	info      Info
	reason    error
}

// Ready returns a loaded handle.
func Ready(p Predictor, info Info) Handle {
	if p == nil {
		return Unavailable(errors.New("nil predictor"))
	}
	return Handle{state: StateLoaded, predictor: p, info: info}
}

// Unavailable returns a degraded handle recording why loading failed.
func Unavailable(reason error) Handle {
	if reason == nil {
		reason = errors.New("unknown reason")
	}
	return Handle{state: StateUnavailable, reason: reason}
}

// State reports the handle state.
func (h Handle) State() State { return h.state }

// Info returns the artifact description; empty unless loaded.
func (h Handle) Info() Info { return h.info }

// Reason returns the load failure, or nil when loaded.
func (h Handle) Reason() error {
	switch h.state {
	case StateLoaded:
		return nil
	case StateUnavailable:
		return h.reason
	default:
		return errors.New("model was never loaded")
	}
}

// Predictor returns the loaded predictor or an error wrapping ErrUnavailable.
func (h Handle) Predictor() (Predictor, error) {
	if h.state != StateLoaded {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, h.Reason())
	}
	return h.predictor, nil
}
