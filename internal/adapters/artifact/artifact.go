// Package artifact loads serialized PPV models from disk and evaluates them.
//
// An artifact is a JSON or YAML document describing a hybrid regressor: an
// optional empirical scaled-distance term, a linear term over standardized
// features and an ensemble of boosted regression trees.
package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/okian/blastppv/internal/domain/features"
	"github.com/okian/blastppv/internal/domain/model"
)

// Kind identifies the model family in model.Info.
const Kind = "hybrid_regressor"

// Target transforms.
const (
	TransformNone  = "none"
	TransformLog1p = "log1p"
)

// Artifact is the on-disk model description.
type Artifact struct {
	Name            string     `json:"name" yaml:"name"`
	Version         string     `json:"version" yaml:"version"`
	Features        []string   `json:"features" yaml:"features"`
	Scaler          *Scaler    `json:"scaler,omitempty" yaml:"scaler,omitempty"`
	Empirical       *Empirical `json:"empirical,omitempty" yaml:"empirical,omitempty"`
	Linear          Linear     `json:"linear" yaml:"linear"`
	LearningRate    float64    `json:"learning_rate" yaml:"learning_rate"`
	Trees           []Tree     `json:"trees" yaml:"trees"`
	TargetTransform string     `json:"target_transform,omitempty" yaml:"target_transform,omitempty"`
	Clip            *Clip      `json:"clip,omitempty" yaml:"clip,omitempty"`
}

// Scaler standardizes features before the linear term: (x - mean) / scale.
type Scaler struct {
	Mean  []float64 `json:"mean" yaml:"mean"`
	Scale []float64 `json:"scale" yaml:"scale"`
}

// Empirical is the site law PPV = K * (D / sqrt(Q))^-Beta, where D is the
// distance feature and Q the charge feature.
type Empirical struct {
	K               float64 `json:"k" yaml:"k"`
	Beta            float64 `json:"beta" yaml:"beta"`
	DistanceFeature string  `json:"distance_feature" yaml:"distance_feature"`
	ChargeFeature   string  `json:"charge_feature" yaml:"charge_feature"`
}

// Linear is intercept + sum(coefficients[i] * z[i]).
type Linear struct {
	Intercept    float64   `json:"intercept" yaml:"intercept"`
	Coefficients []float64 `json:"coefficients" yaml:"coefficients"`
}

// Clip bounds the final prediction. Nil bounds are open.
type Clip struct {
	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// Load reads and validates the artifact at path and returns a ready Regressor.
func Load(ctx context.Context, path string) (*Regressor, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	a, err := Decode(payload, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, path, err)
	}
	return newRegressor(a, path)
}

// Open loads the artifact at path and wraps the outcome in a model.Handle.
// A failed load yields an unavailable handle instead of an error so the
// process can keep serving in degraded mode.
func Open(ctx context.Context, path string) model.Handle {
	r, err := Load(ctx, path)
	if err != nil {
		return model.Unavailable(err)
	}
	return model.Ready(r, r.Info())
}

// Decode parses an artifact. ext selects the format: ".json", ".yaml" or ".yml".
// Unknown fields are rejected so typos do not silently drop model terms.
func Decode(payload []byte, ext string) (*Artifact, error) {
	var a Artifact
	switch strings.ToLower(ext) {
	case ".json", "":
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&a); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
		}
	case ".yaml", ".yml":
		if err := yaml.UnmarshalStrict(payload, &a); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Validate checks the artifact against the feature schema and its own
// internal consistency.
func (a *Artifact) Validate() error {
	names := features.Names()
	if len(a.Features) != len(names) {
		return invalid("expected %d features, got %d", len(names), len(a.Features))
	}
	for i, name := range names {
		if a.Features[i] != name {
			return invalid("feature %d: expected %q, got %q", i, name, a.Features[i])
		}
	}
	if n := len(a.Linear.Coefficients); n != 0 && n != features.Size {
		return invalid("linear: expected %d coefficients, got %d", features.Size, n)
	}
	if a.Scaler != nil {
		if len(a.Scaler.Mean) != features.Size || len(a.Scaler.Scale) != features.Size {
			return invalid("scaler: mean and scale need %d entries", features.Size)
		}
	}
	if e := a.Empirical; e != nil {
		if _, ok := features.Lookup(e.DistanceFeature); !ok {
			return invalid("empirical: unknown distance feature %q", e.DistanceFeature)
		}
		if _, ok := features.Lookup(e.ChargeFeature); !ok {
			return invalid("empirical: unknown charge feature %q", e.ChargeFeature)
		}
	}
	if len(a.Trees) > 0 && a.LearningRate <= 0 {
		return invalid("learning_rate must be positive when trees are present")
	}
	for i := range a.Trees {
		if err := a.Trees[i].validate(); err != nil {
			return invalid("tree %d: %v", i, err)
		}
	}
	switch a.TargetTransform {
	case "", TransformNone, TransformLog1p:
	default:
		return invalid("unknown target_transform %q", a.TargetTransform)
	}
	if c := a.Clip; c != nil && c.Min != nil && c.Max != nil && *c.Min > *c.Max {
		return invalid("clip: min %v exceeds max %v", *c.Min, *c.Max)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArtifact, fmt.Sprintf(format, args...))
}
