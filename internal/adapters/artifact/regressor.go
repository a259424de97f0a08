package artifact

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/blastppv/internal/domain/features"
	"github.com/okian/blastppv/internal/domain/model"
)

// Regressor evaluates a validated Artifact. It is read-only after
// construction and safe for concurrent use.
type Regressor struct {
	a         *Artifact
	info      model.Info
	distIdx   int
	chargeIdx int
}

func newRegressor(a *Artifact, path string) (*Regressor, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	r := &Regressor{
		a: a,
		info: model.Info{
			Name:    a.Name,
			Version: a.Version,
			Kind:    Kind,
			Path:    path,
		},
	}
	if e := a.Empirical; e != nil {
		r.distIdx, _ = features.Index(e.DistanceFeature)
		r.chargeIdx, _ = features.Index(e.ChargeFeature)
	}
	return r, nil
}

// New builds a Regressor from an in-memory artifact.
func New(a *Artifact) (*Regressor, error) {
	return newRegressor(a, "")
}

// Info describes the artifact.
func (r *Regressor) Info() model.Info { return r.info }

// Predict implements model.Predictor.
func (r *Regressor) Predict(ctx context.Context, rec features.Record) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var x [features.Size]float64
	for i := range x {
		x[i] = rec.At(i)
	}

	y := r.linear(&x)
	if len(r.a.Trees) > 0 {
		var boost float64
		for _, t := range r.a.Trees {
			boost += t.eval(&x)
		}
		y += r.a.LearningRate * boost
	}
	if r.a.TargetTransform == TransformLog1p {
		y = math.Expm1(y)
	}
	y += r.empirical(&x)

	if c := r.a.Clip; c != nil {
		if c.Min != nil && y < *c.Min {
			y = *c.Min
		}
		if c.Max != nil && y > *c.Max {
			y = *c.Max
		}
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, fmt.Errorf("non-finite prediction %v", y)
	}
	return y, nil
}

func (r *Regressor) linear(x *[features.Size]float64) float64 {
	y := r.a.Linear.Intercept
	if len(r.a.Linear.Coefficients) == 0 {
		return y
	}
	for i, coef := range r.a.Linear.Coefficients {
		z := x[i]
		if s := r.a.Scaler; s != nil {
			scale := s.Scale[i]
			if scale == 0 {
				scale = 1
			}
			z = (z - s.Mean[i]) / scale
		}
		y += coef * z
	}
	return y
}

// empirical is zero when distance or charge is not positive; the scaled
// distance is undefined there.
func (r *Regressor) empirical(x *[features.Size]float64) float64 {
	e := r.a.Empirical
	if e == nil {
		return 0
	}
	d, q := x[r.distIdx], x[r.chargeIdx]
	if d <= 0 || q <= 0 {
		return 0
	}
	sd := d / math.Sqrt(q)
	return e.K * math.Pow(sd, -e.Beta)
}
