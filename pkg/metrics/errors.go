package metrics

import (
	"errors"
)

// Sentinel kinds for metrics errors.
var (
	ErrMetricNotFound = errors.New("metric not found")
)
