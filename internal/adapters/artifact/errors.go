package artifact

import "errors"

// Sentinel kinds for artifact errors.
var (
	ErrLoad            = errors.New("load model artifact failed")
	ErrInvalidArtifact = errors.New("invalid model artifact")
	ErrUnsupported     = errors.New("unsupported model artifact format")
)
