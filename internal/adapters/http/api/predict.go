package api

import (
	"errors"
	"mime"
	"net/http"

	"github.com/okian/blastppv/internal/domain/features"
	"github.com/okian/blastppv/pkg/logger"
)

const multipartMemory = 32 << 10

type predictResponse struct {
	PredictedPPV float64 `json:"predicted_ppv"`
}

// PredictHandler handles prediction requests.
type PredictHandler struct {
	deps         Dependencies
	logger       logger.Logger
	granular     bool
	maxFormBytes int64
}

// NewPredictHandler creates a new predict handler.
func NewPredictHandler(deps Dependencies, l logger.Logger, granular bool, maxFormBytes int64) *PredictHandler {
	if maxFormBytes <= 0 {
		maxFormBytes = defaultMaxFormBytes
	}
	return &PredictHandler{deps: deps, logger: l, granular: granular, maxFormBytes: maxFormBytes}
}

// HandlePredict handles POST /predict requests. The body is either
// urlencoded or multipart form data carrying the thirteen blast fields.
func (h *PredictHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict"
	ctx := r.Context()
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.fail(w, r, NewKind(op, ErrMethodNotAllowed), nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxFormBytes)
	if err := parseForm(r); err != nil {
		h.fail(w, r, WrapKind(op, ErrBadRequest, err), err)
		return
	}

	h.logger.Debug(ctx, "received form data",
		logger.Any("fields", received(r)),
		logger.Int("extra_keys", extraKeys(r)),
	)

	res, err := h.deps.Predict(ctx, r.PostForm)
	if err != nil {
		h.fail(w, r, classify(op, err), err)
		return
	}
	writeJSON(w, http.StatusOK, predictResponse{PredictedPPV: res.PPV})
}

// fail logs the full cause server-side and writes only the public message.
func (h *PredictHandler) fail(w http.ResponseWriter, r *http.Request, err, cause error) {
	var kerr *KindError
	if !errors.As(err, &kerr) {
		kerr = &KindError{Op: "api", Kind: ErrInternal, Err: err}
	}
	status := statusFor(kerr.Kind, h.granular)
	if cause != nil {
		h.logger.Error(r.Context(), "error during prediction",
			logger.Error(cause),
			logger.String("kind", kerr.Kind.Error()),
			logger.Int("status", status),
		)
	}
	writeError(w, status, kerr.Message())
}

// parseForm fills r.PostForm from an urlencoded or multipart body. Any
// other content type leaves it empty.
func parseForm(r *http.Request) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return r.ParseMultipartForm(multipartMemory)
	}
	return r.ParseForm()
}

// received returns the raw values of the known fields that were submitted.
func received(r *http.Request) map[string]string {
	out := make(map[string]string, features.Size)
	for _, f := range features.Schema {
		if vs, ok := r.PostForm[f.Name]; ok && len(vs) > 0 {
			out[f.Name] = vs[0]
		}
	}
	return out
}

func extraKeys(r *http.Request) int {
	n := 0
	for k := range r.PostForm {
		if _, ok := features.Index(k); !ok {
			n++
		}
	}
	return n
}
