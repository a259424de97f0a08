// Package site serves the landing page with the prediction form.
package site

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/blastppv/internal/domain/features"
)

// ErrServe is returned when the landing page cannot be rendered.
var ErrServe = errors.New("landing page serve failed")

const title = "Blast PPV Predictor"

type page struct {
	Title  string
	Fields []features.Field
}

// Register attaches the landing page and its assets to mux.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(FS())))
	mux.HandleFunc("/", NewRootHandler().HandleRoot)
}

// RootHandler renders the landing page.
type RootHandler struct {
	body []byte
	err  error
}

// NewRootHandler renders the page once; the field list never changes.
func NewRootHandler() *RootHandler {
	body, err := Render()
	return &RootHandler{body: body, err: err}
}

// Render executes the landing page template over the feature schema.
func Render() ([]byte, error) {
	var buf bytes.Buffer
	data := page{Title: title, Fields: features.Schema[:]}
	if err := index.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServe, err)
	}
	return buf.Bytes(), nil
}

// HandleRoot handles GET / and answers 404 for any other unmatched path.
func (h *RootHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if h.err != nil {
		http.Error(w, h.err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(h.body)
}
