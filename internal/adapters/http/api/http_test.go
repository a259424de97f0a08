package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/blastppv/internal/adapters/http/api"
	service "github.com/okian/blastppv/internal/app"
	"github.com/okian/blastppv/internal/domain/features"
	"github.com/okian/blastppv/internal/domain/model"
	"github.com/okian/blastppv/pkg/logger"
	"github.com/okian/blastppv/pkg/metrics"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// depthPredictor returns depth times 0.123 so rounding is visible.
var depthPredictor = model.PredictorFunc(func(_ context.Context, rec features.Record) (float64, error) {
	d, _ := rec.Get("Depth (m)")
	return d * 0.123, nil
})

func newService(h model.Handle) *service.Service {
	return service.New(
		service.WithHandle(h),
		service.WithLogger(logger.Nop()),
		service.WithMetrics(metrics.NewManager(metrics.WithPrometheusRegistry(prometheus.NewRegistry()))),
	)
}

func newMux(h model.Handle, opts ...api.Option) *http.ServeMux {
	mux := http.NewServeMux()
	opts = append([]api.Option{api.WithLogger(logger.Nop())}, opts...)
	api.NewServer(newService(h), opts...).Register(context.Background(), mux)
	return mux
}

func loaded() model.Handle {
	return model.Ready(depthPredictor, model.Info{Name: "depth", Version: "1", Kind: "test"})
}

func allFields(v string) url.Values {
	form := url.Values{}
	for _, f := range features.Schema {
		form.Set(f.Name, v)
	}
	return form
}

func postForm(mux http.Handler, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
	return body
}

func TestPredictEndpoint(t *testing.T) {
	Convey("Given an API with a loaded model", t, func() {
		mux := newMux(loaded())

		Convey("When all thirteen fields are numbers", func() {
			w := postForm(mux, allFields("10"))

			Convey("Then the rounded prediction is returned as JSON", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
				So(decode(w)["predicted_ppv"], ShouldEqual, 1.23)
			})
		})

		Convey("When the same request is sent twice", func() {
			first := postForm(mux, allFields("7.5"))
			second := postForm(mux, allFields("7.5"))

			Convey("Then both responses are identical", func() {
				So(first.Code, ShouldEqual, http.StatusOK)
				So(second.Code, ShouldEqual, http.StatusOK)
				So(second.Body.String(), ShouldEqual, first.Body.String())
			})
		})

		Convey("When the body is empty", func() {
			w := postForm(mux, url.Values{})

			Convey("Then every field defaults to zero", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["predicted_ppv"], ShouldEqual, 0.0)
			})
		})

		Convey("When fields are nil, empty or padded", func() {
			form := allFields("nil")
			form.Set("Depth (m)", " 20 ")
			form.Set("Hole (Nos)", "")
			w := postForm(mux, form)

			Convey("Then they are coerced before prediction", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["predicted_ppv"], ShouldEqual, 2.46)
			})
		})

		Convey("When the form is multipart", func() {
			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			So(mw.WriteField("Depth (m)", "10"), ShouldBeNil)
			So(mw.Close(), ShouldBeNil)
			req := httptest.NewRequest(http.MethodPost, "/predict", &buf)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then the fields are read the same way", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["predicted_ppv"], ShouldEqual, 1.23)
			})
		})

		Convey("When a field is not numeric", func() {
			form := allFields("1")
			form.Set("Depth (m)", "abc")
			w := postForm(mux, form)

			Convey("Then a 500 with the coercion message is returned", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				msg, _ := decode(w)["error"].(string)
				So(msg, ShouldContainSubstring, "Depth (m)")
				So(msg, ShouldContainSubstring, "abc")
			})
		})

		Convey("When the method is GET", func() {
			req := httptest.NewRequest(http.MethodGet, "/predict", http.NoBody)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then 405 is returned with an Allow header", func() {
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
				So(w.Header().Get("Allow"), ShouldEqual, http.MethodPost)
				So(decode(w)["error"], ShouldNotBeEmpty)
			})
		})

		Convey("When a request ID is supplied", func() {
			req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(allFields("1").Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.Header.Set(api.RequestIDHeader, "abc-123")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then it is echoed back", func() {
				So(w.Header().Get(api.RequestIDHeader), ShouldEqual, "abc-123")
			})
		})

		Convey("When no request ID is supplied", func() {
			w := postForm(mux, allFields("1"))

			Convey("Then one is generated", func() {
				So(w.Header().Get(api.RequestIDHeader), ShouldNotBeEmpty)
			})
		})
	})

	Convey("Given an API whose model failed to load", t, func() {
		h := model.Unavailable(errors.New("open /srv/models/hybrid_model.json: no such file or directory"))

		Convey("When any request is sent", func() {
			mux := newMux(h)
			for _, form := range []url.Values{allFields("1"), allFields("abc"), {}} {
				w := postForm(mux, form)
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				msg, _ := decode(w)["error"].(string)

				Convey("Then the error mentions the model and hides the path "+form.Encode(), func() {
					So(msg, ShouldEqual, model.ErrUnavailable.Error())
					So(msg, ShouldNotContainSubstring, "/srv/models")
				})
			}
		})

		Convey("When granular status is enabled", func() {
			mux := newMux(h, api.WithGranularStatus(true))
			w := postForm(mux, allFields("1"))

			Convey("Then 503 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})
	})

	Convey("Given granular status mapping", t, func() {
		Convey("When the input cannot be parsed", func() {
			mux := newMux(loaded(), api.WithGranularStatus(true))
			form := allFields("1")
			form.Set("Spacing(m)", "wide")
			w := postForm(mux, form)

			Convey("Then 400 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the model itself fails", func() {
			failing := model.Ready(model.PredictorFunc(func(context.Context, features.Record) (float64, error) {
				return 0, errors.New("boom")
			}), model.Info{Name: "failing"})
			mux := newMux(failing, api.WithGranularStatus(true))
			w := postForm(mux, allFields("1"))

			Convey("Then 500 carries the prediction error", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decode(w)["error"], ShouldContainSubstring, "boom")
			})
		})
	})

	Convey("Given a body with a malformed escape", t, func() {
		mux := newMux(loaded(), api.WithGranularStatus(true))
		req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader("Depth+%28m%29=%zz"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		Convey("Then it is a bad request, not a prediction on zeros", func() {
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			body := decode(w)
			So(body, ShouldNotContainKey, "predicted_ppv")
			So(body["error"], ShouldNotBeEmpty)
		})
	})

	Convey("Given a model output too large to round", t, func() {
		mux := newMux(loaded())
		depth := 1.5e307
		form := allFields("0")
		form.Set("Depth (m)", "1.5e307")
		w := postForm(mux, form)

		Convey("Then the finite value is returned in a JSON body", func() {
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["predicted_ppv"], ShouldEqual, depth*0.123)
		})
	})

	Convey("Given a body over the configured limit", t, func() {
		mux := newMux(loaded(), api.WithMaxFormBytes(16))
		w := postForm(mux, allFields("123456789"))

		Convey("Then the request is rejected", func() {
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			body := decode(w)
			So(body, ShouldNotContainKey, "predicted_ppv")
			So(body["error"], ShouldNotBeEmpty)
		})
	})
}

func TestPredictPanicRecovery(t *testing.T) {
	Convey("Given a predictor that panics", t, func() {
		panicking := model.Ready(model.PredictorFunc(func(context.Context, features.Record) (float64, error) {
			panic("index out of range")
		}), model.Info{Name: "panicking"})
		mux := newMux(panicking)

		w := postForm(mux, allFields("1"))

		Convey("Then a JSON 500 is returned without the panic value", func() {
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			body := decode(w)
			So(body["error"], ShouldEqual, api.ErrInternal.Error())
			So(w.Body.String(), ShouldNotContainSubstring, "index out of range")
		})
	})
}

func TestHealthEndpoints(t *testing.T) {
	Convey("Given a loaded model", t, func() {
		mux := newMux(loaded())

		Convey("Then /healthz and /readyz report healthy and ready", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["status"], ShouldEqual, "healthy")

			w = httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode(w)
			So(body["status"], ShouldEqual, "ready")
			So(body["model"].(map[string]any)["name"], ShouldEqual, "depth")
		})

		Convey("Then /stats reports the model state", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["modelState"], ShouldEqual, "loaded")
		})

		Convey("Then /metrics exposes HTTP counters", func() {
			postForm(mux, allFields("1"))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "blastppv_predictor_http_requests_total")
		})
	})

	Convey("Given a model that failed to load", t, func() {
		mux := newMux(model.Unavailable(errors.New("corrupt artifact")))

		Convey("Then /healthz stays live and /readyz is 503", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)

			w = httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			body := decode(w)
			So(body["status"], ShouldEqual, "not ready")
			So(body["error"], ShouldNotContainSubstring, "corrupt")
		})
	})
}

func TestKindErrors(t *testing.T) {
	Convey("Given kind errors", t, func() {
		cause := errors.New("bad digit")

		Convey("When wrapping a cause", func() {
			err := api.WrapKind("api.predict", api.ErrBadRequest, cause)

			Convey("Then both the kind and the cause match", func() {
				So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
				So(errors.Is(err, cause), ShouldBeTrue)
				So(err.Error(), ShouldEqual, "api.predict: bad request: bad digit")
				var kerr *api.KindError
				So(errors.As(err, &kerr), ShouldBeTrue)
				So(kerr.Message(), ShouldEqual, "bad digit")
			})
		})

		Convey("When wrapping nil", func() {
			So(api.WrapKind("op", api.ErrInternal, nil), ShouldBeNil)
		})

		Convey("When creating a bare kind", func() {
			err := api.NewKind("api.predict", api.ErrMethodNotAllowed)
			So(errors.Is(err, api.ErrMethodNotAllowed), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.predict: method not allowed")
		})
	})
}

func TestRegisterNilMux(t *testing.T) {
	Convey("Given a nil mux", t, func() {
		server := api.NewServer(newService(loaded()))
		So(func() { server.Register(context.Background(), nil) }, ShouldPanic)
	})
}
