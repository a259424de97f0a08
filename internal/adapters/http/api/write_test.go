package api

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestWriteJSON(t *testing.T) {
	Convey("Given a value that cannot be encoded", t, func() {
		w := httptest.NewRecorder()
		writeJSON(w, http.StatusOK, predictResponse{PredictedPPV: math.Inf(1)})

		Convey("Then a 500 error envelope is written instead of an empty body", func() {
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(w.Header().Get("Content-Type"), ShouldEqual, "application/json")
			var body errorResponse
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			So(body.Error, ShouldEqual, ErrInternal.Error())
		})
	})

	Convey("Given an encodable value", t, func() {
		w := httptest.NewRecorder()
		writeJSON(w, http.StatusCreated, predictResponse{PredictedPPV: 1.5})

		Convey("Then the status and body are kept", func() {
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(w.Body.String(), ShouldEqual, "{\"predicted_ppv\":1.5}\n")
		})
	})
}
