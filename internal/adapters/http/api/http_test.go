package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	api "github.com/angelosachet/AC-websocket-server/internal/adapters/http/api"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeStats struct{}

func (fakeStats) GetStats() map[string]any {
	return map[string]any{
		"producers":  1,
		"consumers":  2,
		"broadcasts": 42,
		"activeSims": []int{1, 3},
	}
}

func TestServer(t *testing.T) {
	Convey("Given the status surface", t, func() {
		mux := http.NewServeMux()
		api.NewServer(fakeStats{}).Register(context.Background(), mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		get := func(path string) (*http.Response, map[string]any) {
			resp, err := http.Get(srv.URL + path)
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			var body map[string]any
			So(json.NewDecoder(resp.Body).Decode(&body), ShouldBeNil)
			return resp, body
		}

		Convey("When /health is requested", func() {
			resp, body := get("/health")

			Convey("Then it reports ok as JSON", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(resp.Header.Get("Content-Type"), ShouldContainSubstring, "application/json")
				So(body["status"], ShouldEqual, "ok")
			})
		})

		Convey("When /stats is requested", func() {
			resp, body := get("/stats")

			Convey("Then the provider's snapshot is returned", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(body["producers"], ShouldEqual, 1)
				So(body["consumers"], ShouldEqual, 2)
				So(body["broadcasts"], ShouldEqual, 42)
			})
		})

		Convey("When /status is requested", func() {
			resp, body := get("/status")

			Convey("Then the status carries the stats snapshot", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(body["status"], ShouldEqual, "ok")
				So(body["producers"], ShouldEqual, 1)
			})
		})

		Convey("When /metrics is requested", func() {
			resp, err := http.Get(srv.URL + "/metrics")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then the exposition endpoint answers", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When a non-GET hits a JSON route", func() {
			resp, err := http.Post(srv.URL+"/stats", "application/json", nil)
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then it is not found", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}
