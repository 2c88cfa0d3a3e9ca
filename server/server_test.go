package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gridvalue/grid_world"
	"gridvalue/reinforcement"
	"gridvalue/server/fastview"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"
)

func TestServer(t *testing.T) {
	Convey("When serving a solver's progress", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		gm, err := grid_world.NewGridModel(grid_world.DefaultSpec())
		So(err, ShouldBeNil)
		runID := uuid.New()
		reports := make(chan reinforcement.SweepReport)
		server, err := NewServer(ctx, ":0", gm,
			reinforcement.SweepReport{RunID: runID},
			reports,
			zerolog.Nop())
		So(err, ShouldBeNil)

		ts := httptest.NewServer(server.Handler())
		defer ts.Close()

		Convey("The index page renders the views", func() {
			resp, err := http.Get(ts.URL + "/")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(resp.Header.Get("X-Correlation-ID"), ShouldNotBeEmpty)
			body, err := io.ReadAll(resp.Body)
			So(err, ShouldBeNil)
			So(string(body), ShouldContainSubstring, `id="values_grid"`)
			So(string(body), ShouldContainSubstring, `id="value_function"`)
		})

		Convey("Only GET is allowed on the index", func() {
			resp, err := http.Post(ts.URL+"/", "text/plain", nil)
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("The health check reports the initial run", func() {
			resp, err := http.Get(ts.URL + "/healthz")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			var h health
			So(json.NewDecoder(resp.Body).Decode(&h), ShouldBeNil)
			So(h.Status, ShouldEqual, "ok")
			So(h.Run, ShouldEqual, runID.String())
			So(h.Sweep, ShouldEqual, 0)
		})

		Convey("Sweep reports are pushed to websocket clients", func() {
			go func() {
				values := reinforcement.NewValueTable(gm.Size())
				for sweep := 1; ; sweep++ {
					values.Set(0, 0, float64(-sweep))
					select {
					case reports <- reinforcement.SweepReport{RunID: runID, Sweep: sweep, Values: values.Clone()}:
					case <-ctx.Done():
						return
					}
					time.Sleep(10 * time.Millisecond)
				}
			}()

			wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
			conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
			So(err, ShouldBeNil)
			defer conn.Close()

			So(conn.SetReadDeadline(time.Now().Add(5*time.Second)), ShouldBeNil)
			var updates []fastview.EleUpdate
			So(conn.ReadJSON(&updates), ShouldBeNil)
			So(updates, ShouldNotBeEmpty)

			Convey("And the health check follows the latest sweep", func() {
				resp, err := http.Get(ts.URL + "/healthz")
				So(err, ShouldBeNil)
				defer resp.Body.Close()
				var h health
				So(json.NewDecoder(resp.Body).Decode(&h), ShouldBeNil)
				So(h.Sweep, ShouldBeGreaterThan, 0)
			})
		})
	})
}
