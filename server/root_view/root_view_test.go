package root_view

import (
	"bytes"
	"context"
	"html/template"
	"testing"
	"time"

	"gridvalue/grid_world"
	"gridvalue/reinforcement"
	"gridvalue/server/cell_views"
	"gridvalue/server/fastview"

	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBatchify(t *testing.T) {
	Convey("When updates for the same element arrive within one batch", t, func() {
		done := make(chan struct{})
		defer close(done)
		source := make(chan []fastview.EleUpdate)
		batches := batchify(done, source, time.Hour)

		go func() {
			defer close(source)
			for _, val := range []string{"1", "2", "3"} {
				source <- []fastview.EleUpdate{
					{EleId: "a", Ops: []fastview.Op{{Key: "textContent", Value: val}}},
				}
			}
		}()

		Convey("The first is sent at once and the rest are coalesced to the latest", func() {
			first := <-batches
			So(first, ShouldHaveLength, 1)
			So(first[0].Ops[0].Value, ShouldEqual, "1")

			flushed := <-batches
			So(flushed, ShouldHaveLength, 1)
			So(flushed[0].Ops[0].Value, ShouldEqual, "3")

			_, ok := <-batches
			So(ok, ShouldBeFalse)
		})
	})
}

func TestRootView(t *testing.T) {
	Convey("When building the root view over a grid model", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		gm, err := grid_world.NewGridModel(grid_world.DefaultSpec())
		So(err, ShouldBeNil)
		convert := cell_views.NewConverter(gm, gm.Kind, zerolog.Nop())
		reports := make(chan reinforcement.SweepReport)
		rv, err := NewRootView(ctx, convert, reports)
		So(err, ShouldBeNil)

		initial := reinforcement.SweepReport{Values: reinforcement.NewValueTable(gm.Size())}

		Convey("The main page embeds every view and the websocket bootstrap", func() {
			tmpl := template.New("index.html")
			name, err := rv.Parse(tmpl)
			So(err, ShouldBeNil)
			buf := &bytes.Buffer{}
			So(tmpl.ExecuteTemplate(buf, name, convert(initial)), ShouldBeNil)
			So(buf.String(), ShouldContainSubstring, `id="values_grid"`)
			So(buf.String(), ShouldContainSubstring, `id="value_function"`)
			So(buf.String(), ShouldContainSubstring, "/ws")
		})

		Convey("A sweep report fans out to element updates of both views", func() {
			values := reinforcement.NewValueTable(gm.Size())
			values.Set(0, 0, -1)
			reports <- reinforcement.SweepReport{Sweep: 1, Values: values}

			seen := map[string]bool{}
			for update := range rv.Updates() {
				for _, u := range update {
					seen[u.EleId] = true
				}
				if seen["0-0-value-text"] && seen["value_function-group"] {
					break
				}
			}
			So(seen["0-0-value-text"], ShouldBeTrue)
			So(seen["value_function-group"], ShouldBeTrue)
		})
	})
}
