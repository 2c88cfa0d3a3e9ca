package fastview

import (
	"context"
	"html/template"
	"strconv"
	"testing"

	channerics "github.com/niceyeti/channerics/channels"
	. "github.com/smartystreets/goconvey/convey"
)

// echoView publishes one update per view-model, tagged with its own id.
type echoView struct {
	id      string
	updates <-chan []EleUpdate
}

func newEchoView(id string, done <-chan struct{}, input <-chan string) *echoView {
	return &echoView{
		id: id,
		updates: channerics.Convert(done, input, func(s string) []EleUpdate {
			return []EleUpdate{{EleId: id, Ops: []Op{{Key: "textContent", Value: s}}}}
		}),
	}
}

func (ev *echoView) Updates() <-chan []EleUpdate {
	return ev.updates
}

func (ev *echoView) Parse(t *template.Template) (string, error) {
	_, err := t.Parse(`{{ define "` + ev.id + `" }}<p id="` + ev.id + `">{{ . }}</p>{{ end }}`)
	return ev.id, err
}

func TestViewBuilder(t *testing.T) {
	Convey("When the builder succeeds", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		input := make(chan int)
		views, err := NewViewBuilder[int, string]().
			WithContext(ctx).
			WithModel(input, strconv.Itoa).
			WithView(func(done <-chan struct{}, vms <-chan string) ViewComponent {
				return newEchoView("first", done, vms)
			}).
			WithView(func(done <-chan struct{}, vms <-chan string) ViewComponent {
				return newEchoView("second", done, vms)
			}).
			Build()
		So(err, ShouldBeNil)
		So(views, ShouldHaveLength, 2)

		Convey("Every view receives every converted view-model", func() {
			go func() { input <- 42 }()
			first := <-views[0].Updates()
			second := <-views[1].Updates()
			So(first[0].EleId, ShouldEqual, "first")
			So(first[0].Ops[0].Value, ShouldEqual, "42")
			So(second[0].EleId, ShouldEqual, "second")
			So(second[0].Ops[0].Value, ShouldEqual, "42")
		})
	})

	Convey("When the builder is incomplete", t, func() {
		_, err := NewViewBuilder[int, string]().
			WithModel(make(chan int), strconv.Itoa).
			Build()
		So(err, ShouldEqual, ErrNoViews)

		_, err = NewViewBuilder[int, string]().
			WithView(func(done <-chan struct{}, vms <-chan string) ViewComponent {
				return newEchoView("view", done, vms)
			}).
			Build()
		So(err, ShouldEqual, ErrNoModel)
	})
}
