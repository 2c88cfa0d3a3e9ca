package root_view

import (
	"context"
	"html/template"
	"time"

	"gridvalue/reinforcement"
	"gridvalue/server/cell_views"
	"gridvalue/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// RootView is the main page's index.html, which is the container for all the
// view components and the wiring for their channels.
type RootView struct {
	views   []fastview.ViewComponent
	updates <-chan []fastview.EleUpdate
}

// NewRootView creates the main page and the views it contains. Every view is fed
// the cells converted from each sweep report.
func NewRootView(
	ctx context.Context,
	convert func(reinforcement.SweepReport) [][]cell_views.Cell,
	reports <-chan reinforcement.SweepReport,
) (*RootView, error) {
	views, err := fastview.NewViewBuilder[reinforcement.SweepReport, [][]cell_views.Cell]().
		WithContext(ctx).
		WithModel(reports, convert).
		WithView(func(
			done <-chan struct{},
			cellUpdates <-chan [][]cell_views.Cell) fastview.ViewComponent {
			return cell_views.NewValuesGrid(done, cellUpdates)
		}).
		WithView(func(
			done <-chan struct{},
			cellUpdates <-chan [][]cell_views.Cell) fastview.ViewComponent {
			return cell_views.NewValueFunction(done, cellUpdates)
		}).
		Build()
	if err != nil {
		return nil, err
	}

	return &RootView{
		views:   views,
		updates: fanIn(ctx.Done(), views),
	}, nil
}

// Updates returns the main ele-update channel for all the views.
func (rv *RootView) Updates() <-chan []fastview.EleUpdate {
	return rv.updates
}

// Parse builds the main page's template, with websocket bootstrap code, and returns its name.
// It also sets up the func-map that the child components depend on.
func (rv *RootView) Parse(
	parent *template.Template,
) (name string, err error) {
	rt := parent.Funcs(
		template.FuncMap{
			"add":  func(i, j int) int { return i + j },
			"sub":  func(i, j int) int { return i - j },
			"mult": func(i, j int) int { return i * j },
			"div":  func(i, j int) int { return i / j },
			"max": func(i, j int) int {
				if i > j {
					return i
				}
				return j
			},
		})

	var bodySpec string
	for _, vc := range rv.views {
		var tname string
		if tname, err = vc.Parse(rt); err != nil {
			return
		}
		bodySpec += `{{ template "` + tname + `" . }}`
	}

	// The main template bootstraps the rest: sets up the client websocket and aggregates views.
	name = "mainpage"
	indexTemplate := `
	{{ define "` + name + `" }}
	<!DOCTYPE html>
	<html>
		<head>
			<link rel="icon" href="data:,">
			<!--The server pushes new data to the view over this websocket.-->
			<script>
				const ws = new WebSocket("ws://" + location.host + "/ws");
				ws.onopen = function (event) {
					console.log("Web socket opened")
				};

				ws.onerror = function (event) {
					console.log('WebSocket error: ', event);
				};

				// When the server pushes view updates, find these eles and update them.
				ws.onmessage = function (event) {
					items = JSON.parse(event.data)
					for (const update of items) {
						const ele = document.getElementById(update.EleId)
						if (ele === null) {
							continue;
						}
						for (const op of update.Ops) {
							if (op.Key === "textContent") {
								ele.textContent = op.Value;
							} else {
								ele.setAttribute(op.Key, op.Value)
							}
						}
					}
				}
			</script>
		</head>
		<body>
		` + bodySpec + `
		</body></html>
	{{ end }}
	`

	_, err = rt.Parse(indexTemplate)
	return
}

// batchRate is the window within which updates for the same element are coalesced.
const batchRate = time.Millisecond * 20

// fanIn aggregates the views' ele-update channels into a single, throttled channel.
func fanIn(
	done <-chan struct{},
	views []fastview.ViewComponent,
) <-chan []fastview.EleUpdate {
	inputs := make([]<-chan []fastview.EleUpdate, len(views))
	for i, view := range views {
		inputs[i] = view.Updates()
	}
	return batchify(
		done,
		channerics.Merge(done, inputs...),
		batchRate)
}

// batchify batches within the passed time frame before sending, over-writing previously
// received values for the same ele-id, so only the latest value of each element is sent.
// Pending updates are flushed on the next tick, or when the source closes.
func batchify(
	done <-chan struct{},
	source <-chan []fastview.EleUpdate,
	rate time.Duration,
) <-chan []fastview.EleUpdate {
	output := make(chan []fastview.EleUpdate)

	go func() {
		defer close(output)

		data := map[string]fastview.EleUpdate{}
		var last time.Time
		send := func() bool {
			select {
			case output <- slicedVals(data):
				data = map[string]fastview.EleUpdate{}
				last = time.Now()
				return true
			case <-done:
				return false
			}
		}

		ticker := channerics.NewTicker(done, rate)
		for {
			select {
			case <-done:
				return
			case updates, ok := <-source:
				if !ok {
					if len(data) > 0 {
						send()
					}
					return
				}
				for _, update := range updates {
					data[update.EleId] = update
				}
				if time.Since(last) > rate && len(data) > 0 && !send() {
					return
				}
			case <-ticker:
				if len(data) > 0 && !send() {
					return
				}
			}
		}
	}()

	return output
}

// returns the values of a map as a slice
func slicedVals[T1 comparable, T2 any](mp map[T1]T2) (sliced []T2) {
	for _, v := range mp {
		sliced = append(sliced, v)
	}
	return
}
