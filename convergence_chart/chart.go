// convergence_chart renders the progress of a value iteration run as an html page.
package convergence_chart

import (
	"context"
	"fmt"
	"io"
	"sync"

	"gridvalue/reinforcement"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Point is the per-sweep summary kept by a Recorder.
type Point struct {
	Sweep int
	Delta float64
	Mean  float64
}

// Recorder collects sweep summaries. Its Record method is a reinforcement.ProgressFunc.
type Recorder struct {
	mu     sync.Mutex
	points []Point
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record stores the summary of a sweep; the value snapshot is not retained.
func (rec *Recorder) Record(_ context.Context, report reinforcement.SweepReport) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.points = append(rec.points, Point{
		Sweep: report.Sweep,
		Delta: report.Delta,
		Mean:  report.Mean,
	})
}

// Points returns a copy of the recorded summaries.
func (rec *Recorder) Points() []Point {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]Point(nil), rec.points...)
}

// Render writes a page with two line charts: the max value change per sweep,
// which is what the convergence threshold is tested against, and the mean state value.
func (rec *Recorder) Render(w io.Writer, title string) error {
	points := rec.Points()
	if len(points) == 0 {
		return ErrNoSweeps
	}

	sweeps := make([]string, 0, len(points))
	deltas := make([]opts.LineData, 0, len(points))
	means := make([]opts.LineData, 0, len(points))
	for _, p := range points {
		sweeps = append(sweeps, fmt.Sprintf("%d", p.Sweep))
		deltas = append(deltas, opts.LineData{Value: p.Delta})
		means = append(means, opts.LineData{Value: p.Mean})
	}

	page := components.NewPage()
	page.AddCharts(
		newLine(title+": max delta", "delta", sweeps, deltas),
		newLine(title+": mean value", "mean", sweeps, means),
	)
	return page.Render(w)
}

func newLine(title, series string, sweeps []string, items []opts.LineData) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title: title,
		}),
		charts.WithInitializationOpts(opts.Initialization{
			Theme: "shine",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Name: "sweep",
		}),
	)
	line.SetXAxis(sweeps).AddSeries(series, items)
	return line
}
