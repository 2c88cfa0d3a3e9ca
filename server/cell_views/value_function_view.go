package cell_views

import (
	"fmt"
	"html/template"
	"math"

	"gridvalue/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// cellDim is the cell height/width in pixels.
const cellDim float64 = 80

// ValueFunction provides a view of the current value function as a 2d
// projection of the 3d surface (x,y,value).
type ValueFunction struct {
	id      string
	proj    projection
	updates <-chan []fastview.EleUpdate
}

func NewValueFunction(
	done <-chan struct{},
	cells <-chan [][]Cell,
) (vf *ValueFunction) {
	vf = &ValueFunction{
		id:   template.HTMLEscapeString("value_function"),
		proj: newProjection(math.Pi / 6),
	}
	vf.updates = channerics.Convert(done, cells, vf.onUpdate)
	return
}

func (vf *ValueFunction) Updates() <-chan []fastview.EleUpdate {
	return vf.updates
}

// projection is an isometric projection whose x and y axes lie at ang from the
// horizontal. Heights are normalized by the largest absolute value on the grid, so
// the surface keeps its scale whatever the rewards are.
type projection struct {
	sinAng, cosAng float64
	xyscale        float64 // pixels per x or y unit
	zscale         float64 // pixels per normalized z unit
}

func newProjection(ang float64) projection {
	return projection{
		sinAng:  math.Sin(ang),
		cosAng:  math.Cos(ang),
		xyscale: cellDim,
		zscale:  cellDim * 1.5,
	}
}

func (p projection) project(x, y, z, norm float64) (float64, float64) {
	if norm > 0 {
		z /= norm
	}
	sx := (x - y) * p.cosAng * p.xyscale
	sy := (x+y)*p.sinAng*p.xyscale - z*p.zscale
	return sx, sy
}

// maxAbs is the height normalizer: the largest absolute cell value.
func maxAbs(cells [][]Cell) (norm float64) {
	for _, column := range cells {
		for _, cell := range column {
			norm = math.Max(norm, math.Abs(cell.Value))
		}
	}
	return
}

// Returns an svg polygon describing these four, adjacent cells.
// Cell-A is bottom left, Cell-B is top left, Cell-C is top right, and Cell-D is bottom right.
func (p projection) polygon(
	id string,
	norm float64,
	cellA, cellB, cellC, cellD Cell,
) (fp *funcPolygon) {
	fp = &funcPolygon{Id: id}
	fp.ax, fp.ay = p.project(float64(cellA.X), float64(cellA.Y), cellA.Value, norm)
	fp.bx, fp.by = p.project(float64(cellB.X), float64(cellB.Y), cellB.Value, norm)
	fp.cx, fp.cy = p.project(float64(cellC.X), float64(cellC.Y), cellC.Value, norm)
	fp.dx, fp.dy = p.project(float64(cellD.X), float64(cellD.Y), cellD.Value, norm)
	return
}

type funcPolygon struct {
	Id     string
	ax, ay float64
	bx, by float64
	cx, cy float64
	dx, dy float64
}

// String returns a string suitable for the svg-polygon 'points' attribute.
func (fp *funcPolygon) String() string {
	return fmt.Sprintf("%d,%d %d,%d %d,%d %d,%d",
		int(fp.ax), int(fp.ay),
		int(fp.bx), int(fp.by),
		int(fp.cx), int(fp.cy),
		int(fp.dx), int(fp.dy),
	)
}

func (fp *funcPolygon) MinX() float64 {
	return min(fp.ax, fp.bx, fp.cx, fp.dx)
}

func (fp *funcPolygon) MinY() float64 {
	return min(fp.ay, fp.by, fp.cy, fp.dy)
}

func (fp *funcPolygon) MaxX() float64 {
	return max(fp.ax, fp.bx, fp.cx, fp.dx)
}

func (fp *funcPolygon) MaxY() float64 {
	return max(fp.ay, fp.by, fp.cy, fp.dy)
}

func polygonId(cell Cell) string {
	return fmt.Sprintf("%d-%d-value-polygon", cell.X, cell.Y)
}

// Returns the set of view updates needed for the view to reflect current values.
func (vf *ValueFunction) onUpdate(
	cells [][]Cell,
) (ops []fastview.EleUpdate) {
	if len(cells) < 2 {
		return
	}
	width := float64(len(cells)) * cellDim
	height := float64(len(cells[0])) * cellDim
	norm := maxAbs(cells)

	// Each polygon is shaded by the average of its four corners, relative to the
	// extremes of the whole surface.
	minVal, maxVal := math.MaxFloat64, -math.MaxFloat64
	for _, column := range cells {
		for _, cell := range column {
			minVal = math.Min(minVal, cell.Value)
			maxVal = math.Max(maxVal, cell.Value)
		}
	}

	// Build the polygons first so their svg coordinates can be centered afterward.
	xmin, ymin := math.MaxFloat64, math.MaxFloat64
	xmax, ymax := -math.MaxFloat64, -math.MaxFloat64
	for xi, column := range cells[:len(cells)-1] {
		for yi, cell := range column[:len(column)-1] {
			cellA := cells[xi+1][yi]
			cellB := cells[xi][yi]
			cellC := cells[xi][yi+1]
			cellD := cells[xi+1][yi+1]
			polygon := vf.proj.polygon(polygonId(cell), norm, cellA, cellB, cellC, cellD)

			xmin = math.Min(xmin, polygon.MinX())
			xmax = math.Max(xmax, polygon.MaxX())
			ymin = math.Min(ymin, polygon.MinY())
			ymax = math.Max(ymax, polygon.MaxY())

			avgVal := (cellA.Value + cellB.Value + cellC.Value + cellD.Value) / 4
			ops = append(ops, fastview.EleUpdate{
				EleId: polygon.Id,
				Ops: []fastview.Op{
					{Key: "points", Value: polygon.String()},
					{Key: "fill", Value: getRGBFill(avgVal, minVal, maxVal)},
				},
			})
		}
	}

	// Shift by the min x and y to center the view, scaling down only if the plot
	// does not fit.
	scaler := math.Min(
		math.Min(
			math.Abs(width/(xmax-xmin)),
			math.Abs(height/(ymax-ymin)),
		),
		1.0,
	)

	ops = append(ops, fastview.EleUpdate{
		EleId: vf.id + "-group",
		Ops: []fastview.Op{
			{
				Key:   "transform",
				Value: fmt.Sprintf("scale(%f) translate(%d %d)", scaler, int(-xmin), int(-ymin)),
			},
		},
	})
	return
}

// getRGBFill shades from blue at minVal to red at maxVal.
func getRGBFill(avgVal, minVal, maxVal float64) string {
	redPct := 0
	if maxVal > minVal {
		redPct = int(100.0 * (avgVal - minVal) / (maxVal - minVal))
	}
	return fmt.Sprintf("rgb(%d%%,0%%,%d%%)", redPct, 100-redPct)
}

// Parse returns an svg of polygons plotting the value function surface as a 2D projection.
func (vf *ValueFunction) Parse(
	t *template.Template,
) (name string, err error) {
	name = vf.id
	addedMap := template.FuncMap{
		"maxAbs": maxAbs,
		"getPolyPoints": func(norm float64, cellA, cellB, cellC, cellD Cell) string {
			return vf.proj.polygon("", norm, cellA, cellB, cellC, cellD).String()
		},
	}
	// Polygons are drawn back to front so nearer ones obscure those behind them.
	_, err = t.Funcs(addedMap).Parse(
		`{{ define "` + name + `" }}
		<div style="padding:40px;">
			{{ $x_cells := len . }}
			{{ $y_cells := len (index . 0) }}
			{{ $num_x_polys := sub $x_cells 1 }}
			{{ $num_y_polys := sub $y_cells 1 }}
			{{ $cell_width := ` + fmt.Sprintf("%d", int(cellDim)) + ` }}
			{{ $width := mult $cell_width $x_cells }}
			{{ $height := mult $cell_width $y_cells }}
			{{ $norm := maxAbs . }}
			<svg id="` + vf.id + `" xmlns='http://www.w3.org/2000/svg'
				width="{{ mult $width 2 }}px"
				height="{{ mult $height 2 }}px"
				style="shape-rendering: crispEdges; stroke: lightgrey; stroke-opacity: 1.0; stroke-width: 3;">
				<g id="` + vf.id + "-group" + `" transform="translate({{ $width }} {{ $height }})">
				{{ $cells := . }}
				{{ range $xi, $column := $cells }}
					{{ if lt $xi $num_x_polys }}
						{{ range $j, $unused := $column }}
							{{ $yi := sub (sub (len $column) $j) 1 }}
							{{ $cell := index $column $yi }}
							{{ if lt $yi $num_y_polys }}
								<polygon id="{{$cell.X}}-{{$cell.Y}}-value-polygon"
									fill="black" fill-opacity="1.0"
									{{ $cell_a := index $cells (add $xi 1) $yi }}
									{{ $cell_b := index $cells $xi $yi }}
									{{ $cell_c := index $cells $xi (add $yi 1) }}
									{{ $cell_d := index $cells (add $xi 1) (add $yi 1) }}
									points="{{ getPolyPoints $norm $cell_a $cell_b $cell_c $cell_d }}" />
							{{ end }}
						{{ end }}
					{{ end }}
				{{ end }}
				</g>
			</svg>
		</div>
		{{ end }}`)
	return
}
