package cell_views

import (
	"fmt"
	"html/template"

	"gridvalue/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// ValuesGrid shows each state's value, its greedy action as an arrow, and the
// labels of every tied action.
type ValuesGrid struct {
	id      string
	updates <-chan []fastview.EleUpdate
}

func NewValuesGrid(
	done <-chan struct{},
	cells <-chan [][]Cell,
) (vg *ValuesGrid) {
	// Underscores, not hyphens: html/template's `template` directive rejects the latter.
	vg = &ValuesGrid{id: template.HTMLEscapeString("values_grid")}
	vg.updates = channerics.Convert(done, cells, vg.onUpdate)
	return
}

func (vg *ValuesGrid) Updates() <-chan []fastview.EleUpdate {
	return vg.updates
}

// Parse defines the grid's svg template and returns its name.
func (vg *ValuesGrid) Parse(
	t *template.Template,
) (name string, err error) {
	name = vg.id
	_, err = t.Parse(
		`{{ define "` + name + `" }}
		<div id="state_values">
			{{ $x_cells := len . }}
			{{ $y_cells := len (index . 0) }}
			{{ $cell_width := ` + fmt.Sprintf("%d", int(cellDim)) + ` }}
			{{ $cell_height := $cell_width }}
			{{ $width := mult $cell_width $x_cells }}
			{{ $height := mult $cell_height $y_cells }}
			{{ $half_height := div $cell_height 2 }}
			{{ $half_width := div $cell_width 2 }}
			<svg id="` + vg.id + `"
				width="{{ add $width 1 }}px"
				height="{{ add $height 1 }}px"
				style="shape-rendering: crispEdges;">
				{{ range $column := . }}
					{{ range $cell := $column }}
					<g>
						<rect
							x="{{ mult $cell.X $cell_width }}"
							y="{{ mult $cell.Y $cell_height }}"
							width="{{ $cell_width }}"
							height="{{ $cell_height }}"
							fill="{{ $cell.Fill }}"
							stroke="black"
							stroke-width="1"/>
						<text id="{{$cell.X}}-{{$cell.Y}}-value-text"
							x="{{ add (mult $cell.X $cell_width) $half_width }}"
							y="{{ add (mult $cell.Y $cell_height) (sub $half_height 20) }}"
							stroke="blue"
							dominant-baseline="text-top" text-anchor="middle"
							>{{ printf "%.2f" $cell.Value }}</text>
						{{ if not $cell.Terminal }}
						<g transform="translate({{ add (mult $cell.X $cell_width) $half_width }}, {{ add (mult $cell.Y $cell_height) (add $half_height 5) }})">
							<text id="{{$cell.X}}-{{$cell.Y}}-policy-arrow"
							stroke="blue" stroke-width="1"
							dominant-baseline="central" text-anchor="middle"
							transform="rotate({{ $cell.PolicyArrowRotation }})"
							>&uarr;</text>
						</g>
						<text id="{{$cell.X}}-{{$cell.Y}}-policy-ties"
							x="{{ add (mult $cell.X $cell_width) $half_width }}"
							y="{{ add (mult $cell.Y $cell_height) (add $half_height 30) }}"
							font-size="10"
							dominant-baseline="text-top" text-anchor="middle"
							>{{ $cell.Ties }}</text>
						{{ end }}
					</g>
					{{ end }}
				{{ end }}
			</svg>
		</div>
		{{ end }}`)
	return
}

// Returns the set of view updates needed for the view to reflect the current values.
// Terminal cells never change policy, so only their value text is updated.
func (vg *ValuesGrid) onUpdate(cells [][]Cell) (ops []fastview.EleUpdate) {
	for _, column := range cells {
		for _, cell := range column {
			ops = append(ops, fastview.EleUpdate{
				EleId: fmt.Sprintf("%d-%d-value-text", cell.X, cell.Y),
				Ops: []fastview.Op{
					{Key: "textContent", Value: fmt.Sprintf("%.2f", cell.Value)},
				},
			})
			if cell.Terminal {
				continue
			}
			ops = append(ops,
				fastview.EleUpdate{
					EleId: fmt.Sprintf("%d-%d-policy-arrow", cell.X, cell.Y),
					Ops: []fastview.Op{
						{Key: "transform", Value: fmt.Sprintf("rotate(%d)", cell.PolicyArrowRotation)},
					},
				},
				fastview.EleUpdate{
					EleId: fmt.Sprintf("%d-%d-policy-ties", cell.X, cell.Y),
					Ops: []fastview.Op{
						{Key: "textContent", Value: cell.Ties},
					},
				})
		}
	}
	return
}
