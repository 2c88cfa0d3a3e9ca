// cell_views contains views derived from the Cell view-model.
package cell_views

import (
	"math"
	"strings"

	"gridvalue/grid_world"
	"gridvalue/reinforcement"

	"github.com/rs/zerolog"
)

// Cell is the view-model of one grid state, oriented in the svg coordinate system:
// X is the column and Y the row, so (0,0) is the top left cell, just as the grid
// prints in the console. Cell fields should be immediately usable as view parameters.
type Cell struct {
	X, Y                int
	Value               float64
	PolicyArrowRotation int
	Ties                string
	Terminal            bool
	Fill                string
}

// NewConverter returns a function converting sweep reports of the passed model
// into cells, indexed [x][y]. The greedy policy is extracted from each report's
// table, so arrows always agree with the values shown beside them. If extraction
// fails the cells still carry their values, without arrows, and the error is logged.
func NewConverter(
	model reinforcement.Model,
	kind func(i, j int) rune,
	logger zerolog.Logger,
) func(reinforcement.SweepReport) [][]Cell {
	actions := model.Actions()
	size := model.Size()

	return func(report reinforcement.SweepReport) (cells [][]Cell) {
		policy, err := reinforcement.ExtractPolicy(model, report.Values)
		if err != nil {
			logger.Error().
				Err(err).
				Str("run", report.RunID.String()).
				Int("sweep", report.Sweep).
				Msg("policy extraction failed, cells have no arrows")
		}

		cells = make([][]Cell, size)
		for x := range cells {
			cells[x] = make([]Cell, size)
		}
		grid_world.Visit(size, func(i, j int) {
			cell := Cell{
				X:        j,
				Y:        i,
				Value:    report.Values.At(i, j),
				Terminal: model.IsTerminal(i, j),
				Fill:     getFill(kind(i, j)),
			}
			if err == nil && !cell.Terminal {
				best, _ := policy.Best(i, j)
				cell.PolicyArrowRotation = getDegrees(actions[best])
				cell.Ties = strings.Join(policy.Labels(i, j), "|")
			}
			cells[j][i] = cell
		})
		return
	}
}

// getDegrees converts an action's displacement into the degrees passed to svg's
// rotate() for an upward arrow rune. Degrees are clockwise from vertical.
func getDegrees(action grid_world.Action) int {
	if action.DI == 0 && action.DJ == 0 {
		return 0
	}
	rad := math.Atan2(float64(action.DJ), float64(-action.DI))
	return int(math.Round(rad * 180 / math.Pi))
}

func getFill(kind rune) (fill string) {
	switch kind {
	case grid_world.GOAL:
		fill = "lightyellow"
	case grid_world.PENALTY:
		fill = "lightcoral"
	default:
		fill = "lightgray"
	}
	return
}
