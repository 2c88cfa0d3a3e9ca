package grid_world

import "fmt"

// Rewards maps each cell kind of a layout to its state-based reward.
type Rewards struct {
	Goal, Penalty, Step float64
}

// DefaultRewards are the rewards of the reference problem.
var DefaultRewards = Rewards{
	Goal:    GOAL_REWARD,
	Penalty: PENALTY_REWARD,
	Step:    STEP_REWARD,
}

func (r Rewards) of(kind rune) float64 {
	switch kind {
	case GOAL:
		return r.Goal
	case PENALTY:
		return r.Penalty
	default:
		return r.Step
	}
}

// The reference problem as a layout: row 0 is printed first, so the goal in the
// last row is the bottom right corner (4,4).
var DefaultLayout []string = []string{
	"oooox",
	"ooxoo",
	"ooooo",
	"xoooo",
	"oooo+",
}

// FromLayout converts a square layout of cell runes into a model. Each string is
// a row; STEP, PENALTY and GOAL are the only accepted runes, and GOAL cells are terminal.
func FromLayout(
	layout []string,
	gamma float64,
	rewards Rewards,
	opts ...Option,
) (*GridModel, error) {
	if len(layout) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLayout, ErrInvalidSize)
	}

	kinds := make([][]rune, len(layout))
	for i, row := range layout {
		kinds[i] = []rune(row)
		if len(kinds[i]) != len(layout) {
			return nil, fmt.Errorf("%w: row %d has %d cells, expected %d",
				ErrInvalidLayout, i, len(kinds[i]), len(layout))
		}
		for j, kind := range kinds[i] {
			switch kind {
			case STEP, PENALTY, GOAL:
			default:
				return nil, fmt.Errorf("%w: unknown cell %q at %v", ErrInvalidLayout, kind, Cell{i, j})
			}
		}
	}

	return build(kinds, gamma, rewards, opts...)
}
