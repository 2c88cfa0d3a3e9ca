package grid_world

import (
	"errors"
	"fmt"
)

// Cell is a state of the grid world: a row index I and a column index J.
// Row 0 is the row printed at the top of the console, so +I is "down".
type Cell struct {
	I, J int
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.I, c.J)
}

// Action is a displacement vector plus the labels used when printing policies.
type Action struct {
	DI, DJ int
	Label  string
	Symbol rune
}

// Transition is the deterministic outcome of applying an action in some state:
// the landing cell, the reward of the landing cell, and whether it is terminal.
type Transition struct {
	Next     Cell
	Reward   float64
	Terminal bool
}

// Cell kinds used by layouts.
const (
	STEP    = 'o'
	PENALTY = 'x'
	GOAL    = '+'
)

// Rewards of the reference problem.
const (
	GOAL_REWARD    = 10.0
	PENALTY_REWARD = -5.0
	STEP_REWARD    = -1.0
	GAMMA          = 0.95
)

// The action order is significant: it decides which action is reported first
// among tied actions.
var (
	Right = Action{DI: 0, DJ: +1, Label: "Right", Symbol: '→'}
	Left  = Action{DI: 0, DJ: -1, Label: "Left", Symbol: '←'}
	Down  = Action{DI: +1, DJ: 0, Label: "Down", Symbol: '↓'}
	Up    = Action{DI: -1, DJ: 0, Label: "Up", Symbol: '↑'}

	DefaultActions = []Action{Right, Left, Down, Up}
)

var (
	ErrInvalidSize   = errors.New("grid size must be positive")
	ErrInvalidGamma  = errors.New("discount factor must be in (0,1]")
	ErrNoActions     = errors.New("action set is empty")
	ErrOutOfBounds   = errors.New("state is out of bounds")
	ErrInvalidAction = errors.New("action index is out of range")
	ErrInvalidLayout = errors.New("invalid layout")
)

// GridSpec describes a square grid world by its special cells. Every cell that
// is neither a goal nor a penalty earns StepReward.
type GridSpec struct {
	Size          int
	Gamma         float64
	Goals         []Cell
	Penalties     []Cell
	GoalReward    float64
	PenaltyReward float64
	StepReward    float64
}

// DefaultSpec is the reference 5x5 problem: goal at the bottom right corner,
// three grey penalty cells, and a step cost everywhere else.
func DefaultSpec() GridSpec {
	return GridSpec{
		Size:          5,
		Gamma:         GAMMA,
		Goals:         []Cell{{4, 4}},
		Penalties:     []Cell{{1, 2}, {3, 0}, {0, 4}},
		GoalReward:    GOAL_REWARD,
		PenaltyReward: PENALTY_REWARD,
		StepReward:    STEP_REWARD,
	}
}

// GridModel is the environment of the MDP. It holds no values; every method is
// a pure query over the geometry, rewards and terminal set fixed at construction.
type GridModel struct {
	size      int
	gamma     float64
	rewards   [][]float64
	kinds     [][]rune
	terminals map[Cell]struct{}
	actions   []Action
}

// Option customizes a GridModel during construction.
type Option func(*GridModel)

// WithActions replaces the default Right, Left, Down, Up action set.
func WithActions(actions []Action) Option {
	return func(gm *GridModel) {
		gm.actions = append([]Action(nil), actions...)
	}
}

// NewGridModel builds a model from the passed spec, failing on any invalid configuration.
func NewGridModel(spec GridSpec, opts ...Option) (*GridModel, error) {
	if spec.Size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, spec.Size)
	}

	kinds := make([][]rune, spec.Size)
	for i := range kinds {
		kinds[i] = make([]rune, spec.Size)
		for j := range kinds[i] {
			kinds[i][j] = STEP
		}
	}

	mark := func(cells []Cell, kind rune) error {
		for _, c := range cells {
			if c.I < 0 || c.I >= spec.Size || c.J < 0 || c.J >= spec.Size {
				return fmt.Errorf("%c cell %v: %w", kind, c, ErrOutOfBounds)
			}
			kinds[c.I][c.J] = kind
		}
		return nil
	}
	if err := mark(spec.Penalties, PENALTY); err != nil {
		return nil, err
	}
	// Goals are marked last so a cell listed as both is terminal.
	if err := mark(spec.Goals, GOAL); err != nil {
		return nil, err
	}

	return build(kinds, spec.Gamma, Rewards{
		Goal:    spec.GoalReward,
		Penalty: spec.PenaltyReward,
		Step:    spec.StepReward,
	}, opts...)
}

func build(kinds [][]rune, gamma float64, rewards Rewards, opts ...Option) (*GridModel, error) {
	if gamma <= 0 || gamma > 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGamma, gamma)
	}

	gm := &GridModel{
		size:      len(kinds),
		gamma:     gamma,
		kinds:     kinds,
		rewards:   make([][]float64, len(kinds)),
		terminals: map[Cell]struct{}{},
		actions:   append([]Action(nil), DefaultActions...),
	}
	for _, opt := range opts {
		opt(gm)
	}
	if len(gm.actions) == 0 {
		return nil, ErrNoActions
	}

	for i, row := range kinds {
		gm.rewards[i] = make([]float64, len(row))
		for j, kind := range row {
			gm.rewards[i][j] = rewards.of(kind)
			if kind == GOAL {
				gm.terminals[Cell{i, j}] = struct{}{}
			}
		}
	}
	return gm, nil
}

// Size returns N for the NxN grid.
func (gm *GridModel) Size() int {
	return gm.size
}

// Gamma returns the discount factor.
func (gm *GridModel) Gamma() float64 {
	return gm.gamma
}

// Actions returns a copy of the ordered action set.
func (gm *GridModel) Actions() []Action {
	return append([]Action(nil), gm.actions...)
}

// IsValidState reports whether (i,j) lies on the grid.
func (gm *GridModel) IsValidState(i, j int) bool {
	return i >= 0 && i < gm.size && j >= 0 && j < gm.size
}

// IsTerminal reports whether (i,j) is a member of the terminal set.
func (gm *GridModel) IsTerminal(i, j int) bool {
	_, ok := gm.terminals[Cell{i, j}]
	return ok
}

// Kind returns the layout rune of a cell, or zero if it is off the grid.
func (gm *GridModel) Kind(i, j int) rune {
	if !gm.IsValidState(i, j) {
		return 0
	}
	return gm.kinds[i][j]
}

// Reward is the state-based reward R(i,j). Querying a cell off the grid is a
// caller bug and fails rather than clamping.
func (gm *GridModel) Reward(i, j int) (float64, error) {
	if !gm.IsValidState(i, j) {
		return 0, fmt.Errorf("reward %v: %w", Cell{i, j}, ErrOutOfBounds)
	}
	return gm.rewards[i][j], nil
}

// Step applies the indexed action in state (i,j). An action that would leave the
// grid bounces off the border and leaves the agent where it was. The reward is
// that of the landing cell.
func (gm *GridModel) Step(action, i, j int) (tr Transition, err error) {
	if action < 0 || action >= len(gm.actions) {
		err = fmt.Errorf("step %d: %w", action, ErrInvalidAction)
		return
	}
	if !gm.IsValidState(i, j) {
		err = fmt.Errorf("step from %v: %w", Cell{i, j}, ErrOutOfBounds)
		return
	}

	a := gm.actions[action]
	next := Cell{i + a.DI, j + a.DJ}
	if !gm.IsValidState(next.I, next.J) {
		next = Cell{i, j}
	}

	tr = Transition{
		Next:     next,
		Reward:   gm.rewards[next.I][next.J],
		Terminal: gm.IsTerminal(next.I, next.J),
	}
	return
}

// States returns every cell in row-major order.
func (gm *GridModel) States() (states []Cell) {
	states = make([]Cell, 0, gm.size*gm.size)
	Visit(gm.size, func(i, j int) {
		states = append(states, Cell{i, j})
	})
	return
}

// Terminals returns the terminal cells in row-major order.
func (gm *GridModel) Terminals() (terminals []Cell) {
	Visit(gm.size, func(i, j int) {
		if gm.IsTerminal(i, j) {
			terminals = append(terminals, Cell{i, j})
		}
	})
	return
}

// Visits every (i,j) of an NxN grid in row-major order.
func Visit(size int, fn func(i, j int)) {
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			fn(i, j)
		}
	}
}
