package reinforcement

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"gridvalue/grid_world"
)

// GOAL_MARKER is printed in place of an action for terminal states.
const GOAL_MARKER = "G"

// Policy is the greedy policy derived from a value table. Terminal states carry no
// action; every other state carries the full set of actions tied for the max.
type Policy struct {
	size    int
	actions []grid_world.Action
	// ties[i][j] is nil for terminal states.
	ties [][][]int
}

// ExtractPolicy runs the one-step lookahead against values for every
// non-terminal state. It depends on nothing but the model and the passed table,
// so extracting twice from the same table yields the same policy.
func ExtractPolicy(model Model, values *ValueTable) (*Policy, error) {
	if err := checkSize(model, values); err != nil {
		return nil, err
	}
	actions := model.Actions()
	p := &Policy{
		size:    model.Size(),
		actions: actions,
		ties:    make([][][]int, model.Size()),
	}

	for i := range p.ties {
		p.ties[i] = make([][]int, p.size)
		for j := range p.ties[i] {
			if model.IsTerminal(i, j) {
				continue
			}
			la, err := lookahead(model, len(actions), values, i, j)
			if err != nil {
				return nil, err
			}
			p.ties[i][j] = la.Actions
		}
	}
	return p, nil
}

func (p *Policy) Size() int {
	return p.size
}

// IsTerminal reports whether (i,j) holds the terminal sentinel.
func (p *Policy) IsTerminal(i, j int) bool {
	return p.ties[i][j] == nil
}

// Best returns the first action achieving the max, or false for terminal states.
func (p *Policy) Best(i, j int) (int, bool) {
	if p.IsTerminal(i, j) {
		return -1, false
	}
	return p.ties[i][j][0], true
}

// Ties returns every action index achieving the max, in action order.
func (p *Policy) Ties(i, j int) []int {
	return slices.Clone(p.ties[i][j])
}

// Labels returns the labels of the tied actions.
func (p *Policy) Labels(i, j int) (labels []string) {
	for _, a := range p.ties[i][j] {
		labels = append(labels, p.actions[a].Label)
	}
	return
}

// Equal reports whether both policies pick the same tied action sets everywhere.
func (p *Policy) Equal(other *Policy) bool {
	if p.size != other.size {
		return false
	}
	for i := range p.ties {
		for j := range p.ties[i] {
			if p.IsTerminal(i, j) != other.IsTerminal(i, j) ||
				!slices.Equal(p.ties[i][j], other.ties[i][j]) {
				return false
			}
		}
	}
	return true
}

// RenderMode chooses how tied actions are displayed.
type RenderMode int

const (
	// FirstAction prints one arrow per state: the first tied action.
	FirstAction RenderMode = iota
	// AllTies prints every tied action label, joined by '|'.
	AllTies
)

// Render writes the policy as a grid, one row per line. It is for inspection only.
func (p *Policy) Render(w io.Writer, mode RenderMode) (err error) {
	cells := make([][]string, p.size)
	width := len(GOAL_MARKER)
	for i := range cells {
		cells[i] = make([]string, p.size)
		for j := range cells[i] {
			switch {
			case p.IsTerminal(i, j):
				cells[i][j] = GOAL_MARKER
			case mode == AllTies:
				cells[i][j] = strings.Join(p.Labels(i, j), "|")
			default:
				cells[i][j] = string(p.actions[p.ties[i][j][0]].Symbol)
			}
			width = max(width, len([]rune(cells[i][j])))
		}
	}

	for _, row := range cells {
		padded := make([]string, len(row))
		for j, cell := range row {
			padded[j] = fmt.Sprintf("%*s", width, cell)
		}
		if _, err = fmt.Fprintln(w, strings.Join(padded, " ")); err != nil {
			return
		}
	}
	return
}

// String renders the policy with FirstAction.
func (p *Policy) String() string {
	sb := &strings.Builder{}
	_ = p.Render(sb, FirstAction)
	return sb.String()
}
