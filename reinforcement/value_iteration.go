package reinforcement

/*
Value iteration over a deterministic grid world. The solver owns the only value
table; the model is queried for landing cells and rewards but never sees values.

Every sweep is synchronous (Jacobi style): the new table is computed solely from
the table held when the sweep began, never from values written earlier in the same
sweep. That is what makes the per-row workers below safe: they all read the same
frozen snapshot and write disjoint rows of the next table. Sweeps themselves are
strictly sequential.
*/

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gridvalue/atomic_float"
	"gridvalue/grid_world"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Model is what the solver needs from an environment.
type Model interface {
	Size() int
	Gamma() float64
	Actions() []grid_world.Action
	IsTerminal(i, j int) bool
	IsValidState(i, j int) bool
	Reward(i, j int) (float64, error)
	Step(action, i, j int) (grid_world.Transition, error)
}

// TerminalValue selects the value terminal states hold for the whole run.
type TerminalValue int

const (
	// Zero holds terminal states at 0: the reward is earned on the step into them.
	Zero TerminalValue = iota
	// TerminalReward holds terminal states at their own reward.
	TerminalReward
)

func (tv TerminalValue) String() string {
	if tv == TerminalReward {
		return "reward"
	}
	return "zero"
}

// ParseTerminalValue accepts "zero" or "reward".
func ParseTerminalValue(s string) (TerminalValue, error) {
	switch s {
	case "", "zero":
		return Zero, nil
	case "reward":
		return TerminalReward, nil
	}
	return Zero, fmt.Errorf("%w: %q", ErrInvalidTerminalValue, s)
}

// Status is the solver's lifecycle state.
type Status int

const (
	Initializing Status = iota
	Sweeping
	Converged
	// CapReached means the sweep cap ended the run before the threshold was met.
	CapReached
)

func (st Status) String() string {
	switch st {
	case Initializing:
		return "initializing"
	case Sweeping:
		return "sweeping"
	case Converged:
		return "converged"
	case CapReached:
		return "cap-reached"
	}
	return fmt.Sprintf("status(%d)", int(st))
}

const (
	DefaultTheta     = 0.01
	DefaultMaxSweeps = 1000
)

var (
	ErrInvalidTheta         = errors.New("convergence threshold must be positive")
	ErrInvalidMaxSweeps     = errors.New("sweep cap must be positive")
	ErrInvalidWorkers       = errors.New("worker count must be positive")
	ErrInvalidTerminalValue = errors.New("terminal value must be zero or reward")
	ErrNoValidAction        = errors.New("no action leads to a valid state")
	ErrSizeMismatch         = errors.New("value table size differs from the model's")
)

// SweepReport describes a completed sweep. Values is a private copy.
type SweepReport struct {
	RunID  uuid.UUID
	Sweep  int
	Delta  float64
	Mean   float64
	Values *ValueTable
}

// ProgressFunc is called synchronously after every sweep, so it should complete
// quickly or respect the context to avoid stalling the run.
type ProgressFunc func(context.Context, SweepReport)

// Result is the outcome of Run.
type Result struct {
	RunID     uuid.UUID
	Values    *ValueTable
	Sweeps    int
	Delta     float64
	Status    Status
	Converged bool
}

// Solver runs value iteration against a Model.
type Solver struct {
	model     Model
	nactions  int
	theta     float64
	maxSweeps int
	terminal  TerminalValue
	workers   int
	progress  ProgressFunc
	logger    zerolog.Logger

	runID  uuid.UUID
	values *ValueTable
	sweeps int
	delta  float64
	status Status

	// maxDelta is reset at the start of every sweep and raised by each worker.
	maxDelta *atomic_float.AtomicFloat64
}

// SolverOption configures a Solver.
type SolverOption func(*Solver)

// WithTheta sets the convergence threshold on the max per-sweep change.
func WithTheta(theta float64) SolverOption {
	return func(s *Solver) { s.theta = theta }
}

// WithMaxSweeps caps the number of sweeps Run performs.
func WithMaxSweeps(n int) SolverOption {
	return func(s *Solver) { s.maxSweeps = n }
}

// WithTerminalValue selects the terminal value convention.
func WithTerminalValue(tv TerminalValue) SolverOption {
	return func(s *Solver) { s.terminal = tv }
}

// WithWorkers splits each sweep's rows across n goroutines.
func WithWorkers(n int) SolverOption {
	return func(s *Solver) { s.workers = n }
}

// WithProgress registers a hook called after every sweep of Run.
func WithProgress(fn ProgressFunc) SolverOption {
	return func(s *Solver) { s.progress = fn }
}

func WithLogger(logger zerolog.Logger) SolverOption {
	return func(s *Solver) { s.logger = logger }
}

// NewSolver validates its options and initializes the value table.
func NewSolver(model Model, opts ...SolverOption) (*Solver, error) {
	s := &Solver{
		model:     model,
		theta:     DefaultTheta,
		maxSweeps: DefaultMaxSweeps,
		terminal:  Zero,
		workers:   1,
		logger:    zerolog.Nop(),
		runID:     uuid.New(),
		maxDelta:  atomic_float.NewAtomicFloat64(0),
	}
	for _, opt := range opts {
		opt(s)
	}

	switch {
	case !(s.theta > 0):
		return nil, fmt.Errorf("%w: %v", ErrInvalidTheta, s.theta)
	case s.maxSweeps <= 0:
		return nil, fmt.Errorf("%w: %d", ErrInvalidMaxSweeps, s.maxSweeps)
	case s.workers <= 0:
		return nil, fmt.Errorf("%w: %d", ErrInvalidWorkers, s.workers)
	case s.terminal != Zero && s.terminal != TerminalReward:
		return nil, fmt.Errorf("%w: %d", ErrInvalidTerminalValue, s.terminal)
	}

	s.nactions = len(model.Actions())
	if s.nactions == 0 {
		return nil, grid_world.ErrNoActions
	}
	s.logger = s.logger.With().Str("run", s.runID.String()).Logger()

	var err error
	if s.values, err = s.initialValues(); err != nil {
		return nil, err
	}
	return s, nil
}

// initialValues is all zeros, except for terminal states under the
// TerminalReward convention. Sweeps never write terminal cells afterward.
func (s *Solver) initialValues() (*ValueTable, error) {
	values := NewValueTable(s.model.Size())
	if s.terminal != TerminalReward {
		return values, nil
	}

	var err error
	grid_world.Visit(s.model.Size(), func(i, j int) {
		if err != nil || !s.model.IsTerminal(i, j) {
			return
		}
		var r float64
		if r, err = s.model.Reward(i, j); err == nil {
			values.Set(i, j, r)
		}
	})
	return values, err
}

func (s *Solver) RunID() uuid.UUID {
	return s.runID
}

func (s *Solver) Status() Status {
	return s.status
}

// Sweeps returns the number of sweeps performed so far.
func (s *Solver) Sweeps() int {
	return s.sweeps
}

// Values returns a copy of the current value table.
func (s *Solver) Values() *ValueTable {
	return s.values.Clone()
}

// Sweep performs one synchronous Bellman optimality sweep and returns the max
// change over non-terminal states. The table is replaced only if the whole sweep
// succeeds.
func (s *Solver) Sweep(ctx context.Context) (delta float64, err error) {
	size := s.model.Size()
	old := s.values
	// Terminal cells are carried over by the clone and never written.
	next := old.Clone()
	s.maxDelta.AtomicSet(0)

	group, groupCtx := errgroup.WithContext(ctx)
	for _, rows := range partition(size, s.workers) {
		rows := rows
		group.Go(func() error {
			local := 0.0
			for i := rows[0]; i < rows[1]; i++ {
				if err := groupCtx.Err(); err != nil {
					return err
				}
				for j := 0; j < size; j++ {
					if s.model.IsTerminal(i, j) {
						continue
					}
					la, err := lookahead(s.model, s.nactions, old, i, j)
					if err != nil {
						return err
					}
					next.Set(i, j, la.Value)
					local = math.Max(local, math.Abs(la.Value-old.At(i, j)))
				}
			}
			s.maxDelta.AtomicMax(local)
			return nil
		})
	}
	if err = group.Wait(); err != nil {
		return
	}

	delta = s.maxDelta.AtomicRead()
	s.values = next
	s.sweeps++
	s.delta = delta
	s.status = Sweeping
	return
}

// Run sweeps until the max change of a sweep is at most theta, or until the sweep
// cap is reached. Reaching the cap is reported through Result.Status, not as an
// error. Cancelling ctx stops the run between sweeps.
func (s *Solver) Run(ctx context.Context) (*Result, error) {
	for s.status != Converged && s.sweeps < s.maxSweeps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		delta, err := s.Sweep(ctx)
		if err != nil {
			return nil, fmt.Errorf("sweep %d: %w", s.sweeps+1, err)
		}

		mean := s.values.Mean()
		s.logger.Debug().
			Int("sweep", s.sweeps).
			Float64("delta", delta).
			Float64("mean", mean).
			Msg("sweep complete")

		if s.progress != nil {
			s.progress(ctx, SweepReport{
				RunID:  s.runID,
				Sweep:  s.sweeps,
				Delta:  delta,
				Mean:   mean,
				Values: s.values.Clone(),
			})
		}

		if delta <= s.theta {
			s.status = Converged
		}
	}

	if s.status != Converged {
		s.status = CapReached
		s.logger.Warn().
			Int("sweeps", s.sweeps).
			Float64("delta", s.delta).
			Float64("theta", s.theta).
			Msg("sweep cap reached before convergence")
	}

	return &Result{
		RunID:     s.runID,
		Values:    s.values.Clone(),
		Sweeps:    s.sweeps,
		Delta:     s.delta,
		Status:    s.status,
		Converged: s.status == Converged,
	}, nil
}

// Policy extracts the greedy policy from the current value table.
func (s *Solver) Policy() (*Policy, error) {
	return ExtractPolicy(s.model, s.values)
}

// Lookahead is the result of a one-step lookahead: the best action value and
// every action index attaining it, in action order.
type Lookahead struct {
	Value   float64
	Actions []int
}

// Best returns the first of the tied actions.
func (la Lookahead) Best() int {
	return la.Actions[0]
}

// OneStep computes max_a [r(s') + gamma * V(s')] for state (i,j) against values.
func OneStep(model Model, values *ValueTable, i, j int) (Lookahead, error) {
	if err := checkSize(model, values); err != nil {
		return Lookahead{}, err
	}
	if !model.IsValidState(i, j) {
		return Lookahead{}, fmt.Errorf("lookahead at (%d,%d): %w", i, j, grid_world.ErrOutOfBounds)
	}
	return lookahead(model, len(model.Actions()), values, i, j)
}

func checkSize(model Model, values *ValueTable) error {
	if values.Size() != model.Size() {
		return fmt.Errorf("%w: %d, model is %d", ErrSizeMismatch, values.Size(), model.Size())
	}
	return nil
}

func lookahead(model Model, nactions int, values *ValueTable, i, j int) (la Lookahead, err error) {
	gamma := model.Gamma()
	la.Value = math.Inf(-1)

	for a := 0; a < nactions; a++ {
		var tr grid_world.Transition
		if tr, err = model.Step(a, i, j); err != nil {
			return
		}
		// Border clamping means this never triggers for GridModel; other models may
		// hand back stray states.
		if !model.IsValidState(tr.Next.I, tr.Next.J) {
			continue
		}

		q := tr.Reward + gamma*values.At(tr.Next.I, tr.Next.J)
		switch {
		case q > la.Value:
			la.Value = q
			la.Actions = append(la.Actions[:0], a)
		case q == la.Value:
			la.Actions = append(la.Actions, a)
		}
	}

	if len(la.Actions) == 0 {
		err = fmt.Errorf("lookahead at (%d,%d): %w", i, j, ErrNoValidAction)
	}
	return
}

// partition splits [0,n) into at most k contiguous [lo,hi) ranges.
func partition(n, k int) (ranges [][2]int) {
	if k > n {
		k = n
	}
	if k < 1 {
		k = 1
	}
	chunk := n / k
	extra := n % k
	lo := 0
	for w := 0; w < k; w++ {
		hi := lo + chunk
		if w < extra {
			hi++
		}
		ranges = append(ranges, [2]int{lo, hi})
		lo = hi
	}
	return
}
