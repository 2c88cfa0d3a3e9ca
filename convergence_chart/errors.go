package convergence_chart

import "errors"

// ErrNoSweeps is returned when rendering a recorder that saw no sweeps.
var ErrNoSweeps = errors.New("no sweeps recorded")
