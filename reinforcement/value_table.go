package reinforcement

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ValueTable is a dense NxN table of state values, indexed [i][j] like the grid.
// The solver is its only writer; everything handed out is a clone.
type ValueTable struct {
	m *mat.Dense
}

// NewValueTable returns an NxN table of zeros.
func NewValueTable(size int) *ValueTable {
	return &ValueTable{m: mat.NewDense(size, size, nil)}
}

// ValueTableFrom copies the passed rows into a new table. The rows must form a square.
func ValueTableFrom(rows [][]float64) *ValueTable {
	vt := NewValueTable(len(rows))
	for i, row := range rows {
		vt.m.SetRow(i, row)
	}
	return vt
}

func (vt *ValueTable) Size() int {
	r, _ := vt.m.Dims()
	return r
}

func (vt *ValueTable) At(i, j int) float64 {
	return vt.m.At(i, j)
}

func (vt *ValueTable) Set(i, j int, v float64) {
	vt.m.Set(i, j, v)
}

// Clone returns an independent copy of the table.
func (vt *ValueTable) Clone() *ValueTable {
	return &ValueTable{m: mat.DenseCopyOf(vt.m)}
}

// Rows copies the table out as a row slice, e.g. for printing or views.
func (vt *ValueTable) Rows() (rows [][]float64) {
	rows = make([][]float64, vt.Size())
	for i := range rows {
		rows[i] = mat.Row(nil, i, vt.m)
	}
	return
}

// MaxDiff returns max |a(s) - b(s)| over all states.
func (vt *ValueTable) MaxDiff(other *ValueTable) float64 {
	return floats.Distance(vt.m.RawMatrix().Data, other.m.RawMatrix().Data, math.Inf(1))
}

// Mean returns the average value over all states.
func (vt *ValueTable) Mean() float64 {
	data := vt.m.RawMatrix().Data
	if len(data) == 0 {
		return 0
	}
	return floats.Sum(data) / float64(len(data))
}

// Max returns the largest value in the table.
func (vt *ValueTable) Max() float64 {
	return floats.Max(vt.m.RawMatrix().Data)
}

// Min returns the smallest value in the table.
func (vt *ValueTable) Min() float64 {
	return floats.Min(vt.m.RawMatrix().Data)
}
