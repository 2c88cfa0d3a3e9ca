package reinforcement

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestValueTable(t *testing.T) {
	Convey("When a table is built from rows", t, func() {
		vt := ValueTableFrom([][]float64{
			{1, -2},
			{3, 6},
		})

		Convey("Cells are addressed [i][j]", func() {
			So(vt.Size(), ShouldEqual, 2)
			So(vt.At(0, 1), ShouldEqual, -2.0)
			So(vt.At(1, 0), ShouldEqual, 3.0)
		})

		Convey("Summaries cover every cell", func() {
			So(vt.Mean(), ShouldEqual, 2.0)
			So(vt.Max(), ShouldEqual, 6.0)
			So(vt.Min(), ShouldEqual, -2.0)
		})

		Convey("Clones are independent", func() {
			clone := vt.Clone()
			clone.Set(0, 0, 10)
			So(vt.At(0, 0), ShouldEqual, 1.0)
			So(clone.MaxDiff(vt), ShouldEqual, 9.0)
		})

		Convey("Rows are copies", func() {
			rows := vt.Rows()
			So(rows, ShouldResemble, [][]float64{{1, -2}, {3, 6}})
			rows[1][1] = 0
			So(vt.At(1, 1), ShouldEqual, 6.0)
		})
	})
}
