package reinforcement

import (
	"bytes"
	"strings"
	"testing"

	"gridvalue/grid_world"

	. "github.com/smartystreets/goconvey/convey"
)

// A goal in the corner of an otherwise uniform grid is symmetric about the
// diagonal, so diagonal states see identical values to their right and below.
var symmetricLayout = []string{
	"ooo",
	"ooo",
	"oo+",
}

func TestPolicyTies(t *testing.T) {
	Convey("When two actions yield identical values", t, func() {
		gm, err := grid_world.FromLayout(symmetricLayout, 0.9, grid_world.DefaultRewards)
		So(err, ShouldBeNil)
		solver, result := mustSolve(gm, WithTheta(1e-9))
		So(result.Converged, ShouldBeTrue)
		policy, err := solver.Policy()
		So(err, ShouldBeNil)

		Convey("Both labels are reported", func() {
			So(policy.Labels(1, 1), ShouldResemble, []string{"Right", "Down"})
			So(policy.Labels(0, 0), ShouldResemble, []string{"Right", "Down"})
			So(policy.Ties(1, 1), ShouldResemble, []int{0, 2})
		})

		Convey("The first tied action is the best action", func() {
			best, ok := policy.Best(1, 1)
			So(ok, ShouldBeTrue)
			So(best, ShouldEqual, 0)
		})

		Convey("Off-diagonal states have a single best action", func() {
			So(policy.Labels(2, 1), ShouldResemble, []string{"Right"})
			So(policy.Labels(1, 2), ShouldResemble, []string{"Down"})
		})

		Convey("Rendering shows one arrow or every tie", func() {
			buf := &bytes.Buffer{}
			So(policy.Render(buf, FirstAction), ShouldBeNil)
			lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
			So(strings.Fields(lines[1]), ShouldResemble, []string{"→", "→", "↓"})
			So(strings.Fields(lines[2]), ShouldResemble, []string{"→", "→", "G"})
			So(policy.String(), ShouldEqual, buf.String())

			buf.Reset()
			So(policy.Render(buf, AllTies), ShouldBeNil)
			lines = strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
			So(strings.Fields(lines[1])[1], ShouldEqual, "Right|Down")
			So(strings.Fields(lines[2])[2], ShouldEqual, GOAL_MARKER)
		})
	})
}

func TestPolicyExtraction(t *testing.T) {
	Convey("When extracting a policy from a converged table", t, func() {
		gm := referenceModel()
		solver, result := mustSolve(gm, WithTheta(0.05))

		Convey("Extraction is idempotent", func() {
			first, err := ExtractPolicy(gm, result.Values)
			So(err, ShouldBeNil)
			second, err := ExtractPolicy(gm, result.Values)
			So(err, ShouldBeNil)
			So(first.Equal(second), ShouldBeTrue)

			fromSolver, err := solver.Policy()
			So(err, ShouldBeNil)
			So(fromSolver.Equal(first), ShouldBeTrue)
		})

		Convey("Extraction does not touch the table", func() {
			before := result.Values.Clone()
			_, err := ExtractPolicy(gm, result.Values)
			So(err, ShouldBeNil)
			So(result.Values.MaxDiff(before), ShouldEqual, 0.0)
		})

		Convey("Only terminal states carry the sentinel", func() {
			policy, err := ExtractPolicy(gm, result.Values)
			So(err, ShouldBeNil)
			for _, c := range gm.States() {
				So(policy.IsTerminal(c.I, c.J), ShouldEqual, gm.IsTerminal(c.I, c.J))
			}
		})

		Convey("Policies from different tables differ", func() {
			zero, err := ExtractPolicy(gm, NewValueTable(gm.Size()))
			So(err, ShouldBeNil)
			converged, err := ExtractPolicy(gm, result.Values)
			So(err, ShouldBeNil)
			So(zero.Equal(converged), ShouldBeFalse)
		})
	})
}
