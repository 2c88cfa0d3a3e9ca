package grid_world

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNewGridModel(t *testing.T) {
	Convey("When the reference grid spec is built", t, func() {
		gm, err := NewGridModel(DefaultSpec())
		So(err, ShouldBeNil)

		Convey("Every cell has the reward of its kind", func() {
			for _, c := range gm.States() {
				r, err := gm.Reward(c.I, c.J)
				So(err, ShouldBeNil)
				switch c {
				case Cell{4, 4}:
					So(r, ShouldEqual, 10.0)
				case Cell{1, 2}, Cell{3, 0}, Cell{0, 4}:
					So(r, ShouldEqual, -5.0)
				default:
					So(r, ShouldEqual, -1.0)
				}
			}
		})

		Convey("Only the goal is terminal", func() {
			So(gm.Terminals(), ShouldResemble, []Cell{{4, 4}})
			So(gm.IsTerminal(4, 4), ShouldBeTrue)
			So(gm.IsTerminal(1, 2), ShouldBeFalse)
		})

		Convey("Geometry and discount are exposed", func() {
			So(gm.Size(), ShouldEqual, 5)
			So(gm.Gamma(), ShouldEqual, 0.95)
			So(len(gm.States()), ShouldEqual, 25)
			So(gm.Actions(), ShouldResemble, DefaultActions)
		})

		Convey("Actions returns a copy", func() {
			actions := gm.Actions()
			actions[0] = Up
			So(gm.Actions()[0], ShouldResemble, Right)
		})
	})

	Convey("When the configuration is invalid", t, func() {
		Convey("A non-positive size fails", func() {
			spec := DefaultSpec()
			spec.Size = 0
			spec.Goals, spec.Penalties = nil, nil
			_, err := NewGridModel(spec)
			So(errors.Is(err, ErrInvalidSize), ShouldBeTrue)
		})

		Convey("A discount factor outside (0,1] fails", func() {
			for _, gamma := range []float64{0, -0.5, 1.01} {
				spec := DefaultSpec()
				spec.Gamma = gamma
				_, err := NewGridModel(spec)
				So(errors.Is(err, ErrInvalidGamma), ShouldBeTrue)
			}
			spec := DefaultSpec()
			spec.Gamma = 1
			_, err := NewGridModel(spec)
			So(err, ShouldBeNil)
		})

		Convey("An empty action set fails", func() {
			_, err := NewGridModel(DefaultSpec(), WithActions(nil))
			So(errors.Is(err, ErrNoActions), ShouldBeTrue)
		})

		Convey("Special cells off the grid fail", func() {
			spec := DefaultSpec()
			spec.Goals = []Cell{{5, 5}}
			_, err := NewGridModel(spec)
			So(errors.Is(err, ErrOutOfBounds), ShouldBeTrue)
		})
	})
}

func TestStep(t *testing.T) {
	Convey("When stepping in the reference grid", t, func() {
		gm, err := NewGridModel(DefaultSpec())
		So(err, ShouldBeNil)
		n := gm.Size()

		Convey("Moves inside the grid land on the neighbour with its reward", func() {
			tr, err := gm.Step(0, 4, 3)
			So(err, ShouldBeNil)
			So(tr, ShouldResemble, Transition{Next: Cell{4, 4}, Reward: 10, Terminal: true})

			tr, err = gm.Step(2, 0, 2)
			So(err, ShouldBeNil)
			So(tr, ShouldResemble, Transition{Next: Cell{1, 2}, Reward: -5, Terminal: false})
		})

		Convey("Moves off any edge bounce back to the origin with its own reward", func() {
			for a, action := range gm.Actions() {
				for _, c := range gm.States() {
					ni, nj := c.I+action.DI, c.J+action.DJ
					if ni >= 0 && ni < n && nj >= 0 && nj < n {
						continue
					}
					tr, err := gm.Step(a, c.I, c.J)
					So(err, ShouldBeNil)
					So(tr.Next, ShouldResemble, c)
					r, _ := gm.Reward(c.I, c.J)
					So(tr.Reward, ShouldEqual, r)
					So(tr.Terminal, ShouldEqual, gm.IsTerminal(c.I, c.J))
				}
			}
		})

		Convey("Corners bounce on both of their open edges", func() {
			tr, _ := gm.Step(1, 0, 0)
			So(tr.Next, ShouldResemble, Cell{0, 0})
			tr, _ = gm.Step(3, 0, 0)
			So(tr.Next, ShouldResemble, Cell{0, 0})
			tr, _ = gm.Step(0, 0, 4)
			So(tr.Next, ShouldResemble, Cell{0, 4})
			So(tr.Reward, ShouldEqual, -5.0)
		})

		Convey("Out of bounds queries fail rather than clamp", func() {
			_, err := gm.Step(0, -1, 0)
			So(errors.Is(err, ErrOutOfBounds), ShouldBeTrue)
			_, err = gm.Reward(5, 0)
			So(errors.Is(err, ErrOutOfBounds), ShouldBeTrue)
			_, err = gm.Step(4, 0, 0)
			So(errors.Is(err, ErrInvalidAction), ShouldBeTrue)
		})
	})
}

func TestFromLayout(t *testing.T) {
	Convey("When converting the default layout", t, func() {
		fromLayout, err := FromLayout(DefaultLayout, GAMMA, DefaultRewards)
		So(err, ShouldBeNil)
		fromSpec, err := NewGridModel(DefaultSpec())
		So(err, ShouldBeNil)

		Convey("It matches the reference GridSpec", func() {
			for _, c := range fromSpec.States() {
				want, _ := fromSpec.Reward(c.I, c.J)
				got, _ := fromLayout.Reward(c.I, c.J)
				So(got, ShouldEqual, want)
				So(fromLayout.IsTerminal(c.I, c.J), ShouldEqual, fromSpec.IsTerminal(c.I, c.J))
			}
		})
	})

	Convey("When the layout is malformed", t, func() {
		_, err := FromLayout(nil, GAMMA, DefaultRewards)
		So(errors.Is(err, ErrInvalidLayout), ShouldBeTrue)

		_, err = FromLayout([]string{"oo", "o"}, GAMMA, DefaultRewards)
		So(errors.Is(err, ErrInvalidLayout), ShouldBeTrue)

		_, err = FromLayout([]string{"oW", "o+"}, GAMMA, DefaultRewards)
		So(errors.Is(err, ErrInvalidLayout), ShouldBeTrue)
	})
}

func TestShow(t *testing.T) {
	Convey("When printing without colours", t, func() {
		Colors = false
		defer func() { Colors = true }()
		gm, err := FromLayout(DefaultLayout, GAMMA, DefaultRewards)
		So(err, ShouldBeNil)

		Convey("The grid prints the layout runes", func() {
			buf := &bytes.Buffer{}
			ShowGrid(buf, gm)
			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			So(len(lines), ShouldEqual, 5)
			So(strings.Fields(lines[4]), ShouldResemble, []string{"o", "o", "o", "o", "+"})
		})

		Convey("Values print one row per grid row", func() {
			buf := &bytes.Buffer{}
			ShowValues(buf, gm, func(i, j int) float64 { return float64(i*10 + j) })
			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			So(len(lines), ShouldEqual, 5)
			So(strings.Fields(lines[2])[3], ShouldEqual, "23.00")
		})
	})
}
