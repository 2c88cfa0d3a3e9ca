package grid_world

import (
	"fmt"
	"io"

	"github.com/logrusorgru/aurora"
)

// Colors toggles ANSI colouring of the console views. Tests and non-terminal
// writers should disable it.
var Colors = true

func colorize(kind rune, s string) aurora.Value {
	au := aurora.NewAurora(Colors)
	switch kind {
	case GOAL:
		return au.Green(s)
	case PENALTY:
		return au.Red(s)
	default:
		return au.Blue(s)
	}
}

// ShowGrid prints the cell kinds, for visual reference.
func ShowGrid(w io.Writer, gm *GridModel) {
	for i := 0; i < gm.Size(); i++ {
		for j := 0; j < gm.Size(); j++ {
			kind := gm.Kind(i, j)
			fmt.Fprintf(w, "%s ", colorize(kind, string(kind)))
		}
		fmt.Fprintln(w)
	}
}

// ShowValues prints a value per cell, coloured by the kind of the cell.
func ShowValues(w io.Writer, gm *GridModel, value func(i, j int) float64) {
	for i := 0; i < gm.Size(); i++ {
		for j := 0; j < gm.Size(); j++ {
			fmt.Fprintf(w, "%s ", colorize(gm.Kind(i, j), fmt.Sprintf("%7.2f", value(i, j))))
		}
		fmt.Fprintln(w)
	}
}
