// fastview implements a builder pattern for simple server-side views:
// given an input data model, convert it to a view-model, and multiplex
// that view-model to one or more views which emit element updates.
package fastview

import (
	"html/template"
)

// EleUpdate is an element identifier and a set of operations to apply to its attributes/content.
type EleUpdate struct {
	// The id by which to find the element
	EleId string
	// Op keys are attribute keys or 'textContent', values are the strings to which these are set.
	// ('x','123') means "set attribute x to 123", ('textContent','abc') means "set ele.textContent to abc".
	Ops []Op
}

// Op is a key and value, such as an html attribute and its new value.
type Op struct {
	Key   string
	Value string
}

// ViewComponent is a server side view: Parse adds its initial form to a parent
// template, and Updates is the chan over which its element updates are published.
type ViewComponent interface {
	Updates() <-chan []EleUpdate
	// Parse adds the view to the passed parent template, inheriting its func-map,
	// and returns the name of the defined template.
	Parse(*template.Template) (string, error)
}
