package fastview

import (
	"context"
	"errors"

	channerics "github.com/niceyeti/channerics/channels"
)

// ViewBuilderFunc builds a view from a 'done' channel and an input view-model channel.
type ViewBuilderFunc[ViewModel any] func(<-chan struct{}, <-chan ViewModel) ViewComponent

// ViewBuilder constructs one or more views sharing a common view-model. Build wires
// source -> convert -> broadcast -> views, so every view sees every view-model.
type ViewBuilder[DataModel any, ViewModel any] struct {
	source   <-chan DataModel
	convert  func(DataModel) ViewModel
	builders []ViewBuilderFunc[ViewModel]
	done     <-chan struct{} // nil means never done
}

// NewViewBuilder returns a builder for a given data-model and view-model.
func NewViewBuilder[DataModel any, ViewModel any]() *ViewBuilder[DataModel, ViewModel] {
	return &ViewBuilder[DataModel, ViewModel]{}
}

// WithModel sets the data-model source and the function converting each item
// to the view-model.
func (vb *ViewBuilder[DataModel, ViewModel]) WithModel(
	input <-chan DataModel,
	convert func(DataModel) ViewModel,
) *ViewBuilder[DataModel, ViewModel] {
	vb.source = input
	vb.convert = convert
	return vb
}

// WithView adds a view to build. Views are returned in the order they were added.
func (vb *ViewBuilder[DataModel, ViewModel]) WithView(
	builderFn ViewBuilderFunc[ViewModel],
) *ViewBuilder[DataModel, ViewModel] {
	vb.builders = append(vb.builders, builderFn)
	return vb
}

// WithContext closes all downstream channels when ctx is cancelled.
func (vb *ViewBuilder[DataModel, ViewModel]) WithContext(
	ctx context.Context,
) *ViewBuilder[DataModel, ViewModel] {
	vb.done = ctx.Done()
	return vb
}

// ErrNoViews is returned when Build() is called before the caller has added any views.
var ErrNoViews error = errors.New("no views to build: WithView must be called")

// ErrNoModel is returned when Build() is called before WithModel() has been called.
var ErrNoModel error = errors.New("no model specified: WithModel must be called")

// Build connects the channels and returns the views.
func (vb *ViewBuilder[DataModel, ViewModel]) Build() (views []ViewComponent, err error) {
	if len(vb.builders) == 0 {
		return nil, ErrNoViews
	}
	if vb.convert == nil || vb.source == nil {
		return nil, ErrNoModel
	}

	vmChan := channerics.Convert(vb.done, vb.source, vb.convert)
	vmChans := channerics.Broadcast(vb.done, vmChan, len(vb.builders))
	for i, build := range vb.builders {
		views = append(views, build(vb.done, vmChans[i]))
	}
	return
}
