package ui

import (
	"context"
	"sync"

	"epiclim/domain/dataset"
	"epiclim/domain/epimod"
	"epiclim/internal"
	"epiclim/internal/analysis"
	"epiclim/internal/errors"
)

// Views the dashboard can plot.
const (
	ViewUncertainty   = "uncertainty"
	ViewDecomposition = "decomposition"
	ViewSuitability   = "suitability"
)

// ClimateProvider supplies example datasets.
type ClimateProvider interface {
	ListExamples() []string
	GetDataset(ctx context.Context, name string) (*dataset.Dataset, error)
	InspectScope(ds *dataset.Dataset) dataset.Scope
}

// Analyzer runs the statistics pipeline.
type Analyzer interface {
	UncertaintyPipeline(ds *dataset.Dataset, confLevel float64, estimateInternal bool) (*dataset.Dataset, error)
	VarDecomp(ds *dataset.Dataset, fraction, estimateInternal bool) (*dataset.Dataset, error)
}

// EpiRunner evaluates suitability models.
type EpiRunner interface {
	RangeModel(lower, upper float64) (*epimod.SuitabilityModel, error)
	RunSuitability(model *epimod.SuitabilityModel, dsClim *dataset.Dataset) (*dataset.Dataset, error)
	RunMonthsSuitable(model *epimod.SuitabilityModel, dsClim *dataset.Dataset, threshold float64) (*dataset.Dataset, error)
}

// State holds the dashboard's input fields. Derived data lives on the
// controller; the dependency of each derived value on these fields is
// explicit in the recompute pass.
type State struct {
	Example          string
	Variable         string
	View             string
	ConfLevel        float64
	EstimateInternal bool

	// Suitability model parameters.
	SuitLower float64
	SuitUpper float64
	Threshold float64

	// Status is the short message shown in the dashboard header. Errors from
	// actions update it before being returned.
	Status string
}

// Controller owns the dashboard state and recomputes derived datasets when
// inputs change. Derived values form two layers:
//
//	raw      <- Example
//	plotData <- raw, Variable, View, ConfLevel, EstimateInternal,
//	            SuitLower, SuitUpper, Threshold
//
// Each update runs a single deterministic recompute pass over the layers in
// that order; there is no reentrancy.
type Controller struct {
	climate  ClimateProvider
	analysis Analyzer
	epi      EpiRunner
	logger   *internal.Logger

	mu       sync.Mutex
	state    State
	raw      *dataset.Dataset
	scope    dataset.Scope
	plotData *dataset.Dataset
}

// NewController creates a dashboard controller with default parameters.
func NewController(climate ClimateProvider, analyzer Analyzer, epi EpiRunner, logger *internal.Logger) *Controller {
	return &Controller{
		climate:  climate,
		analysis: analyzer,
		epi:      epi,
		logger:   logger,
		state: State{
			View:      ViewUncertainty,
			ConfLevel: analysis.DefaultConfLevel,
			SuitLower: 18,
			SuitUpper: 34,
			Threshold: 0.5,
			Status:    "Select an example dataset",
		},
	}
}

// StateSnapshot returns a copy of the current input fields.
func (c *Controller) StateSnapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Scope returns the derived scope of the loaded dataset.
func (c *Controller) Scope() dataset.Scope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scope
}

// PlotData returns the currently derived plot dataset, which may be nil when
// nothing is loaded.
func (c *Controller) PlotData() *dataset.Dataset {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.plotData
}

// SelectExample loads a new example dataset and recomputes everything
// derived from it.
func (c *Controller) SelectExample(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Example = name
	return c.recompute(ctx, true)
}

// UpdateParams changes the analysis parameters and recomputes the plot data.
// The loaded dataset is reused.
func (c *Controller) UpdateParams(ctx context.Context, update func(*State)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	update(&c.state)
	return c.recompute(ctx, false)
}

// recompute runs the derived-value layers in dependency order. On failure
// the status field is updated before the error propagates, so failures are
// both visible and logged.
func (c *Controller) recompute(ctx context.Context, reload bool) error {
	if reload {
		c.state.Status = "Loading " + c.state.Example
		raw, err := c.climate.GetDataset(ctx, c.state.Example)
		if err != nil {
			return c.fail(err)
		}
		c.raw = raw
		c.scope = c.climate.InspectScope(raw)
		if c.state.Variable == "" {
			if names := raw.NonBoundsVars(); len(names) > 0 {
				c.state.Variable = names[0]
			}
		}
	}
	if c.raw == nil {
		c.plotData = nil
		c.state.Status = "Select an example dataset"
		return nil
	}

	ds, err := c.derivePlotData(c.raw)
	if err != nil {
		return c.fail(err)
	}
	c.plotData = ds
	c.state.Status = "Ready"
	return nil
}

func (c *Controller) derivePlotData(raw *dataset.Dataset) (*dataset.Dataset, error) {
	switch c.state.View {
	case ViewUncertainty:
		return c.analysis.UncertaintyPipeline(raw, c.state.ConfLevel, c.state.EstimateInternal)
	case ViewDecomposition:
		return c.analysis.VarDecomp(raw, true, c.state.EstimateInternal)
	case ViewSuitability:
		model, err := c.epi.RangeModel(c.state.SuitLower, c.state.SuitUpper)
		if err != nil {
			return nil, err
		}
		return c.epi.RunMonthsSuitable(model, raw, c.state.Threshold)
	default:
		return nil, errors.InvalidInput("unknown view " + c.state.View)
	}
}

// fail records a short status string and passes the error on.
func (c *Controller) fail(err error) error {
	c.state.Status = "Error: " + err.Error()
	c.plotData = nil
	c.logger.Error("Dashboard action failed: %v", err)
	return err
}
