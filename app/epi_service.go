package app

import (
	"time"

	"epiclim/adapters/excel"
	"epiclim/domain/dataset"
	"epiclim/domain/epimod"
	"epiclim/internal"
	"epiclim/internal/observability"
)

// EpiService evaluates epidemiological suitability models against climate
// datasets.
type EpiService struct {
	metrics *observability.Metrics
	logger  *internal.Logger
}

// NewEpiService creates the epidemiology service.
func NewEpiService(metrics *observability.Metrics, logger *internal.Logger) *EpiService {
	return &EpiService{metrics: metrics, logger: logger}
}

// RangeModel builds a temperature range suitability model.
func (s *EpiService) RangeModel(lower, upper float64) (*epimod.SuitabilityModel, error) {
	return epimod.NewTemperatureRangeModel(lower, upper)
}

// TableModelFromFile reads a suitability table file (Excel or CSV) and
// builds the corresponding model. Grid tables carry temperature and
// precipitation axes; plain tables carry temperature only.
func (s *EpiService) TableModelFromFile(path string, withPrecipitation bool) (*epimod.SuitabilityModel, error) {
	reader := excel.NewTableReader(path)
	var table *dataset.Dataset
	var err error
	if withPrecipitation {
		table, err = reader.ReadTemperaturePrecipitationTable()
	} else {
		table, err = reader.ReadTemperatureTable()
	}
	if err != nil {
		return nil, err
	}
	return epimod.NewSuitabilityTableModel(table)
}

// RunSuitability evaluates the model over a climate dataset.
func (s *EpiService) RunSuitability(model *epimod.SuitabilityModel, dsClim *dataset.Dataset) (*dataset.Dataset, error) {
	return s.timed("suitability", func() (*dataset.Dataset, error) {
		return model.Run(dsClim)
	})
}

// RunMonthsSuitable evaluates the model and counts, per year, the months
// whose suitability exceeds the threshold.
func (s *EpiService) RunMonthsSuitable(model *epimod.SuitabilityModel, dsClim *dataset.Dataset, threshold float64) (*dataset.Dataset, error) {
	return s.timed("months_suitable", func() (*dataset.Dataset, error) {
		return model.RunMonthsSuitable(dsClim, threshold)
	})
}

func (s *EpiService) timed(operation string, fn func() (*dataset.Dataset, error)) (*dataset.Dataset, error) {
	start := time.Now()
	out, err := fn()
	s.metrics.AnalysisDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.AnalysisErrors.WithLabelValues(operation).Inc()
		s.logger.Warn("Model evaluation %s failed: %v", operation, err)
		return nil, err
	}
	return out, nil
}
