package app

import (
	"time"

	"epiclim/domain/dataset"
	"epiclim/internal"
	"epiclim/internal/analysis"
	"epiclim/internal/observability"
)

// AnalysisService runs the statistics pipeline over climate datasets:
// temporal aggregation, ensemble statistics and variance decomposition.
type AnalysisService struct {
	metrics *observability.Metrics
	logger  *internal.Logger
}

// NewAnalysisService creates the analysis service.
func NewAnalysisService(metrics *observability.Metrics, logger *internal.Logger) *AnalysisService {
	return &AnalysisService{metrics: metrics, logger: logger}
}

// TemporalAverage aggregates the dataset to the requested frequency.
func (s *AnalysisService) TemporalAverage(ds *dataset.Dataset, freq analysis.Frequency) (*dataset.Dataset, error) {
	return s.timed("temporal_average", func() (*dataset.Dataset, error) {
		return analysis.TemporalGroupAverage(ds, nil, freq)
	})
}

// EnsembleStats computes the ensemble statistics of every data variable.
func (s *AnalysisService) EnsembleStats(ds *dataset.Dataset, confLevel float64, estimateInternal bool) (*dataset.Dataset, error) {
	return s.timed("ensemble_stats", func() (*dataset.Dataset, error) {
		return analysis.EnsembleStats(ds, nil, confLevel, estimateInternal)
	})
}

// VarDecomp decomposes ensemble variance into internal, model and scenario
// contributions.
func (s *AnalysisService) VarDecomp(ds *dataset.Dataset, fraction, estimateInternal bool) (*dataset.Dataset, error) {
	return s.timed("var_decomp", func() (*dataset.Dataset, error) {
		return analysis.VarDecomp(ds, nil, fraction, estimateInternal)
	})
}

// UncertaintyPipeline runs the standard analysis chain the dashboard plots:
// yearly aggregation followed by ensemble statistics.
func (s *AnalysisService) UncertaintyPipeline(ds *dataset.Dataset, confLevel float64, estimateInternal bool) (*dataset.Dataset, error) {
	yearly, err := s.TemporalAverage(ds, analysis.FreqYearly)
	if err != nil {
		return nil, err
	}
	return s.EnsembleStats(yearly, confLevel, estimateInternal)
}

func (s *AnalysisService) timed(operation string, fn func() (*dataset.Dataset, error)) (*dataset.Dataset, error) {
	start := time.Now()
	out, err := fn()
	s.metrics.AnalysisDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.AnalysisErrors.WithLabelValues(operation).Inc()
		s.logger.Warn("Analysis %s failed: %v", operation, err)
		return nil, err
	}
	return out, nil
}
