package ui

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// methodsMarkdown documents the statistics the dashboard plots.
const methodsMarkdown = `# Methods

## Data

Example datasets are retrieved from the ISIMIP repository (bias-adjusted
CMIP6 projections) and the CESM2 Large Ensemble on AWS Open Data. City
examples subset the global grid to the nearest grid cell for each
geocoded location.

## Temporal aggregation

Daily or monthly series are averaged into calendar-year means before
ensemble statistics are computed. Incomplete groups at the series edges
are kept; each group mean uses the samples that fall inside it.

## Ensemble statistics

For each time step the ensemble mean and a confidence interval across
realizations, models and scenarios are computed. With a single
realization per model, internal variability can be estimated from
detrended residuals instead.

## Variance decomposition

Total ensemble variance is split into internal variability, model
spread and scenario spread following the approach of Hawkins and Sutton
(2009). Fractional mode normalizes the three components to sum to one.

## Suitability models

Temperature range models mark a time step suitable when temperature
falls inside the configured range. Table models interpolate a supplied
suitability curve or look up a temperature by precipitation grid.
Months-suitable counts, per year, the months whose suitability exceeds
the threshold.
`

func (s *Server) handleMethods(c *gin.Context) {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.CompletePage,
		Title: "Methods",
	})
	page := markdown.ToHTML([]byte(methodsMarkdown), p, renderer)
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}
