package ui

import (
	"fmt"
	"html/template"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"epiclim/domain/dataset"
	"epiclim/internal"
)

// Server serves the climate uncertainty dashboard.
type Server struct {
	router     *gin.Engine
	controller *Controller
	logger     *internal.Logger
	indexTmpl  *template.Template
}

// NewServer creates the dashboard web server.
func NewServer(controller *Controller, logger *internal.Logger) (*Server, error) {
	tmpl, err := template.New("index.html").Parse(indexHTML)
	if err != nil {
		return nil, fmt.Errorf("failed to parse index template: %w", err)
	}

	s := &Server{
		router:     gin.Default(),
		controller: controller,
		logger:     logger,
		indexTmpl:  tmpl,
	}
	s.setupRoutes()
	return s, nil
}

// setupRoutes configures the application routes.
func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleIndex)
	s.router.GET("/methods", s.handleMethods)

	s.router.GET("/api/examples", s.handleExamples)
	s.router.GET("/api/status", s.handleStatus)
	s.router.GET("/api/plot", s.handlePlot)
	s.router.POST("/api/select", s.handleSelect)
	s.router.POST("/api/params", s.handleParams)
}

// Start starts the web server.
func (s *Server) Start(addr string) error {
	s.logger.Info("Dashboard listening on http://%s", addr)
	return s.router.Run(addr)
}

// ServeHTTP delegates to the gin engine, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleIndex(c *gin.Context) {
	state := s.controller.StateSnapshot()
	data := gin.H{
		"Examples": s.controller.climate.ListExamples(),
		"State":    state,
		"Views":    []string{ViewUncertainty, ViewDecomposition, ViewSuitability},
	}
	c.Header("Content-Type", "text/html")
	if err := s.indexTmpl.Execute(c.Writer, data); err != nil {
		s.logger.Error("Template error: %v", err)
		c.AbortWithStatus(http.StatusInternalServerError)
	}
}

func (s *Server) handleExamples(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"examples": s.controller.climate.ListExamples()})
}

func (s *Server) handleStatus(c *gin.Context) {
	state := s.controller.StateSnapshot()
	scope := s.controller.Scope()
	c.JSON(http.StatusOK, gin.H{
		"status":  state.Status,
		"example": state.Example,
		"view":    state.View,
		"scope": gin.H{
			"temporal":     scope.Temporal,
			"spatial":      scope.Spatial,
			"realizations": scope.Realizations,
			"models":       scope.Models,
			"scenarios":    scope.Scenarios,
		},
	})
}

type selectRequest struct {
	Example string `json:"example" binding:"required"`
}

func (s *Server) handleSelect(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.controller.SelectExample(c.Request.Context(), req.Example); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": s.controller.StateSnapshot().Status})
}

type paramsRequest struct {
	View             *string  `json:"view"`
	ConfLevel        *float64 `json:"conf_level"`
	EstimateInternal *bool    `json:"estimate_internal"`
	SuitLower        *float64 `json:"suit_lower"`
	SuitUpper        *float64 `json:"suit_upper"`
	Threshold        *float64 `json:"threshold"`
}

func (s *Server) handleParams(c *gin.Context) {
	var req paramsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := s.controller.UpdateParams(c.Request.Context(), func(state *State) {
		if req.View != nil {
			state.View = *req.View
		}
		if req.ConfLevel != nil {
			state.ConfLevel = *req.ConfLevel
		}
		if req.EstimateInternal != nil {
			state.EstimateInternal = *req.EstimateInternal
		}
		if req.SuitLower != nil {
			state.SuitLower = *req.SuitLower
		}
		if req.SuitUpper != nil {
			state.SuitUpper = *req.SuitUpper
		}
		if req.Threshold != nil {
			state.Threshold = *req.Threshold
		}
	})
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": s.controller.StateSnapshot().Status})
}

// PlotSeries is one plotted line.
type PlotSeries struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// PlotPayload is the flattened plot data the frontend charts.
type PlotPayload struct {
	Time   []string     `json:"time"`
	Series []PlotSeries `json:"series"`
}

func (s *Server) handlePlot(c *gin.Context) {
	ds := s.controller.PlotData()
	if ds == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no dataset loaded"})
		return
	}
	payload, err := flattenPlot(ds)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, payload)
}

// flattenPlot turns a dataset into time labels plus one series per variable
// and categorical label combination. Extra non-categorical dimensions are
// reduced to their first index.
func flattenPlot(ds *dataset.Dataset) (*PlotPayload, error) {
	payload := &PlotPayload{}

	times, err := ds.TimeValues()
	if err == nil {
		payload.Time = make([]string, len(times))
		for i, ts := range times {
			payload.Time[i] = ts.Format("2006-01-02")
		}
	}

	names := ds.NonBoundsVars()
	sort.Strings(names)
	for _, name := range names {
		arr, _ := ds.Var(name)
		if err := expandSeries(ds, arr, name, &payload.Series); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

func expandSeries(ds *dataset.Dataset, arr *dataset.DataArray, name string, out *[]PlotSeries) error {
	for _, dim := range arr.Dims {
		if dim == "time" {
			continue
		}
		coord := ds.Coord(dim)
		if coord != nil && coord.IsCategorical() {
			for i, label := range coord.Labels {
				sub, err := arr.SelectIndex(dim, i)
				if err != nil {
					return err
				}
				if err := expandSeries(ds, sub, name+" "+label, out); err != nil {
					return err
				}
			}
			return nil
		}
		sub, err := arr.SelectIndex(dim, 0)
		if err != nil {
			return err
		}
		return expandSeries(ds, sub, name, out)
	}
	*out = append(*out, PlotSeries{Name: name, Values: append([]float64(nil), arr.Values...)})
	return nil
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <title>Climate Uncertainty Dashboard</title>
    <style>
        body { font-family: system-ui, sans-serif; margin: 2rem; color: #1f2933; }
        select, input, button { font-size: 0.9rem; padding: 0.3rem 0.5rem; margin-right: 0.5rem; }
        #status { margin: 1rem 0; color: #52606d; }
        #chart { width: 100%; height: 420px; border: 1px solid #d9e2ec; }
    </style>
</head>
<body>
    <h1>Climate Uncertainty Dashboard</h1>
    <p><a href="/methods">Methods</a></p>
    <div>
        <select id="example">
            <option value="">Select example…</option>
            {{range .Examples}}<option value="{{.}}">{{.}}</option>{{end}}
        </select>
        <select id="view">
            {{range .Views}}<option value="{{.}}">{{.}}</option>{{end}}
        </select>
        <button onclick="refresh()">Update</button>
    </div>
    <div id="status">{{.State.Status}}</div>
    <canvas id="chart"></canvas>
    <script>
        async function refresh() {
            const example = document.getElementById('example').value;
            const view = document.getElementById('view').value;
            if (example) {
                await fetch('/api/select', {method: 'POST', headers: {'Content-Type': 'application/json'},
                    body: JSON.stringify({example})});
            }
            await fetch('/api/params', {method: 'POST', headers: {'Content-Type': 'application/json'},
                body: JSON.stringify({view})});
            const status = await (await fetch('/api/status')).json();
            document.getElementById('status').textContent = status.status;
            const res = await fetch('/api/plot');
            if (res.ok) drawChart(await res.json());
        }
        function drawChart(plot) {
            const canvas = document.getElementById('chart');
            const ctx = canvas.getContext('2d');
            ctx.clearRect(0, 0, canvas.width, canvas.height);
            const all = plot.series.flatMap(s => s.values);
            if (!all.length) return;
            const min = Math.min(...all), max = Math.max(...all), span = (max - min) || 1;
            plot.series.forEach((s, si) => {
                ctx.beginPath();
                ctx.strokeStyle = 'hsl(' + (si * 67 % 360) + ',60%,45%)';
                s.values.forEach((v, i) => {
                    const x = i / Math.max(s.values.length - 1, 1) * canvas.width;
                    const y = canvas.height - (v - min) / span * canvas.height;
                    i === 0 ? ctx.moveTo(x, y) : ctx.lineTo(x, y);
                });
                ctx.stroke();
            });
        }
    </script>
</body>
</html>
`
