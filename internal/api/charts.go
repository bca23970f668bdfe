package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/pursuit/internal/grid"
	"github.com/banshee-data/pursuit/internal/httputil"
)

// showBumpChart renders the bump detector's recent trace as HTML line charts.
func (s *Server) showBumpChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.Bump == nil {
		unavailable(w, "bump detector")
		return
	}
	trace, err := lastSamples(r, s.Bump.Trace())
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	x := make([]string, len(trace))
	errs := make([]opts.LineData, len(trace))
	rates := make([]opts.LineData, len(trace))
	accels := make([]opts.LineData, len(trace))
	for i, sm := range trace {
		x[i] = fmt.Sprintf("%.3f", sm.At.Sub(trace[0].At).Seconds())
		errs[i] = opts.LineData{Value: sm.Error}
		rates[i] = opts.LineData{Value: sm.ErrorRate}
		accels[i] = opts.LineData{Value: sm.AccelErrorRate}
	}

	velocity := charts.NewLine()
	velocity.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Velocity error", Subtitle: fmt.Sprintf("desired=%.2f m/s bumps=%d samples=%d", s.Bump.Desired(), s.Bump.Bumps(), len(trace))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "m/s"}),
	)
	velocity.SetXAxis(x).
		AddSeries("error", errs, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)})).
		AddSeries("error rate", rates, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	accel := charts.NewLine()
	accel.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Acceleration error rate"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "m/s²"}),
	)
	accel.SetXAxis(x).
		AddSeries("accel error rate", accels, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	page := components.NewPage()
	page.SetPageTitle("Bump detector")
	page.AddCharts(velocity, accel)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// showGridChart plots the latest grid's blocked cells and the current plan
// in world coordinates.
func (s *Server) showGridChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.Grid == nil {
		unavailable(w, "grid store")
		return
	}
	snap, ok := s.Grid.Latest()
	if !ok {
		httputil.NotFound(w, "no grid received")
		return
	}
	g := snap.Grid

	blocked := make([]opts.ScatterData, 0, len(g.Data)-g.FreeCount())
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			c := grid.Cell{Row: row, Col: col}
			if g.IsFree(c) {
				continue
			}
			p := g.GridToWorld(c)
			blocked = append(blocked, opts.ScatterData{Value: []interface{}{p.X, p.Y}})
		}
	}

	var path []opts.ScatterData
	if s.Coordinator != nil {
		if plan := s.Coordinator.Status().Plan; plan != nil {
			for _, p := range plan.Points {
				path = append(path, opts.ScatterData{Value: []interface{}{p.X, p.Y}})
			}
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Occupancy grid", Width: "720px", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Occupancy grid",
			Subtitle: fmt.Sprintf("%dx%d @ %.2fm, ingested %s", g.Height, g.Width, g.Resolution, snap.IngestedAt.Format(time.RFC3339)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Min: g.MinX, Max: g.MaxX, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Min: g.MinY, Max: g.MaxY, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("blocked", blocked, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	scatter.AddSeries("path", path, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
