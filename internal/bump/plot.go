package bump

import (
	"fmt"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotTrace writes the error, error rate and acceleration error rate traces
// as PNG files in dir and returns their paths. The time axis is seconds
// since the first sample.
func PlotTrace(dir string, trace []Sample) ([]string, error) {
	if len(trace) == 0 {
		return nil, fmt.Errorf("no samples to plot")
	}

	series := []struct {
		file  string
		title string
		label string
		value func(Sample) float64
	}{
		{"velocity_err.png", "Velocity Error", "Error (m/s)", func(s Sample) float64 { return s.Error }},
		{"velocity_err_rate.png", "Velocity Error Rate", "Error rate (m/s)", func(s Sample) float64 { return s.ErrorRate }},
		{"acceleration_err_rate.png", "Acceleration Error Rate", "Rate (m/s²)", func(s Sample) float64 { return s.AccelErrorRate }},
	}

	start := trace[0].At
	var paths []string
	for _, sr := range series {
		p := plot.New()
		p.Title.Text = sr.title
		p.X.Label.Text = "Time (s)"
		p.Y.Label.Text = sr.label

		pts := make(plotter.XYs, len(trace))
		for i, s := range trace {
			pts[i] = plotter.XY{X: s.At.Sub(start).Seconds(), Y: sr.value(s)}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return paths, fmt.Errorf("%s: %w", sr.file, err)
		}
		line.Width = vg.Points(1)
		p.Add(line)

		path := filepath.Join(dir, sr.file)
		if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
			return paths, fmt.Errorf("save %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
