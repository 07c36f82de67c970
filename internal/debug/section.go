// Package debug renders diagnostic plots of measurement sections.
package debug

import (
	"errors"
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/bodymeasure/internal/config"
	"github.com/banshee-data/bodymeasure/internal/geometry"
	"github.com/banshee-data/bodymeasure/internal/measure"
)

// Section is the planar band a section measurement works on.
type Section struct {
	Target    float64  // band centre on the body axis
	HalfWidth float64  // final half-width after widening
	Retries   int      // widening steps taken
	Points    []r2.Vec // band vertices projected onto the section plane
	Hull      []r2.Vec // convex hull of Points
	Result    measure.Result
}

// ErrNotSection is returned for keys that are not section measurements.
var ErrNotSection = errors.New("key is not a section measurement")

// BuildSection selects the band cfg would measure and runs the measurement
// itself. Limb keys show the whole band, before the lateral split.
func BuildSection(vs geometry.VertexSet, cfg config.Frozen, joints *geometry.JointSet) (*Section, error) {
	c := cfg.Config()
	if c.Method != config.MethodHullPerimeter && c.Method != config.MethodExtent {
		return nil, fmt.Errorf("%s: %w", c.Key, ErrNotSection)
	}
	res, err := measure.Measure(vs, c.Key, cfg, joints, nil)
	if err != nil {
		return nil, err
	}

	axis, _ := geometry.ParseAxis(c.Axis)
	lo, hi := geometry.RobustAxisExtent(vs, axis, c.LowQuantile, c.HighQuantile)
	extent := hi - lo
	s := &Section{Result: res, Target: math.NaN(), HalfWidth: math.NaN()}
	if math.IsNaN(extent) || extent <= 0 {
		return s, nil
	}

	s.Target = lo + c.SectionRatio*extent
	s.HalfWidth = c.BandHalfWidthRatio * extent
	band := geometry.SelectBand(vs, axis, s.Target, s.HalfWidth)
	for len(band) < c.MinCandidates && s.Retries < c.MaxBandRetries {
		s.HalfWidth *= c.BandGrowth
		s.Retries++
		band = geometry.SelectBand(vs, axis, s.Target, s.HalfWidth)
	}
	s.Points = geometry.Project(vs, band, axis)
	s.Hull = geometry.ConvexHull(s.Points)
	return s, nil
}

// SavePNG plots the section points and their hull to path.
func (s *Section) SavePNG(path string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s = %.4f m (%s)", s.Result.Key, s.Result.Value, s.Result.MethodTag)
	p.X.Label.Text = "Plane axis 0 (m)"
	p.Y.Label.Text = "Plane axis 1 (m)"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(s.Points))
	for i, v := range s.Points {
		pts[i] = plotter.XY{X: v.X, Y: v.Y}
	}
	if len(pts) > 0 {
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("creating scatter: %w", err)
		}
		scatter.GlyphStyle.Shape = draw.CircleGlyph{}
		scatter.GlyphStyle.Radius = vg.Points(1.5)
		scatter.GlyphStyle.Color = color.RGBA{R: 70, G: 110, B: 200, A: 255}
		p.Add(scatter)
		p.Legend.Add(fmt.Sprintf("band (%d pts)", len(pts)), scatter)
	}

	if len(s.Hull) > 1 {
		ring := make(plotter.XYs, 0, len(s.Hull)+1)
		for _, v := range s.Hull {
			ring = append(ring, plotter.XY{X: v.X, Y: v.Y})
		}
		ring = append(ring, ring[0])
		line, err := plotter.NewLine(ring)
		if err != nil {
			return fmt.Errorf("creating hull line: %w", err)
		}
		line.Width = vg.Points(1)
		line.Color = color.RGBA{R: 200, G: 60, B: 50, A: 255}
		p.Add(line)
		p.Legend.Add("hull", line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("saving section plot %s: %w", path, err)
	}
	return nil
}
