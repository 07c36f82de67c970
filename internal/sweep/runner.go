package sweep

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/bodymeasure/internal/config"
	"github.com/banshee-data/bodymeasure/internal/dataset"
	"github.com/banshee-data/bodymeasure/internal/measure"
	"github.com/banshee-data/bodymeasure/internal/metrics"
	"github.com/banshee-data/bodymeasure/internal/monitoring"
)

// VersionSuffix is appended to the base policy version when grid points are
// frozen, so sweep section IDs never collide with production ones.
const VersionSuffix = "-sweep"

// Request describes one sweep.
type Request struct {
	Base       config.Frozen // config the grid perturbs; its key is swept
	Dimensions []Dimension
	Workers    int
	Metrics    *metrics.Manager // optional
}

// Row is the metric table entry for one grid point.
type Row struct {
	Index             int
	Rank              int
	ConfigID          string
	Values            []float64
	Total             int
	Valid             int
	ContractFailures  int
	ExecutionFailures int
	Degenerate        int
	Fallbacks         int
	Mean              float64
	StdDev            float64
	CVPct             float64
	FallbackRatePct   float64
	Error             string // set when the grid point itself is invalid
}

// Report is a ranked sweep result. Rows are in rank order and include every
// grid point.
type Report struct {
	Key           string
	PolicyVersion string
	BaseConfigID  string
	Dimensions    []Dimension
	CaseCount     int
	Rows          []Row
}

// caseOutcome is one Measure call's contribution to a row.
type caseOutcome struct {
	value     float64
	fallback  bool
	contract  bool
	execution bool
}

// gridConfig is a frozen grid point, or the reason it could not be frozen.
type gridConfig struct {
	point  Point
	frozen config.Frozen
	err    error
}

// Run evaluates every grid point over every case. Measurements run on a
// bounded worker pool and land in preallocated slots, so the report does not
// depend on scheduling. Cancellation is checked between measurements.
func Run(ctx context.Context, req Request, cases []dataset.Case) (*Report, error) {
	if req.Base.IsZero() {
		return nil, errors.New("sweep base config is not frozen")
	}
	points, err := Grid(req.Dimensions)
	if err != nil {
		return nil, err
	}
	workers := req.Workers
	if workers < 1 {
		workers = 1
	}
	key := req.Base.Key()
	version := req.Base.Version() + VersionSuffix

	grid := make([]gridConfig, len(points))
	for i, p := range points {
		grid[i].point = p
		grid[i].frozen, grid[i].err = Apply(req.Base.Derive(), req.Dimensions, p).Freeze(version)
		if grid[i].err != nil {
			monitoring.Warnf("[sweep] %s: grid point %d is invalid: %v", key, i, grid[i].err)
		}
	}

	monitoring.Infof("[sweep] %s: %d grid points x %d cases, %d workers", key, len(points), len(cases), workers)
	start := time.Now()

	slots := make([][]caseOutcome, len(points))
	for i := range slots {
		slots[i] = make([]caseOutcome, len(cases))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for pi := range grid {
		if grid[pi].err != nil {
			continue
		}
		for ci := range cases {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				slots[pi][ci] = measureCase(key, grid[pi].frozen, cases[ci], req.Metrics)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("sweep %s cancelled: %w", key, err)
	}

	rows := make([]Row, len(grid))
	for i, gc := range grid {
		rows[i] = reduce(gc, slots[i], len(cases))
		req.Metrics.ObserveSweepPoint(key)
	}
	Rank(rows)

	monitoring.Infof("[sweep] %s: finished in %s", key, time.Since(start).Round(time.Millisecond))
	return &Report{
		Key:           key,
		PolicyVersion: req.Base.Version(),
		BaseConfigID:  req.Base.ID().String(),
		Dimensions:    req.Dimensions,
		CaseCount:     len(cases),
		Rows:          rows,
	}, nil
}

func measureCase(key string, cfg config.Frozen, c dataset.Case, m *metrics.Manager) caseOutcome {
	start := time.Now()
	res, err := measure.Measure(c.Vertices, key, cfg, c.Joints, c.Weights)
	var execErr *measure.ExecutionError
	switch {
	case err == nil:
		outcome := metrics.OutcomeValue
		if res.Degenerate() {
			outcome = metrics.OutcomeDegenerate
		}
		m.ObserveMeasurement(key, outcome, warningStrings(res), res.Fallback, time.Since(start))
		return caseOutcome{value: res.Value, fallback: res.Fallback}
	case errors.As(err, &execErr):
		m.ObserveMeasurement(key, metrics.OutcomeExecution, nil, false, time.Since(start))
		return caseOutcome{value: math.NaN(), execution: true}
	default:
		m.ObserveMeasurement(key, metrics.OutcomeContract, nil, false, time.Since(start))
		return caseOutcome{value: math.NaN(), contract: true}
	}
}

func warningStrings(r measure.Result) []string {
	out := make([]string, len(r.Warnings))
	for i, w := range r.Warnings {
		out[i] = string(w)
	}
	return out
}

// reduce folds the case outcomes of one grid point, in case order.
func reduce(gc gridConfig, outcomes []caseOutcome, total int) Row {
	row := Row{
		Index:           gc.point.Index,
		Values:          gc.point.Values,
		Total:           total,
		Mean:            math.NaN(),
		StdDev:          math.NaN(),
		CVPct:           math.NaN(),
		FallbackRatePct: math.NaN(),
	}
	if gc.err != nil {
		row.Error = gc.err.Error()
		return row
	}
	row.ConfigID = gc.frozen.ID().String()

	valid := make([]float64, 0, len(outcomes))
	for _, o := range outcomes {
		switch {
		case o.contract:
			row.ContractFailures++
			continue
		case o.execution:
			row.ExecutionFailures++
			continue
		}
		if o.fallback {
			row.Fallbacks++
		}
		if math.IsNaN(o.value) {
			row.Degenerate++
			continue
		}
		valid = append(valid, o.value)
	}
	row.Valid = len(valid)
	row.Mean, row.StdDev, row.CVPct = summarize(valid)
	if total > 0 {
		row.FallbackRatePct = 100 * float64(row.Fallbacks) / float64(total)
	}
	return row
}

// summarize returns the mean, sample standard deviation and coefficient of
// variation in percent. The deviation and CV are NaN with fewer than two
// values; the CV is also NaN for a zero mean.
func summarize(vals []float64) (mean, std, cv float64) {
	switch len(vals) {
	case 0:
		return math.NaN(), math.NaN(), math.NaN()
	case 1:
		return vals[0], math.NaN(), math.NaN()
	}
	mean, std = stat.MeanStdDev(vals, nil)
	if mean == 0 {
		return mean, std, math.NaN()
	}
	return mean, std, 100 * std / math.Abs(mean)
}

// Rank orders rows ascending by (CV, fallback rate, grid index), with NaN
// sorting after every number, and assigns 1-based ranks.
func Rank(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if c := compareNaNLast(a.CVPct, b.CVPct); c != 0 {
			return c < 0
		}
		if c := compareNaNLast(a.FallbackRatePct, b.FallbackRatePct); c != 0 {
			return c < 0
		}
		return a.Index < b.Index
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
}

func compareNaNLast(a, b float64) int {
	an, bn := math.IsNaN(a), math.IsNaN(b)
	switch {
	case an && bn:
		return 0
	case an:
		return 1
	case bn:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
