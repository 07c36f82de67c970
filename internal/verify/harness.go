// Package verify is the batch verification harness. It records what the
// engine does for every case and measurement key, checks each call for
// determinism, and aggregates facts. It never judges pass or fail.
package verify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/bodymeasure/internal/config"
	"github.com/banshee-data/bodymeasure/internal/dataset"
	"github.com/banshee-data/bodymeasure/internal/measure"
	"github.com/banshee-data/bodymeasure/internal/metrics"
	"github.com/banshee-data/bodymeasure/internal/monitoring"
	"github.com/banshee-data/bodymeasure/internal/version"
)

// FailureType classifies a record. The empty type is a numeric result.
type FailureType string

const (
	FailureNone       FailureType = ""
	FailureContract   FailureType = "contract"
	FailureExecution  FailureType = "execution"
	FailureDegenerate FailureType = "degenerate"
)

// FailureTypes lists the non-empty failure types in report order.
var FailureTypes = []FailureType{FailureContract, FailureExecution, FailureDegenerate}

// Source yields cases by ID. *dataset.Bundle implements it.
type Source interface {
	IDs(ctx context.Context) ([]string, error)
	Get(ctx context.Context, id string) (dataset.Case, error)
}

// Options configure a run.
type Options struct {
	Policy      *config.Policy
	Keys        []string // defaults to every key in Policy
	Workers     int
	TopN        int
	MaxErrorLen int
	DatasetPath string
	Metrics     *metrics.Manager // optional
	Now         func() time.Time // optional clock for the run timestamp
}

// Record is one case × key outcome.
type Record struct {
	CaseID      string
	Key         string
	Value       float64
	SectionID   string
	MethodTag   string
	Warnings    []measure.WarningCode
	FailureType FailureType
	Fallback    bool
	Mismatch    bool
	Error       string
}

// Report is the outcome of a run: one record per case × key in dataset
// order, plus the summary.
type Report struct {
	Records []Record
	Summary Summary
}

// Run measures every case for every key twice. A case that fails to load, or
// a worker that panics, produces failure records; the batch always
// completes unless ctx is cancelled or the case list cannot be read.
func Run(ctx context.Context, src Source, opts Options) (*Report, error) {
	if opts.Policy == nil {
		return nil, errors.New("verify: policy is required")
	}
	keys := opts.Keys
	if len(keys) == 0 {
		keys = opts.Policy.Keys()
	}
	for _, k := range keys {
		if _, ok := opts.Policy.Get(k); !ok {
			return nil, fmt.Errorf("verify: policy %s has no config for %q", opts.Policy.Version(), k)
		}
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	maxErr := opts.MaxErrorLen
	if maxErr <= 0 {
		maxErr = 2048
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	started := now()

	ids, err := src.IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing cases: %w", err)
	}
	monitoring.Infof("[verify] %d cases x %d keys, policy %s, %d workers", len(ids), len(keys), opts.Policy.Version(), workers)

	records := make([]Record, len(ids)*len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for ci, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slot := records[ci*len(keys) : (ci+1)*len(keys)]
			runCase(gctx, src, id, keys, opts.Policy, opts.Metrics, maxErr, slot)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("verify cancelled: %w", err)
	}

	sum := Summarize(records, keys, opts.TopN)
	sum.Provenance = Provenance{
		RunID:          uuid.NewString(),
		SourceRevision: version.Revision(),
		Version:        version.Version,
		DatasetPath:    opts.DatasetPath,
		PolicyVersion:  opts.Policy.Version(),
		Timestamp:      started.UTC(),
		CaseCount:      len(ids),
		Keys:           append([]string(nil), keys...),
	}
	monitoring.Infof("[verify] %d records, %d NaN, %d mismatches, failures %v",
		sum.TotalRecords, sum.NaNCount, sum.DeterminismMismatchCount, sum.FailureCountByType)
	return &Report{Records: records, Summary: sum}, nil
}

// runCase fills slot with one record per key. A panic outside Measure marks
// every key not yet recorded as an execution failure.
func runCase(ctx context.Context, src Source, id string, keys []string, policy *config.Policy, m *metrics.Manager, maxErr int, slot []Record) {
	done := 0
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("panic: %v\n%s", r, debug.Stack())
			monitoring.Warnf("[verify] case %s: worker panic: %v", id, r)
			for i := done; i < len(keys); i++ {
				slot[i] = failed(id, keys[i], FailureExecution, msg, maxErr)
			}
		}
	}()

	c, err := src.Get(ctx, id)
	if err != nil {
		ft := FailureExecution
		if errors.Is(err, measure.ErrContract) {
			ft = FailureContract
		}
		for i, k := range keys {
			slot[i] = failed(id, k, ft, err.Error(), maxErr)
			m.ObserveMeasurement(k, string(ft), nil, false, 0)
		}
		return
	}

	for i, k := range keys {
		cfg, _ := policy.Get(k)
		slot[i] = measureTwice(c, k, cfg, m, maxErr)
		done = i + 1
	}
}

func failed(id, key string, ft FailureType, msg string, maxErr int) Record {
	return Record{CaseID: id, Key: key, Value: math.NaN(), FailureType: ft, Error: truncate(msg, maxErr)}
}

type call struct {
	res measure.Result
	err error
}

func (c call) errText() string {
	if c.err == nil {
		return ""
	}
	return c.err.Error()
}

// same reports whether two calls agree under the determinism contract.
// Errors compare by message; stacks are ignored.
func same(a, b call) bool {
	if (a.err == nil) != (b.err == nil) {
		return false
	}
	if a.err != nil {
		return a.errText() == b.errText()
	}
	return a.res.Equivalent(b.res)
}

func measureTwice(c dataset.Case, key string, cfg config.Frozen, m *metrics.Manager, maxErr int) Record {
	start := time.Now()
	first := call{}
	first.res, first.err = measure.Measure(c.Vertices, key, cfg, c.Joints, c.Weights)
	elapsed := time.Since(start)
	second := call{}
	second.res, second.err = measure.Measure(c.Vertices, key, cfg, c.Joints, c.Weights)

	rec := Record{CaseID: c.ID, Key: key, Value: math.NaN(), Mismatch: !same(first, second)}
	if rec.Mismatch {
		m.ObserveMismatch(key)
	}

	var execErr *measure.ExecutionError
	switch {
	case first.err == nil:
		r := first.res
		rec.Value, rec.SectionID, rec.MethodTag = r.Value, r.SectionID, r.MethodTag
		rec.Warnings, rec.Fallback = r.SortedWarnings(), r.Fallback
		outcome := metrics.OutcomeValue
		if r.Degenerate() {
			rec.FailureType = FailureDegenerate
			outcome = metrics.OutcomeDegenerate
		} else if math.IsNaN(r.Value) {
			// Measure never returns an unexplained NaN; record it if it does.
			rec.FailureType = FailureExecution
			rec.Error = "NaN without a degenerate warning"
			outcome = metrics.OutcomeExecution
		}
		m.ObserveMeasurement(key, outcome, warningStrings(rec.Warnings), r.Fallback, elapsed)
	case errors.Is(first.err, measure.ErrContract):
		rec.FailureType = FailureContract
		rec.Error = truncate(first.err.Error(), maxErr)
		m.ObserveMeasurement(key, metrics.OutcomeContract, nil, false, elapsed)
	case errors.As(first.err, &execErr):
		rec.FailureType = FailureExecution
		rec.Error = truncate(execErr.Diagnostic(), maxErr)
		m.ObserveMeasurement(key, metrics.OutcomeExecution, nil, false, elapsed)
	default:
		rec.FailureType = FailureExecution
		rec.Error = truncate(first.err.Error(), maxErr)
		m.ObserveMeasurement(key, metrics.OutcomeExecution, nil, false, elapsed)
	}
	return rec
}

func warningStrings(ws []measure.WarningCode) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = string(w)
	}
	return out
}

// truncate shortens s to at most n bytes without splitting a UTF-8 rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}
