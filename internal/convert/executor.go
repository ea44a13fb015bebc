// Package convert implements the bounded-concurrency conversion executor.
//
// The executor drains a priority-ordered queue of mock items through a
// worker pool of a fixed size. Every item produces exactly one result;
// per-item failures are recorded, never propagated, and nothing is retried
// automatically (callers may resubmit failed items).
package convert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"mocksmith/internal/detect"
	"mocksmith/internal/logging"
)

// ErrInvalidConcurrency is returned by Run for max concurrency < 1.
var ErrInvalidConcurrency = errors.New("convert: max concurrency must be >= 1")

// Func performs the conversion of one item. Implementations are supplied
// by the caller; test doubles plug in the same way.
type Func func(ctx context.Context, item detect.MockItem) error

// Status of one conversion.
type Status string

const (
	StatusConverted Status = "converted"
	StatusError     Status = "error"
)

// Result records the outcome of one item. Produced exactly once per item
// per run.
type Result struct {
	Item        detect.MockItem `json:"item"`
	Status      Status          `json:"status"`
	ErrorDetail string          `json:"error_detail,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Report aggregates a completed run. Results are index-aligned with the
// input queue even though completion order is arbitrary.
type Report struct {
	Total       int           `json:"total"`
	Converted   int           `json:"converted"`
	Errored     int           `json:"errored"`
	SuccessRate float64       `json:"success_rate"`
	Duration    time.Duration `json:"duration"`
	Results     []Result      `json:"results"`
}

// Executor runs conversions under a concurrency bound.
type Executor struct {
	convert     Func
	itemTimeout time.Duration // 0 disables the per-item deadline
}

// NewExecutor creates an executor around the given conversion function.
// itemTimeout of 0 preserves the historical behavior of letting a hung
// conversion hold its worker slot indefinitely.
func NewExecutor(fn Func, itemTimeout time.Duration) *Executor {
	return &Executor{convert: fn, itemTimeout: itemTimeout}
}

// Run processes the queue with at most maxConcurrency conversions in
// flight. It returns once every item has exactly one Result.
func (e *Executor) Run(ctx context.Context, queue []detect.MockItem, maxConcurrency int) (*Report, error) {
	timer := logging.StartTimer(logging.CategoryConvert, "Run")
	defer timer.Stop()

	if maxConcurrency < 1 {
		return nil, ErrInvalidConcurrency
	}

	log := logging.Get(logging.CategoryConvert)
	log.Info("Starting conversion run: %d items, concurrency=%d", len(queue), maxConcurrency)

	start := time.Now()
	results := make([]Result, len(queue))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)

	for i, item := range queue {
		i, item := i, item
		g.Go(func() error {
			results[i] = e.convertOne(gctx, item)
			return nil
		})
	}
	// Workers never return errors; failures live in their Result.
	_ = g.Wait()

	report := &Report{
		Total:    len(queue),
		Duration: time.Since(start),
		Results:  results,
	}
	for _, r := range results {
		if r.Status == StatusConverted {
			report.Converted++
		} else {
			report.Errored++
		}
	}
	if report.Total > 0 {
		report.SuccessRate = float64(report.Converted) / float64(report.Total)
	}

	log.Info("Conversion run complete: %d/%d converted (%.1f%%) in %v",
		report.Converted, report.Total, report.SuccessRate*100, report.Duration)
	return report, nil
}

// convertOne attempts a single conversion, translating errors, panics,
// and cancellation into an error Result.
func (e *Executor) convertOne(ctx context.Context, item detect.MockItem) (res Result) {
	res = Result{Item: item, Status: StatusConverted}
	defer func() {
		res.Timestamp = time.Now().UTC()
		if r := recover(); r != nil {
			res.Status = StatusError
			res.ErrorDetail = fmt.Sprintf("panic: %v", r)
			logging.Get(logging.CategoryConvert).Error("Conversion panicked for %s: %v", item.Path, r)
		}
	}()

	if err := ctx.Err(); err != nil {
		res.Status = StatusError
		res.ErrorDetail = err.Error()
		return res
	}

	if e.itemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.itemTimeout)
		defer cancel()
	}

	if err := e.convert(ctx, item); err != nil {
		res.Status = StatusError
		res.ErrorDetail = err.Error()
		logging.Get(logging.CategoryConvert).Warn("Conversion failed for %s: %v", item.Path, err)
		return res
	}

	logging.Get(logging.CategoryConvert).Debug("Converted %s", item.Path)
	return res
}
