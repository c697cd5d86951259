// Package audit runs the per-origin pipeline: resolve the origin, query CrUX,
// append the result to the report.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/sw33tLie/cwvcheck/internal/utils"
	"github.com/sw33tLie/cwvcheck/pkg/crux"
	"github.com/sw33tLie/cwvcheck/pkg/normalize"
	"github.com/sw33tLie/cwvcheck/pkg/report"
	"github.com/sw33tLie/cwvcheck/pkg/storage"
)

// DefaultDelay is slept after every origin.
const DefaultDelay = 500 * time.Millisecond

type Outcome string

const (
	OutcomeWritten Outcome = "written"
	// OutcomeSkipped means CrUX answered with a non-2xx status and no row was written.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed is only produced when Options.KeepGoing isolates an item error.
	OutcomeFailed Outcome = "failed"
)

type Resolver interface {
	Resolve(ctx context.Context, raw string) (normalize.Result, error)
}

type Fetcher interface {
	QueryRecord(ctx context.Context, payload string) (*crux.Response, error)
}

// Store receives a copy of every written row.
type Store interface {
	InsertResult(ctx context.Context, r storage.Result) (int64, error)
}

type Options struct {
	Delay        time.Duration
	SnapshotPath string
	// KeepGoing turns item errors into OutcomeFailed instead of aborting the run.
	KeepGoing bool
	Store     Store
	Now       func() time.Time
}

// ItemResult is what happened to one input origin.
type ItemResult struct {
	Input      string
	Origin     normalize.Result
	Outcome    Outcome
	StatusCode int
	Row        *report.Row
	Err        error
}

// Degraded reports whether the redirect probe failed for this item.
func (r ItemResult) Degraded() bool {
	return r.Origin.Outcome == normalize.OutcomeDegraded
}

type Summary struct {
	Items    []ItemResult
	Written  int
	Skipped  int
	Failed   int
	Degraded int
}

func (s *Summary) add(item ItemResult) {
	s.Items = append(s.Items, item)
	switch item.Outcome {
	case OutcomeWritten:
		s.Written++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeFailed:
		s.Failed++
	}
	if item.Degraded() {
		s.Degraded++
	}
}

type Auditor struct {
	resolver Resolver
	fetcher  Fetcher
	report   *report.Report
	opts     Options
}

func New(resolver Resolver, fetcher Fetcher, rep *report.Report, opts Options) *Auditor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SnapshotPath == "" {
		opts.SnapshotPath = report.DefaultSnapshotPath
	}
	return &Auditor{resolver: resolver, fetcher: fetcher, report: rep, opts: opts}
}

// Run audits origins in order, sleeping Options.Delay after each one.
// Without KeepGoing the first item error stops the run; rows written so far stay in the report.
func (a *Auditor) Run(ctx context.Context, origins []string) (Summary, error) {
	var summary Summary

	for _, raw := range origins {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		item, err := a.AuditOrigin(ctx, raw)
		if err != nil {
			if !a.opts.KeepGoing || errors.Is(err, context.Canceled) {
				summary.add(item)
				return summary, err
			}
			utils.Log.Errorf("Auditing %s failed: %v", raw, err)
		}
		summary.add(item)

		if err := sleep(ctx, a.opts.Delay); err != nil {
			return summary, err
		}
	}

	return summary, nil
}

// AuditOrigin runs the whole pipeline for a single origin.
// Skipped items are not errors; malformed API responses are.
func (a *Auditor) AuditOrigin(ctx context.Context, raw string) (ItemResult, error) {
	item := ItemResult{Input: raw, Outcome: OutcomeFailed}

	origin, err := a.resolver.Resolve(ctx, raw)
	item.Origin = origin
	if err != nil {
		item.Err = err
		return item, err
	}

	utils.Log.Infof("%s -> collecting Core Web Vitals data", origin.CanonicalURL)

	resp, err := a.fetcher.QueryRecord(ctx, origin.RequestPayload)
	if resp != nil {
		item.StatusCode = resp.StatusCode
		if resp.OK() && !errors.Is(err, crux.ErrMalformedResponse) {
			if serr := report.WriteSnapshot(a.opts.SnapshotPath, resp.Body); serr != nil {
				item.Err = serr
				return item, serr
			}
		}
	}
	if err != nil {
		item.Err = err
		return item, err
	}

	if !resp.OK() {
		utils.Log.Warnf("%s -> no Core Web Vitals data (CrUX status %d), skipping", origin.CanonicalURL, resp.StatusCode)
		item.Outcome = OutcomeSkipped
		return item, nil
	}

	row := BuildRow(origin.CanonicalURL, *resp.Vitals, a.opts.Now())
	if err := a.report.Append(row); err != nil {
		item.Err = err
		return item, err
	}
	item.Row = &row
	item.Outcome = OutcomeWritten
	utils.Log.Infof("%s -> writing Core Web Vitals to %s (%s)", origin.CanonicalURL, a.report.Path(), row.Verdict)

	if a.opts.Store != nil {
		if _, err := a.opts.Store.InsertResult(ctx, storageResult(raw, origin, row)); err != nil {
			utils.Log.Warnf("Could not store result for %s in the database: %v", origin.CanonicalURL, err)
		}
	}

	return item, nil
}

// BuildRow flattens vitals into a report row dated day.
func BuildRow(origin string, v crux.Vitals, day time.Time) report.Row {
	return report.Row{
		Origin:     origin,
		Verdict:    v.Verdict(),
		Date:       day.Format(report.DateLayout),
		LCPP75:     v.LCP.P75Text,
		LCPGoodPct: v.LCP.GoodPct,
		FIDP75:     v.FID.P75Text,
		FIDGoodPct: v.FID.GoodPct,
		CLSP75:     v.CLS.P75Text,
		CLSGoodPct: v.CLS.GoodPct,
	}
}

func storageResult(input string, origin normalize.Result, row report.Row) storage.Result {
	return storage.Result{
		Origin:     row.Origin,
		Input:      input,
		Verdict:    row.Verdict,
		Date:       row.Date,
		LCPP75:     row.LCPP75,
		LCPGoodPct: row.LCPGoodPct,
		FIDP75:     row.FIDP75,
		FIDGoodPct: row.FIDGoodPct,
		CLSP75:     row.CLSP75,
		CLSGoodPct: row.CLSGoodPct,
		Redirected: origin.Redirected,
		Degraded:   origin.Outcome == normalize.OutcomeDegraded,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
