package crux

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	VerdictPassed = "passed"
	VerdictFailed = "failed"
)

var (
	ErrMalformedResponse = errors.New("malformed CrUX response")
	ErrMissingKey        = errors.New("missing key in CrUX response")
)

// MetricKeys names the record.metrics entries each vital is read from.
type MetricKeys struct {
	LCP string
	FID string
	CLS string
}

var (
	// LegacyMetricKeys reads CLS from the first_input_delay block, like
	// the reports cwvcheck has always produced.
	LegacyMetricKeys = MetricKeys{
		LCP: "largest_contentful_paint",
		FID: "first_input_delay",
		CLS: "first_input_delay",
	}

	// FixedMetricKeys reads CLS from its own block.
	FixedMetricKeys = MetricKeys{
		LCP: "largest_contentful_paint",
		FID: "first_input_delay",
		CLS: "cumulative_layout_shift",
	}
)

// Metric is one vital derived from a queryRecord response.
type Metric struct {
	P75 float64
	// P75Text is P75 as it goes into the report.
	P75Text string
	// Threshold is the upper bound of the first ("good") histogram bucket.
	Threshold float64
	// GoodPct is the density of the first bucket as a rounded percentage.
	GoodPct int
}

// Passed reports whether the p75 value lies within the good bucket.
func (m Metric) Passed() bool {
	return m.P75 <= m.Threshold
}

// Vitals holds the three metrics of a single response.
type Vitals struct {
	LCP Metric
	FID Metric
	CLS Metric
}

// Verdict is "passed" iff all three metrics passed.
func (v Vitals) Verdict() string {
	if v.LCP.Passed() && v.FID.Passed() && v.CLS.Passed() {
		return VerdictPassed
	}
	return VerdictFailed
}

// ParseVitals extracts LCP, FID and CLS from a queryRecord response body.
func ParseVitals(body string, keys MetricKeys) (Vitals, error) {
	if !gjson.Valid(body) {
		return Vitals{}, ErrMalformedResponse
	}

	metrics := gjson.Get(body, "record.metrics")
	if !metrics.Exists() {
		return Vitals{}, fmt.Errorf("%w: record.metrics", ErrMissingKey)
	}

	var (
		v   Vitals
		err error
	)
	if v.LCP, err = parseMetric(metrics, keys.LCP, false); err != nil {
		return Vitals{}, err
	}
	if v.FID, err = parseMetric(metrics, keys.FID, false); err != nil {
		return Vitals{}, err
	}
	if v.CLS, err = parseMetric(metrics, keys.CLS, true); err != nil {
		return Vitals{}, err
	}
	return v, nil
}

func parseMetric(metrics gjson.Result, key string, float bool) (Metric, error) {
	block := metrics.Get(key)
	if !block.Exists() {
		return Metric{}, fmt.Errorf("%w: record.metrics.%s", ErrMissingKey, key)
	}

	fields := map[string]gjson.Result{
		"percentiles.p75":     block.Get("percentiles.p75"),
		"histogram.0.end":     block.Get("histogram.0.end"),
		"histogram.0.density": block.Get("histogram.0.density"),
	}
	for path, r := range fields {
		if !r.Exists() {
			return Metric{}, fmt.Errorf("%w: record.metrics.%s.%s", ErrMissingKey, key, path)
		}
	}

	p75 := fields["percentiles.p75"]
	m := Metric{
		P75:       p75.Float(),
		Threshold: fields["histogram.0.end"].Float(),
		GoodPct:   GoodPercent(fields["histogram.0.density"].Float()),
	}
	if float {
		m.P75Text = formatFloat(m.P75)
	} else {
		m.P75Text = nativeText(p75)
	}
	return m, nil
}

// GoodPercent converts a bucket density to a percentage.
// Halves round to even: 0.125 gives 12, 0.375 gives 38.
func GoodPercent(density float64) int {
	return int(math.RoundToEven(density * 100))
}

// nativeText keeps a value the way the API wrote it (2500, "2500", 12.5).
func nativeText(r gjson.Result) string {
	if r.Type == gjson.String {
		return r.Str
	}
	return r.Raw
}

// formatFloat always renders a decimal point, so 1 becomes "1.0".
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
