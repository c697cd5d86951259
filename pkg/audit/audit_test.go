package audit

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sw33tLie/cwvcheck/pkg/crux"
	"github.com/sw33tLie/cwvcheck/pkg/normalize"
	"github.com/sw33tLie/cwvcheck/pkg/report"
	"github.com/sw33tLie/cwvcheck/pkg/storage"
	"github.com/sw33tLie/cwvcheck/pkg/whttp"
	"github.com/tidwall/gjson"
)

const record = `{"record":{"metrics":{
  "largest_contentful_paint":{"histogram":[{"start":0,"end":2500,"density":0.8125}],"percentiles":{"p75":2500}},
  "first_input_delay":{"histogram":[{"start":0,"end":100,"density":0.9375}],"percentiles":{"p75":12}},
  "cumulative_layout_shift":{"histogram":[{"start":"0.00","end":"0.10","density":0.375}],"percentiles":{"p75":"0.19"}}
}}}`

var day = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// newSite serves "/" and redirects "/old/" to "/new/".
func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/old/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new/", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// newAPI answers 404 for origins containing "gone", garbage for "broken" and record otherwise.
func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		origin := gjson.GetBytes(body, "origin").String()
		switch {
		case strings.Contains(origin, "gone"):
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error":{"code":404}}`)
		case strings.Contains(origin, "broken"):
			io.WriteString(w, `{"record":`)
		default:
			io.WriteString(w, record)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fixture struct {
	auditor    *Auditor
	reportPath string
	snapshot   string
}

func newFixture(t *testing.T, api *httptest.Server, opts Options) fixture {
	t.Helper()
	dir := t.TempDir()

	probe, err := whttp.NewClient(whttp.ClientOptions{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}

	cfg := crux.DefaultConfig("secret")
	cfg.Endpoint = api.URL
	fetcher, err := crux.NewClient(cfg)
	if err != nil {
		t.Fatal(err)
	}

	reportPath := filepath.Join(dir, report.DefaultPath)
	rep, err := report.New(reportPath)
	if err != nil {
		t.Fatal(err)
	}

	opts.SnapshotPath = filepath.Join(dir, report.DefaultSnapshotPath)
	opts.Now = func() time.Time { return day }

	return fixture{
		auditor:    New(normalize.New(probe), fetcher, rep, opts),
		reportPath: reportPath,
		snapshot:   opts.SnapshotPath,
	}
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	reader := csv.NewReader(f)
	reader.Comma = report.Delimiter
	records, err := reader.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) == 0 || !reflect.DeepEqual(records[0], report.Header) {
		t.Fatalf("report does not start with the header: %v", records)
	}
	return records[1:]
}

func unreachableURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	return srv.URL
}

func TestRun(t *testing.T) {
	site := newSite(t)
	f := newFixture(t, newAPI(t), Options{})
	unreachable := unreachableURL(t)

	summary, err := f.auditor.Run(context.Background(), []string{
		site.URL,
		site.URL + "/old",
		unreachable,
		site.URL + "/gone",
	})
	if err != nil {
		t.Fatal(err)
	}

	if summary.Written != 3 || summary.Skipped != 1 || summary.Degraded != 1 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	rows := readRows(t, f.reportPath)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d: %v", len(rows), rows)
	}

	expectOrigins := []string{site.URL + "/", site.URL + "/new/", unreachable + "/"}
	for i, row := range rows {
		if row[0] != expectOrigins[i] {
			t.Fatalf("row %d: expected origin %s, got %s", i, expectOrigins[i], row[0])
		}
		expect := []string{"passed", "2024-03-01", "2500", "81", "12", "94", "12.0", "94"}
		if !reflect.DeepEqual(row[1:], expect) {
			t.Fatalf("row %d: unexpected values.\nwant: %#v\ngot:  %#v", i, expect, row[1:])
		}
	}

	if summary.Items[3].Outcome != OutcomeSkipped || summary.Items[3].StatusCode != http.StatusNotFound {
		t.Fatalf("expected the last item to be skipped with 404, got %+v", summary.Items[3])
	}
	if !summary.Items[2].Degraded() {
		t.Fatalf("expected the unreachable origin to be degraded, got %+v", summary.Items[2])
	}
}

func TestRunFixedCLSKeys(t *testing.T) {
	site := newSite(t)
	api := newAPI(t)
	dir := t.TempDir()

	cfg := crux.DefaultConfig("secret")
	cfg.Endpoint = api.URL
	cfg.Keys = crux.FixedMetricKeys
	fetcher, err := crux.NewClient(cfg)
	if err != nil {
		t.Fatal(err)
	}
	rep, err := report.New(filepath.Join(dir, report.DefaultPath))
	if err != nil {
		t.Fatal(err)
	}

	a := New(normalize.New(nil), fetcher, rep, Options{SnapshotPath: filepath.Join(dir, "snap.json"), Now: func() time.Time { return day }})
	item, err := a.AuditOrigin(context.Background(), site.URL)
	if err != nil {
		t.Fatal(err)
	}
	if item.Row.Verdict != crux.VerdictFailed || item.Row.CLSP75 != "0.19" || item.Row.CLSGoodPct != 38 {
		t.Fatalf("unexpected row: %+v", item.Row)
	}
}

func TestRunStopsOnMalformedResponse(t *testing.T) {
	site := newSite(t)
	f := newFixture(t, newAPI(t), Options{})

	summary, err := f.auditor.Run(context.Background(), []string{
		site.URL,
		site.URL + "/broken",
		site.URL + "/old",
	})
	if !errors.Is(err, crux.ErrMalformedResponse) {
		t.Fatalf("expected a malformed response error, got %v", err)
	}
	if summary.Written != 1 || len(summary.Items) != 2 {
		t.Fatalf("expected the run to stop after the broken origin, got %+v", summary)
	}
	if rows := readRows(t, f.reportPath); len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
}

func TestRunKeepGoing(t *testing.T) {
	site := newSite(t)
	f := newFixture(t, newAPI(t), Options{KeepGoing: true})

	summary, err := f.auditor.Run(context.Background(), []string{
		site.URL,
		site.URL + "/broken",
		site.URL + "/old",
	})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Written != 2 || summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Items[1].Err == nil {
		t.Fatal("expected the failed item to carry its error")
	}
}

func TestRunTwiceAppendsDuplicates(t *testing.T) {
	site := newSite(t)
	f := newFixture(t, newAPI(t), Options{})

	for i := 0; i < 2; i++ {
		if _, err := f.auditor.Run(context.Background(), []string{site.URL}); err != nil {
			t.Fatal(err)
		}
	}

	rows := readRows(t, f.reportPath)
	if len(rows) != 2 || !reflect.DeepEqual(rows[0], rows[1]) {
		t.Fatalf("expected two identical rows, got %v", rows)
	}
}

func TestRunWritesSnapshotOfLastResponse(t *testing.T) {
	site := newSite(t)
	f := newFixture(t, newAPI(t), Options{})

	if _, err := f.auditor.Run(context.Background(), []string{site.URL, site.URL + "/gone"}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(f.snapshot)
	if err != nil {
		t.Fatal(err)
	}
	if !gjson.GetBytes(data, "record.metrics.largest_contentful_paint").Exists() {
		t.Fatalf("snapshot does not hold the last successful response: %s", data)
	}
}

func TestRunStoresResults(t *testing.T) {
	site := newSite(t)
	db, err := storage.Open(filepath.Join(t.TempDir(), storage.DefaultPath))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	f := newFixture(t, newAPI(t), Options{Store: db})
	if _, err := f.auditor.Run(context.Background(), []string{site.URL + "/old", site.URL + "/gone"}); err != nil {
		t.Fatal(err)
	}

	results, err := db.ListResults(context.Background(), storage.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 stored result, got %d", len(results))
	}
	if !results[0].Redirected || results[0].Input != site.URL+"/old" || results[0].Origin != site.URL+"/new/" {
		t.Fatalf("unexpected stored result: %+v", results[0])
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	site := newSite(t)
	f := newFixture(t, newAPI(t), Options{Delay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	summary, err := f.auditor.Run(ctx, []string{site.URL, site.URL})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if summary.Written != 1 {
		t.Fatalf("expected one origin before cancellation, got %+v", summary)
	}
}
