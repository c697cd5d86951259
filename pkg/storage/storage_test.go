package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), DefaultPath))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func result(origin, verdict, date string) Result {
	return Result{
		Origin:     origin,
		Input:      origin,
		Verdict:    verdict,
		Date:       date,
		LCPP75:     "2100",
		LCPGoodPct: 81,
		FIDP75:     "12",
		FIDGoodPct: 94,
		CLSP75:     "0.05",
		CLSGoodPct: 90,
	}
}

func TestInsertKeepsDuplicates(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := db.InsertResult(ctx, result("https://a.com/", "passed", "2024-03-01")); err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.ListResults(ctx, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].ID == got[1].ID {
		t.Fatalf("expected distinct ids, got %d twice", got[0].ID)
	}
	if got[0].CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}
}

func TestListResultsFilters(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	rows := []Result{
		result("https://a.com/", "passed", "2024-03-01"),
		result("https://b.com/", "failed", "2024-03-02"),
		result("https://a.com/", "failed", "2024-03-03"),
	}
	for _, r := range rows {
		if _, err := db.InsertResult(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		opts   ListOptions
		expect int
	}{
		{"all", ListOptions{}, 3},
		{"origin", ListOptions{OriginFilter: "a.com"}, 2},
		{"since", ListOptions{Since: "2024-03-02"}, 2},
		{"until", ListOptions{Until: "2024-03-01"}, 1},
		{"limit", ListOptions{Limit: 1}, 1},
	}
	for _, tc := range tests {
		got, err := db.ListResults(ctx, tc.opts)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != tc.expect {
			t.Fatalf("%s: expected %d rows, got %d", tc.name, tc.expect, len(got))
		}
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, r := range []Result{
		result("https://a.com/", "passed", "2024-03-01"),
		result("https://a.com/", "failed", "2024-03-02"),
		result("https://b.com/", "passed", "2024-03-02"),
	} {
		if _, err := db.InsertResult(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := db.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	expect := []OriginStats{
		{Origin: "https://a.com/", Runs: 2, PassedCount: 1, FailedCount: 1, LastDate: "2024-03-02", LastVerdict: "failed"},
		{Origin: "https://b.com/", Runs: 1, PassedCount: 1, FailedCount: 0, LastDate: "2024-03-02", LastVerdict: "passed"},
	}
	if len(stats) != len(expect) {
		t.Fatalf("expected %d origins, got %d: %+v", len(expect), len(stats), stats)
	}
	for i := range expect {
		if stats[i] != expect[i] {
			t.Fatalf("unexpected stats.\nwant: %+v\ngot:  %+v", expect[i], stats[i])
		}
	}
}
