package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/sw33tLie/cwvcheck/internal/utils"
)

const (
	DefaultPath = "cwvchecks.csv"
	Delimiter   = ';'
	DateLayout  = "2006-01-02"
)

// Header is written once, when the report file is created.
var Header = []string{
	"Origin",
	"Core Web Vitals passed",
	"Date",
	"LCP75P in ms",
	"LCP good in %",
	"FID75P in ms",
	"FID good in %",
	"CLS75P",
	"CLS good in %",
}

// Row is one audited origin.
type Row struct {
	Origin     string
	Verdict    string
	Date       string
	LCPP75     string
	LCPGoodPct int
	FIDP75     string
	FIDGoodPct int
	CLSP75     string
	CLSGoodPct int
}

func (r Row) Record() []string {
	return []string{
		r.Origin,
		r.Verdict,
		r.Date,
		r.LCPP75,
		strconv.Itoa(r.LCPGoodPct),
		r.FIDP75,
		strconv.Itoa(r.FIDGoodPct),
		r.CLSP75,
		strconv.Itoa(r.CLSGoodPct),
	}
}

// Report is an append-only, semicolon-delimited results file.
type Report struct {
	path string
	lock *utils.FileLock
}

// New returns the report at path, creating it with Header if it does not exist.
// An existing file is used as is, whatever its header.
func New(path string) (*Report, error) {
	if path == "" {
		path = DefaultPath
	}

	lock, err := utils.NewFileLock(path)
	if err != nil {
		return nil, err
	}
	r := &Report{path: path, lock: lock}

	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if err := r.write(Header, os.O_CREATE|os.O_EXCL|os.O_WRONLY); err != nil {
			// Another process may have created it in between
			if errors.Is(err, os.ErrExist) {
				return r, nil
			}
			return nil, fmt.Errorf("creating report %s: %w", path, err)
		}
		utils.Log.Debugf("Created report %s", path)
	}

	return r, nil
}

func (r *Report) Path() string {
	return r.path
}

// Append adds row to the end of the report.
func (r *Report) Append(row Row) error {
	if err := r.write(row.Record(), os.O_APPEND|os.O_CREATE|os.O_WRONLY); err != nil {
		return fmt.Errorf("appending to report %s: %w", r.path, err)
	}
	return nil
}

func (r *Report) write(record []string, flag int) error {
	if err := r.lock.Lock(); err != nil {
		return err
	}
	defer r.lock.Unlock()

	f, err := os.OpenFile(r.path, flag, 0o644)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(f)
	writer.Comma = Delimiter
	if err := writer.Write(record); err != nil {
		f.Close()
		return err
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
