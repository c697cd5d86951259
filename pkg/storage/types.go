package storage

import "time"

// Result is one stored audit row plus how its origin was resolved.
type Result struct {
	ID int64

	Origin  string
	Input   string
	Verdict string
	Date    string

	LCPP75     string
	LCPGoodPct int
	FIDP75     string
	FIDGoodPct int
	CLSP75     string
	CLSGoodPct int

	Redirected bool
	Degraded   bool
	CreatedAt  time.Time
}
