package snapshot

import "time"

// FiscalQuarter derives the fiscal quarter for a calendar date. Fiscal Q1 is
// February-April (spec §3, GLOSSARY); every month maps to exactly one
// quarter (spec §8 "Round-trip laws: calendar-complete coverage").
func FiscalQuarter(t time.Time) Quarter {
	switch t.Month() {
	case time.February, time.March, time.April:
		return Q1
	case time.May, time.June, time.July:
		return Q2
	case time.August, time.September, time.October:
		return Q3
	default: // November, December, January
		return Q4
	}
}
