// Package rules manages recurring and one-off booking rules: their
// storage on the singleton rule item, the clash algorithm that keeps any
// two stored rules from ever producing overlapping bookings on the same
// calendar date, per-rule date exclusions, and the daily application
// that materializes rules into bookings.
package rules

import (
	"slices"
	"time"

	"github.com/guoyu07/Sqawsh-sub001/booking"
)

// Rule auto-creates bookings. A non-recurring rule fires exactly once,
// on its booking's date. A recurring rule re-applies every 7 days from
// that date onward, skipping its excluded dates.
type Rule struct {
	// Booking is the template; its Date is the rule's first occurrence.
	Booking   booking.Booking
	Recurring bool
	// ExcludedDates lists dates a recurring rule skips, kept sorted.
	ExcludedDates []string
}

// Weekday returns the weekday the rule fires on.
func (r Rule) Weekday() time.Weekday { return weekdayOf(r.Booking.Date) }

// Excludes reports whether date is excluded from the rule.
func (r Rule) Excludes(date string) bool {
	return slices.Contains(r.ExcludedDates, date)
}

// AppliesTo reports whether the rule materializes a booking on date.
func (r Rule) AppliesTo(date string) bool {
	if !r.Recurring {
		return r.Booking.Date == date
	}
	return weekdayOf(date) == r.Weekday() &&
		!dateBefore(date, r.Booking.Date) &&
		!r.Excludes(date)
}

// withoutExclusion returns a copy of the rule with one exclusion
// removed; the receiver's slice is never mutated.
func (r Rule) withoutExclusion(date string) Rule {
	restored := r
	restored.ExcludedDates = nil
	for _, d := range r.ExcludedDates {
		if d != date {
			restored.ExcludedDates = append(restored.ExcludedDates, d)
		}
	}
	return restored
}

// withExclusion returns a copy of the rule with one exclusion added,
// keeping the set sorted.
func (r Rule) withExclusion(date string) Rule {
	extended := r
	extended.ExcludedDates = append(slices.Clone(r.ExcludedDates), date)
	slices.Sort(extended.ExcludedDates)
	return extended
}

// weekdayOf assumes a date already validated against booking.DateFormat;
// every path into this package validates dates before storing or
// comparing them.
func weekdayOf(date string) time.Weekday {
	t, _ := time.Parse(booking.DateFormat, date)
	return t.Weekday()
}

// dateBefore orders YYYY-MM-DD dates. The fixed-width format makes
// lexicographic and chronological order coincide.
func dateBefore(a, b string) bool { return a < b }
