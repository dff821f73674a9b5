package rules

// clashes reports whether candidate could ever produce a booking
// overlapping one produced by any existing rule on the same real
// calendar date.
//
// The filtering order is a deliberate tie-break: already-materialized
// non-recurring rules win over later recurring rules unless explicitly
// excluded, and recurring-vs-recurring on the same weekday with
// overlapping cells always clashes. Recurrence makes exclusion sets
// insufficient to fully resolve that last case, so the system refuses to
// create the second rule rather than reconcile interleaved exclusions.
func clashes(candidate Rule, existing []Rule) bool {
	day := candidate.Weekday()
	var overlapping []Rule
	for _, r := range existing {
		if r.Weekday() != day {
			continue
		}
		if !r.Booking.Overlaps(candidate.Booking) {
			continue
		}
		// A non-recurring rule that fired strictly before the
		// candidate's start can never collide with it.
		if !r.Recurring && dateBefore(r.Booking.Date, candidate.Booking.Date) {
			continue
		}
		overlapping = append(overlapping, r)
	}

	for _, r := range overlapping {
		if r.Recurring {
			continue
		}
		if candidate.Recurring {
			// An exclusion supplied at creation time is the only way to
			// pre-empt an existing one-off booking; restore-from-backup
			// depends on this.
			if !candidate.Excludes(r.Booking.Date) {
				return true
			}
		} else if r.Booking.Date == candidate.Booking.Date {
			return true
		}
	}

	for _, r := range overlapping {
		if !r.Recurring {
			continue
		}
		if candidate.Recurring {
			return true
		}
		if !dateBefore(candidate.Booking.Date, r.Booking.Date) && !r.Excludes(candidate.Booking.Date) {
			return true
		}
	}
	return false
}
