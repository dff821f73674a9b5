package booking

import (
	"fmt"
	"regexp"
	"time"
)

// ValidationError rejects malformed input before it reaches the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// MaxNameLength bounds a booking's name.
const MaxNameLength = 30

// The charset is deliberately conservative: names end up in rendered
// pages, so nothing with markup or escaping potential is allowed.
var nameRegexp = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 .'/-]*$`)

// Validate checks a booking's grid position, date and name. The span
// upper bounds keep the rectangle inside the grid: courtSpan at most
// 6-court, slotSpan at most 17-slot.
func Validate(b Booking) error {
	if b.Court < 1 || b.Court > Courts {
		return ValidationError{Field: "court", Reason: fmt.Sprintf("must be between 1 and %d", Courts)}
	}
	if b.CourtSpan < 1 || b.Court+b.CourtSpan > Courts+1 {
		return ValidationError{Field: "courtSpan", Reason: fmt.Sprintf("must be between 1 and %d", Courts+1-b.Court)}
	}
	if b.Slot < 1 || b.Slot > Slots {
		return ValidationError{Field: "slot", Reason: fmt.Sprintf("must be between 1 and %d", Slots)}
	}
	if b.SlotSpan < 1 || b.Slot+b.SlotSpan > Slots+1 {
		return ValidationError{Field: "slotSpan", Reason: fmt.Sprintf("must be between 1 and %d", Slots+1-b.Slot)}
	}
	if err := ValidateDate(b.Date); err != nil {
		return err
	}
	if b.Name == "" {
		return ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if len(b.Name) > MaxNameLength {
		return ValidationError{Field: "name", Reason: fmt.Sprintf("must be at most %d characters", MaxNameLength)}
	}
	if !nameRegexp.MatchString(b.Name) {
		return ValidationError{Field: "name", Reason: "contains disallowed characters"}
	}
	return nil
}

// ValidateDate checks the YYYY-MM-DD form shared by bookings, rules and
// exclusions.
func ValidateDate(date string) error {
	if _, err := time.Parse(DateFormat, date); err != nil {
		return ValidationError{Field: "date", Reason: "must be a valid YYYY-MM-DD date"}
	}
	return nil
}
