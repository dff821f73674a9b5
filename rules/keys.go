package rules

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/guoyu07/Sqawsh-sub001/booking"
)

// A rule is stored as one attribute on the singleton item. The name
// carries the rule's identity,
// "<date>-<court>-<courtSpan>-<slot>-<slotSpan>-<isRecurring>-<name>",
// and the value holds the comma-joined excluded dates. Both encodings
// match the stored data byte for byte.

// AttrName returns the rule's stored attribute name.
func (r Rule) AttrName() string {
	return fmt.Sprintf("%s-%d-%d-%d-%d-%t-%s",
		r.Booking.Date, r.Booking.Court, r.Booking.CourtSpan,
		r.Booking.Slot, r.Booking.SlotSpan, r.Recurring, r.Booking.Name)
}

// AttrValue returns the rule's stored attribute value.
func (r Rule) AttrValue() string {
	return strings.Join(r.ExcludedDates, ",")
}

// FromAttribute parses a stored attribute back into a Rule. The date is
// a fixed-width prefix and the name is the trailing remainder, so names
// containing '-' round-trip.
func FromAttribute(attrName, attrValue string) (Rule, error) {
	if len(attrName) < len(booking.DateFormat)+1 {
		return Rule{}, fmt.Errorf("rule attribute %q: too short", attrName)
	}
	date := attrName[:len(booking.DateFormat)]
	if err := booking.ValidateDate(date); err != nil {
		return Rule{}, fmt.Errorf("rule attribute %q: %w", attrName, err)
	}
	rest := attrName[len(booking.DateFormat)+1:]
	parts := strings.SplitN(rest, "-", 6)
	if len(parts) != 6 {
		return Rule{}, fmt.Errorf("rule attribute %q: want 7 fields", attrName)
	}
	fields := make([]int, 4)
	for i, p := range parts[:4] {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			return Rule{}, fmt.Errorf("rule attribute %q: bad field %q", attrName, p)
		}
		fields[i] = n
	}
	var recurring bool
	switch parts[4] {
	case "true":
		recurring = true
	case "false":
		recurring = false
	default:
		return Rule{}, fmt.Errorf("rule attribute %q: bad recurrence flag %q", attrName, parts[4])
	}
	if parts[5] == "" {
		return Rule{}, fmt.Errorf("rule attribute %q: empty name", attrName)
	}

	var excluded []string
	if attrValue != "" {
		excluded = strings.Split(attrValue, ",")
		slices.Sort(excluded)
	}
	return Rule{
		Booking: booking.Booking{
			Court:     fields[0],
			CourtSpan: fields[1],
			Slot:      fields[2],
			SlotSpan:  fields[3],
			Date:      date,
			Name:      parts[5],
		},
		Recurring:     recurring,
		ExcludedDates: excluded,
	}, nil
}
