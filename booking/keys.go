package booking

import (
	"fmt"
	"strconv"
	"strings"
)

// Key is the structured identity of a booking within its date item. Its
// String/ParseKey pair is injective and reproduces the exact attribute
// name format of the stored data, "<court>-<courtSpan>-<slot>-<slotSpan>",
// so existing items keep round-tripping.
type Key struct {
	Court     int
	CourtSpan int
	Slot      int
	SlotSpan  int
}

func (k Key) String() string {
	return fmt.Sprintf("%d-%d-%d-%d", k.Court, k.CourtSpan, k.Slot, k.SlotSpan)
}

// ParseKey parses a stored attribute name back into a Key. It is strict:
// anything String would not have produced is an error.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 4 {
		return Key{}, fmt.Errorf("booking key %q: want 4 fields, got %d", s, len(parts))
	}
	fields := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			return Key{}, fmt.Errorf("booking key %q: bad field %q", s, p)
		}
		fields[i] = n
	}
	return Key{Court: fields[0], CourtSpan: fields[1], Slot: fields[2], SlotSpan: fields[3]}, nil
}

// FromAttribute reconstructs a booking from its stored attribute within
// the given date item.
func FromAttribute(date, attrName, attrValue string) (Booking, error) {
	key, err := ParseKey(attrName)
	if err != nil {
		return Booking{}, err
	}
	return Booking{
		Court:     key.Court,
		CourtSpan: key.CourtSpan,
		Slot:      key.Slot,
		SlotSpan:  key.SlotSpan,
		Date:      date,
		Name:      attrValue,
	}, nil
}
