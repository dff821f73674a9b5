package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/guoyu07/Sqawsh-sub001/booking"
)

func ruleAt(date string, court, slot int, recurring bool, excluded ...string) Rule {
	return Rule{
		Booking: booking.Booking{
			Court: court, CourtSpan: 1, Slot: slot, SlotSpan: 1,
			Date: date, Name: "Someone",
		},
		Recurring:     recurring,
		ExcludedDates: excluded,
	}
}

func TestClashes(t *testing.T) {
	// 2024-06-03 and 2024-06-10 are Mondays, 2024-06-04 a Tuesday.

	t.Run("two recurring rules over the same cells always clash", func(t *testing.T) {
		existing := ruleAt("2024-06-03", 1, 1, true)
		candidate := ruleAt("2024-06-10", 1, 1, true)
		assert.True(t, clashes(candidate, []Rule{existing}))
		// Exclusions cannot save this case; recurrence outlasts any
		// finite exclusion set.
		candidate.ExcludedDates = []string{"2024-06-10", "2024-06-17"}
		assert.True(t, clashes(candidate, []Rule{existing}))
	})

	t.Run("different weekdays never clash", func(t *testing.T) {
		existing := ruleAt("2024-06-03", 1, 1, true)
		candidate := ruleAt("2024-06-04", 1, 1, true)
		assert.False(t, clashes(candidate, []Rule{existing}))
	})

	t.Run("disjoint cells never clash", func(t *testing.T) {
		existing := ruleAt("2024-06-03", 1, 1, true)
		candidate := ruleAt("2024-06-10", 2, 1, true)
		assert.False(t, clashes(candidate, []Rule{existing}))
	})

	t.Run("recurring over an existing one-off needs an exclusion", func(t *testing.T) {
		oneOff := ruleAt("2024-06-03", 1, 1, false)

		unexcluded := ruleAt("2024-05-06", 1, 1, true)
		assert.True(t, clashes(unexcluded, []Rule{oneOff}))

		excluded := ruleAt("2024-05-06", 1, 1, true, "2024-06-03")
		assert.False(t, clashes(excluded, []Rule{oneOff}))
	})

	t.Run("one-off strictly before the new rule is ignored", func(t *testing.T) {
		pastOneOff := ruleAt("2024-06-03", 1, 1, false)
		candidate := ruleAt("2024-06-10", 1, 1, true)
		assert.False(t, clashes(candidate, []Rule{pastOneOff}))

		later := ruleAt("2024-06-10", 1, 1, false)
		assert.False(t, clashes(later, []Rule{pastOneOff}))
	})

	t.Run("two one-offs clash only on the same date", func(t *testing.T) {
		existing := ruleAt("2024-06-10", 1, 1, false)
		sameDate := ruleAt("2024-06-10", 1, 1, false)
		assert.True(t, clashes(sameDate, []Rule{existing}))

		earlier := ruleAt("2024-06-03", 1, 1, false)
		assert.False(t, clashes(earlier, []Rule{existing}))
	})

	t.Run("one-off under an established recurring rule", func(t *testing.T) {
		recurring := ruleAt("2024-05-06", 1, 1, true)
		candidate := ruleAt("2024-06-03", 1, 1, false)
		assert.True(t, clashes(candidate, []Rule{recurring}))

		// The recurring rule excluding that exact date frees the slot.
		excused := ruleAt("2024-05-06", 1, 1, true, "2024-06-03")
		assert.False(t, clashes(candidate, []Rule{excused}))
	})

	t.Run("one-off before a recurring rule starts", func(t *testing.T) {
		recurring := ruleAt("2024-06-10", 1, 1, true)
		candidate := ruleAt("2024-06-03", 1, 1, false)
		assert.False(t, clashes(candidate, []Rule{recurring}))
	})

	t.Run("overlap is by cells, not identical rectangles", func(t *testing.T) {
		wide := Rule{
			Booking: booking.Booking{
				Court: 1, CourtSpan: 3, Slot: 1, SlotSpan: 4,
				Date: "2024-06-03", Name: "Block",
			},
			Recurring: true,
		}
		corner := ruleAt("2024-06-10", 3, 4, true)
		assert.True(t, clashes(corner, []Rule{wide}))
		outside := ruleAt("2024-06-10", 4, 1, true)
		assert.False(t, clashes(outside, []Rule{wide}))
	})

	t.Run("no rules no clash", func(t *testing.T) {
		assert.False(t, clashes(ruleAt("2024-06-03", 1, 1, true), nil))
	})
}
