// Package booking reserves and releases rectangles of court×time-slot
// cells on a per-date grid, with the versioned attribute store's CAS as
// the only synchronization between concurrent writers.
package booking

// The court grid: courts 1..Courts across, slots 1..Slots down.
const (
	Courts = 5
	Slots  = 16
)

// DateFormat is the layout of every date handled by the core.
const DateFormat = "2006-01-02"

// Booking occupies the rectangle of cells
// [Court, Court+CourtSpan) × [Slot, Slot+SlotSpan) on its date.
type Booking struct {
	Court     int
	CourtSpan int
	Slot      int
	SlotSpan  int
	Date      string
	Name      string
}

// Key returns the booking's position on the grid, which identifies it
// within its date item.
func (b Booking) Key() Key {
	return Key{Court: b.Court, CourtSpan: b.CourtSpan, Slot: b.Slot, SlotSpan: b.SlotSpan}
}

// Cell is one (court, slot) unit of the grid.
type Cell struct {
	Court int
	Slot  int
}

// Cells expands the booking's rectangle into its occupied unit cells.
func (b Booking) Cells() map[Cell]struct{} {
	cells := make(map[Cell]struct{}, b.CourtSpan*b.SlotSpan)
	for c := b.Court; c < b.Court+b.CourtSpan; c++ {
		for s := b.Slot; s < b.Slot+b.SlotSpan; s++ {
			cells[Cell{Court: c, Slot: s}] = struct{}{}
		}
	}
	return cells
}

// Overlaps reports whether two bookings occupy any common cell.
func (b Booking) Overlaps(other Booking) bool {
	cells := other.Cells()
	for cell := range b.Cells() {
		if _, ok := cells[cell]; ok {
			return true
		}
	}
	return false
}
