package booking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/guoyu07/Sqawsh-sub001/clock"
	"github.com/guoyu07/Sqawsh-sub001/lifecycle"
	"github.com/guoyu07/Sqawsh-sub001/retry"
	"github.com/guoyu07/Sqawsh-sub001/store"
)

// ClashError rejects a booking whose rectangle intersects an existing
// booking on the same date. It is a real conflict, never retried.
type ClashError struct {
	Booking Booking
}

func (e ClashError) Error() string {
	return fmt.Sprintf("booking %s on %s clashes with an existing booking", e.Booking.Key(), e.Booking.Date)
}

// Manager creates and deletes bookings on date items. All dependencies
// are injected at construction; there are no lazily-built singletons.
type Manager struct {
	store     store.Store
	lifecycle *lifecycle.Manager
	clk       clock.Clock
	loc       *time.Location
	log       *slog.Logger
	attempts  int
}

func NewManager(s store.Store, lc *lifecycle.Manager, clk clock.Clock, loc *time.Location, log *slog.Logger, attempts int) *Manager {
	return &Manager{store: s, lifecycle: lc, clk: clk, loc: loc, log: log, attempts: attempts}
}

func (m *Manager) today() string {
	return m.clk.Now().In(m.loc).Format(DateFormat)
}

func (m *Manager) yesterday() string {
	return m.clk.Now().In(m.loc).AddDate(0, 0, -1).Format(DateFormat)
}

// Create reserves a booking's rectangle on its date, retrying lost CAS
// races with fresh reads. A genuine overlap surfaces as ClashError on
// first sight. Returns the date's full booking list after the write.
func (m *Manager) Create(ctx context.Context, b Booking, userCall bool) ([]Booking, error) {
	if err := m.lifecycle.Check(ctx, false, userCall); err != nil {
		return nil, err
	}
	if err := Validate(b); err != nil {
		return nil, err
	}
	var result []Booking
	err := retry.Do(ctx, m.attempts, store.IsConflict, func() error {
		version, attrs, err := m.store.Get(ctx, b.Date)
		if err != nil {
			return err
		}
		existing := m.parse(b.Date, attrs)
		for _, other := range existing {
			if b.Overlaps(other) {
				return ClashError{Booking: b}
			}
		}
		attr := store.Attribute{Name: b.Key().String(), Value: b.Name}
		if _, err := m.store.Put(ctx, b.Date, version, attr); err != nil {
			return err
		}
		result = sorted(append(existing, b))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Get returns the active bookings for one date.
func (m *Manager) Get(ctx context.Context, date string, userCall bool) ([]Booking, error) {
	if err := m.lifecycle.Check(ctx, true, userCall); err != nil {
		return nil, err
	}
	if err := ValidateDate(date); err != nil {
		return nil, err
	}
	_, attrs, err := m.store.Get(ctx, date)
	if err != nil {
		return nil, err
	}
	return sorted(m.parse(date, attrs)), nil
}

// GetAll returns the bookings of every date item. Items that are not
// date items (the rules singleton) are skipped.
func (m *Manager) GetAll(ctx context.Context, userCall bool) ([]Booking, error) {
	if err := m.lifecycle.Check(ctx, true, userCall); err != nil {
		return nil, err
	}
	items, err := m.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var all []Booking
	for _, item := range items {
		if ValidateDate(item.Name) != nil {
			continue
		}
		all = append(all, sorted(m.parse(item.Name, item.Attributes))...)
	}
	return all, nil
}

// Delete releases a booking's rectangle. Deleting a booking that does
// not exist succeeds; someone else already released it. Returns the
// date's remaining bookings.
func (m *Manager) Delete(ctx context.Context, b Booking, userCall bool) ([]Booking, error) {
	if err := m.lifecycle.Check(ctx, false, userCall); err != nil {
		return nil, err
	}
	if err := ValidateDate(b.Date); err != nil {
		return nil, err
	}
	attr := store.Attribute{Name: b.Key().String(), Value: b.Name}
	if err := m.store.Delete(ctx, b.Date, attr); err != nil {
		return nil, err
	}
	_, attrs, err := m.store.Get(ctx, b.Date)
	if err != nil {
		return nil, err
	}
	return sorted(m.parse(b.Date, attrs)), nil
}

// DeleteYesterdays drops yesterday's whole date item. Invoked by the
// daily maintenance job, never by end users.
func (m *Manager) DeleteYesterdays(ctx context.Context) error {
	return m.store.DeleteAll(ctx, m.yesterday())
}

// DeleteAllBookings removes every booking individually, each through the
// tombstone protocol with its own retries, so a partial failure never
// corrupts any item's version sequence.
func (m *Manager) DeleteAllBookings(ctx context.Context) error {
	all, err := m.GetAll(ctx, false)
	if err != nil {
		return err
	}
	for _, b := range all {
		attr := store.Attribute{Name: b.Key().String(), Value: b.Name}
		if err := m.store.Delete(ctx, b.Date, attr); err != nil {
			return fmt.Errorf("delete booking %s on %s: %w", b.Key(), b.Date, err)
		}
	}
	return nil
}

// parse decodes a date item's attributes, skipping anything that does
// not parse as a booking so one corrupt attribute cannot poison the
// whole date.
func (m *Manager) parse(date string, attrs []store.Attribute) []Booking {
	var bookings []Booking
	for _, attr := range attrs {
		b, err := FromAttribute(date, attr.Name, attr.Value)
		if err != nil {
			m.log.Warn("skipping unparsable booking attribute", "date", date, "attribute", attr.Name, "error", err)
			continue
		}
		bookings = append(bookings, b)
	}
	return bookings
}

func sorted(bookings []Booking) []Booking {
	sort.Slice(bookings, func(i, j int) bool {
		if bookings[i].Date != bookings[j].Date {
			return bookings[i].Date < bookings[j].Date
		}
		if bookings[i].Court != bookings[j].Court {
			return bookings[i].Court < bookings[j].Court
		}
		return bookings[i].Slot < bookings[j].Slot
	})
	return bookings
}
