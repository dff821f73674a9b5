package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/guoyu07/Sqawsh-sub001/booking"
	"github.com/guoyu07/Sqawsh-sub001/clock"
	"github.com/guoyu07/Sqawsh-sub001/lifecycle"
	"github.com/guoyu07/Sqawsh-sub001/retry"
	"github.com/guoyu07/Sqawsh-sub001/store"
)

// ClashError rejects a rule that could produce a booking overlapping
// one produced by an already-stored rule.
type ClashError struct {
	Rule Rule
}

func (e ClashError) Error() string {
	return fmt.Sprintf("rule %q clashes with an existing rule", e.Rule.AttrName())
}

// LatentClashError rejects removing an exclusion that is the only thing
// holding two rules apart on that date.
type LatentClashError struct {
	Date string
}

func (e LatentClashError) Error() string {
	return fmt.Sprintf("removing the exclusion for %s would reintroduce a clash", e.Date)
}

// TooManyExclusionsError rejects growing a rule's exclusion set past its
// cap.
type TooManyExclusionsError struct {
	Max int
}

func (e TooManyExclusionsError) Error() string {
	return fmt.Sprintf("rule is at its cap of %d exclusions", e.Max)
}

// ErrRuleNotFound means the targeted rule is not stored.
var ErrRuleNotFound = errors.New("rule not found")

// ManagerConfig wires a Manager; every dependency is explicit.
type ManagerConfig struct {
	Store     store.Store
	Bookings  *booking.Manager
	Lifecycle *lifecycle.Manager
	Clock     clock.Clock
	Location  *time.Location
	Logger    *slog.Logger
	// Attempts bounds CAS retries per operation.
	Attempts int
	// MaxExclusions caps the excluded dates per rule.
	MaxExclusions int
	// ApplyDelay spaces out the writes of rule application to bound the
	// write rate against the backing store.
	ApplyDelay time.Duration
}

type Manager struct {
	cfg ManagerConfig
}

func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{cfg: cfg}
}

func (m *Manager) today() string {
	return m.cfg.Clock.Now().In(m.cfg.Location).Format(booking.DateFormat)
}

func (m *Manager) yesterday() string {
	return m.cfg.Clock.Now().In(m.cfg.Location).AddDate(0, 0, -1).Format(booking.DateFormat)
}

// readRules loads the singleton item. Lifecycle attributes and anything
// unparsable are skipped; one corrupt attribute cannot take every rule
// down with it.
func (m *Manager) readRules(ctx context.Context) (*int64, []Rule, error) {
	version, attrs, err := m.cfg.Store.Get(ctx, lifecycle.SingletonItem)
	if err != nil {
		return nil, nil, err
	}
	var all []Rule
	for _, attr := range attrs {
		if lifecycle.IsReserved(attr.Name) {
			continue
		}
		r, err := FromAttribute(attr.Name, attr.Value)
		if err != nil {
			m.cfg.Logger.Warn("skipping unparsable rule attribute", "attribute", attr.Name, "error", err)
			continue
		}
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].AttrName() < all[j].AttrName() })
	return version, all, nil
}

// Create stores a rule after proving it cannot clash with any stored
// rule. The clash check runs against a fresh read on every CAS retry.
func (m *Manager) Create(ctx context.Context, r Rule, userCall bool) error {
	if err := m.cfg.Lifecycle.Check(ctx, false, userCall); err != nil {
		return err
	}
	if err := m.validate(r); err != nil {
		return err
	}
	return retry.Do(ctx, m.cfg.Attempts, store.IsConflict, func() error {
		version, existing, err := m.readRules(ctx)
		if err != nil {
			return err
		}
		if clashes(r, existing) {
			return ClashError{Rule: r}
		}
		attr := store.Attribute{Name: r.AttrName(), Value: r.AttrValue()}
		_, err = m.cfg.Store.Put(ctx, lifecycle.SingletonItem, version, attr)
		return err
	})
}

func (m *Manager) validate(r Rule) error {
	if err := booking.Validate(r.Booking); err != nil {
		return err
	}
	if !r.Recurring {
		if len(r.ExcludedDates) > 0 {
			return booking.ValidationError{Field: "excludedDates", Reason: "only recurring rules can have exclusions"}
		}
		if dateBefore(r.Booking.Date, m.today()) {
			return booking.ValidationError{Field: "date", Reason: "non-recurring rule must not start in the past"}
		}
		return nil
	}
	if len(r.ExcludedDates) > m.cfg.MaxExclusions {
		return TooManyExclusionsError{Max: m.cfg.MaxExclusions}
	}
	for _, d := range r.ExcludedDates {
		if err := booking.ValidateDate(d); err != nil {
			return err
		}
		if weekdayOf(d) != r.Weekday() {
			return booking.ValidationError{Field: "excludedDates", Reason: fmt.Sprintf("%s is not on the rule's weekday", d)}
		}
		if dateBefore(d, r.Booking.Date) {
			return booking.ValidationError{Field: "excludedDates", Reason: fmt.Sprintf("%s is before the rule starts", d)}
		}
	}
	return nil
}

// Delete removes a rule. Deleting a rule that is not stored succeeds.
func (m *Manager) Delete(ctx context.Context, r Rule, userCall bool) error {
	if err := m.cfg.Lifecycle.Check(ctx, false, userCall); err != nil {
		return err
	}
	attr := store.Attribute{Name: r.AttrName(), Value: r.AttrValue()}
	return m.cfg.Store.Delete(ctx, lifecycle.SingletonItem, attr)
}

// Rules returns every stored rule.
func (m *Manager) Rules(ctx context.Context, userCall bool) ([]Rule, error) {
	if err := m.cfg.Lifecycle.Check(ctx, true, userCall); err != nil {
		return nil, err
	}
	_, all, err := m.readRules(ctx)
	return all, err
}

// DeleteAllRules removes every rule individually, leaving the lifecycle
// attributes on the singleton item untouched.
func (m *Manager) DeleteAllRules(ctx context.Context) error {
	_, all, err := m.readRules(ctx)
	if err != nil {
		return err
	}
	for _, r := range all {
		attr := store.Attribute{Name: r.AttrName(), Value: r.AttrValue()}
		if err := m.cfg.Store.Delete(ctx, lifecycle.SingletonItem, attr); err != nil {
			return fmt.Errorf("delete rule %q: %w", r.AttrName(), err)
		}
	}
	return nil
}

// AddExclusion excludes one date from a recurring rule. Adding an
// exclusion that is already present succeeds.
func (m *Manager) AddExclusion(ctx context.Context, r Rule, date string, userCall bool) error {
	if err := m.cfg.Lifecycle.Check(ctx, false, userCall); err != nil {
		return err
	}
	if err := booking.ValidateDate(date); err != nil {
		return err
	}
	return retry.Do(ctx, m.cfg.Attempts, store.IsConflict, func() error {
		version, target, err := m.findRule(ctx, r.AttrName())
		if err != nil {
			return err
		}
		if !target.Recurring {
			return booking.ValidationError{Field: "excludedDates", Reason: "only recurring rules can have exclusions"}
		}
		if weekdayOf(date) != target.Weekday() {
			return booking.ValidationError{Field: "excludedDates", Reason: fmt.Sprintf("%s is not on the rule's weekday", date)}
		}
		if dateBefore(date, target.Booking.Date) {
			return booking.ValidationError{Field: "excludedDates", Reason: fmt.Sprintf("%s is before the rule starts", date)}
		}
		if dateBefore(date, m.today()) {
			return booking.ValidationError{Field: "excludedDates", Reason: "cannot exclude a past date"}
		}
		if target.Excludes(date) {
			return nil
		}
		if len(target.ExcludedDates) >= m.cfg.MaxExclusions {
			return TooManyExclusionsError{Max: m.cfg.MaxExclusions}
		}
		updated := target.withExclusion(date)
		attr := store.Attribute{Name: updated.AttrName(), Value: updated.AttrValue()}
		_, err = m.cfg.Store.Put(ctx, lifecycle.SingletonItem, version, attr)
		return err
	})
}

// DeleteExclusion un-excludes one date from a recurring rule, but only
// after re-running the clash algorithm against the hypothetically
// restored rule: if the exclusion is the only thing separating this rule
// from another, removal fails with LatentClashError.
func (m *Manager) DeleteExclusion(ctx context.Context, r Rule, date string, userCall bool) error {
	if err := m.cfg.Lifecycle.Check(ctx, false, userCall); err != nil {
		return err
	}
	if err := booking.ValidateDate(date); err != nil {
		return err
	}
	return retry.Do(ctx, m.cfg.Attempts, store.IsConflict, func() error {
		version, all, err := m.readRules(ctx)
		if err != nil {
			return err
		}
		idx := slices.IndexFunc(all, func(stored Rule) bool { return stored.AttrName() == r.AttrName() })
		if idx < 0 {
			return ErrRuleNotFound
		}
		target := all[idx]
		if !target.Excludes(date) {
			return nil
		}
		restored := target.withoutExclusion(date)
		others := append(slices.Clone(all[:idx]), all[idx+1:]...)
		if clashes(restored, others) {
			return LatentClashError{Date: date}
		}
		attr := store.Attribute{Name: restored.AttrName(), Value: restored.AttrValue()}
		_, err = m.cfg.Store.Put(ctx, lifecycle.SingletonItem, version, attr)
		return err
	})
}

func (m *Manager) findRule(ctx context.Context, attrName string) (*int64, Rule, error) {
	version, all, err := m.readRules(ctx)
	if err != nil {
		return nil, Rule{}, err
	}
	for _, stored := range all {
		if stored.AttrName() == attrName {
			return version, stored, nil
		}
	}
	return nil, Rule{}, ErrRuleNotFound
}

// Apply materializes every applicable rule into a booking for date and
// returns the bookings it created. A clash while creating means the
// booking already exists (a re-run, or a user got there first); it is
// logged and skipped so application stays idempotent. After applying,
// expired rules and stale exclusions are swept on a best-effort basis.
func (m *Manager) Apply(ctx context.Context, date string) ([]booking.Booking, error) {
	if err := booking.ValidateDate(date); err != nil {
		return nil, err
	}
	_, all, err := m.readRules(ctx)
	if err != nil {
		return nil, err
	}
	var created []booking.Booking
	for _, r := range all {
		if !r.AppliesTo(date) {
			continue
		}
		b := r.Booking
		b.Date = date
		if _, err := m.cfg.Bookings.Create(ctx, b, false); err != nil {
			var clash booking.ClashError
			if errors.As(err, &clash) {
				m.cfg.Logger.Warn("booking already taken while applying rule", "rule", r.AttrName(), "date", date)
				continue
			}
			return created, fmt.Errorf("apply rule %q: %w", r.AttrName(), err)
		}
		created = append(created, b)
		m.cfg.Clock.Sleep(m.cfg.ApplyDelay)
	}
	m.sweep(ctx)
	return created, nil
}

// sweep drops non-recurring rules whose date has passed and prunes
// exclusions older than yesterday. Failures are logged and left for the
// next day's sweep; they never fail the caller's operation.
func (m *Manager) sweep(ctx context.Context) {
	today := m.today()
	yesterday := m.yesterday()
	_, all, err := m.readRules(ctx)
	if err != nil {
		m.cfg.Logger.Warn("rule sweep: read failed", "error", err)
		return
	}
	for _, r := range all {
		if !r.Recurring {
			if dateBefore(r.Booking.Date, today) {
				attr := store.Attribute{Name: r.AttrName(), Value: r.AttrValue()}
				if err := m.cfg.Store.Delete(ctx, lifecycle.SingletonItem, attr); err != nil {
					m.cfg.Logger.Warn("rule sweep: purge failed", "rule", r.AttrName(), "error", err)
				}
			}
			continue
		}
		if err := m.pruneExclusions(ctx, r.AttrName(), yesterday); err != nil {
			m.cfg.Logger.Warn("rule sweep: exclusion prune failed", "rule", r.AttrName(), "error", err)
		}
	}
}

// pruneExclusions rebuilds the rule's exclusion set without dates older
// than cutoff, as a fresh value each attempt rather than in-place
// mutation.
func (m *Manager) pruneExclusions(ctx context.Context, attrName, cutoff string) error {
	return retry.Do(ctx, m.cfg.Attempts, store.IsConflict, func() error {
		version, target, err := m.findRule(ctx, attrName)
		if errors.Is(err, ErrRuleNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		kept := slices.DeleteFunc(slices.Clone(target.ExcludedDates), func(d string) bool {
			return dateBefore(d, cutoff)
		})
		if len(kept) == len(target.ExcludedDates) {
			return nil
		}
		pruned := target
		pruned.ExcludedDates = kept
		attr := store.Attribute{Name: pruned.AttrName(), Value: pruned.AttrValue()}
		_, err = m.cfg.Store.Put(ctx, lifecycle.SingletonItem, version, attr)
		return err
	})
}
