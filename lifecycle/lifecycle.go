// Package lifecycle tracks the service-wide mode (active, read-only,
// retired) and gates whether an operation may proceed. The state lives
// as two reserved attributes on the same singleton item that holds the
// booking rules.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/guoyu07/Sqawsh-sub001/retry"
	"github.com/guoyu07/Sqawsh-sub001/store"
)

// SingletonItem is the store item carrying all booking rules and the
// lifecycle attributes.
const SingletonItem = "bookingrules"

// Reserved attribute names on the singleton item. Everything with the
// reserved prefix is invisible to the rule manager.
const (
	reservedPrefix = "lifecycle:"
	stateAttr      = reservedPrefix + "state"
	urlAttr        = reservedPrefix + "forwarding-url"
)

// IsReserved reports whether an attribute name on the singleton item
// belongs to the lifecycle state rather than to a booking rule.
func IsReserved(name string) bool { return strings.HasPrefix(name, reservedPrefix) }

// State is the service lifecycle mode.
type State string

const (
	// Active permits every operation.
	Active State = "ACTIVE"
	// ReadOnly permits reads from end users and everything from
	// service-internal callers, so rule application and backup keep
	// running while user mutations are paused.
	ReadOnly State = "READONLY"
	// Retired rejects every end-user operation, pointing at the
	// forwarding URL of the replacement service.
	Retired State = "RETIRED"
)

func parseState(s string) (State, error) {
	switch State(s) {
	case Active, ReadOnly, Retired:
		return State(s), nil
	}
	return "", fmt.Errorf("unknown lifecycle state %q", s)
}

// ReadOnlyError rejects an end-user mutation while the service is
// paused.
type ReadOnlyError struct{}

func (ReadOnlyError) Error() string { return "service is in read-only mode" }

// RetiredError rejects every end-user operation once the service has
// moved; callers redirect to the forwarding URL.
type RetiredError struct {
	ForwardingURL string
}

func (e RetiredError) Error() string {
	return fmt.Sprintf("service is retired, now at %s", e.ForwardingURL)
}

// ErrInvalidForwardingURL rejects a transition to Retired without an
// absolute http(s) forwarding URL.
var ErrInvalidForwardingURL = fmt.Errorf("lifecycle: forwarding url must be an absolute http(s) url")

type Manager struct {
	store    store.Store
	log      *slog.Logger
	attempts int
}

// NewManager wires the lifecycle manager. attempts bounds the CAS retry
// of state transitions.
func NewManager(s store.Store, log *slog.Logger, attempts int) *Manager {
	return &Manager{store: s, log: log, attempts: attempts}
}

// Current returns the lifecycle state and, when retired, the forwarding
// URL. A service whose state was never set is active.
func (m *Manager) Current(ctx context.Context) (State, string, error) {
	_, attrs, err := m.store.Get(ctx, SingletonItem)
	if err != nil {
		return "", "", fmt.Errorf("read lifecycle state: %w", err)
	}
	raw, ok := store.Find(attrs, stateAttr)
	if !ok {
		return Active, "", nil
	}
	state, err := parseState(raw.Value)
	if err != nil {
		return "", "", fmt.Errorf("read lifecycle state: %w", err)
	}
	if state != Retired {
		return state, "", nil
	}
	fwd, _ := store.Find(attrs, urlAttr)
	return state, fwd.Value, nil
}

// Check gates one operation against the current state. readOnly marks
// operations that do not mutate anything; userCall distinguishes
// end-user traffic from service-internal calls (rule application,
// backup/restore), which always pass so a paused service can be
// un-paused later.
func (m *Manager) Check(ctx context.Context, readOnly, userCall bool) error {
	if !userCall {
		return nil
	}
	state, fwd, err := m.Current(ctx)
	if err != nil {
		return err
	}
	switch state {
	case ReadOnly:
		if !readOnly {
			return ReadOnlyError{}
		}
	case Retired:
		return RetiredError{ForwardingURL: fwd}
	}
	return nil
}

// Set transitions the service into state. Entering Retired requires an
// absolute http(s) forwardingURL; in the other states the URL argument
// is ignored and any stored URL is cleared.
func (m *Manager) Set(ctx context.Context, state State, forwardingURL string) error {
	if _, err := parseState(string(state)); err != nil {
		return err
	}
	if state == Retired && !validForwardingURL(forwardingURL) {
		return ErrInvalidForwardingURL
	}

	if state == Retired {
		if err := m.putAttr(ctx, store.Attribute{Name: urlAttr, Value: forwardingURL}); err != nil {
			return err
		}
	} else if err := m.store.Delete(ctx, SingletonItem, store.Attribute{Name: urlAttr}); err != nil {
		return err
	}
	if err := m.putAttr(ctx, store.Attribute{Name: stateAttr, Value: string(state)}); err != nil {
		return err
	}
	m.log.Info("lifecycle state changed", "state", state, "forwardingURL", forwardingURL)
	return nil
}

func (m *Manager) putAttr(ctx context.Context, attr store.Attribute) error {
	return retry.Do(ctx, m.attempts, store.IsConflict, func() error {
		version, _, err := m.store.Get(ctx, SingletonItem)
		if err != nil {
			return err
		}
		_, err = m.store.Put(ctx, SingletonItem, version, attr)
		return err
	})
}

func validForwardingURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
