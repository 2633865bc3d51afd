// Package slot implements the rolling-window allocation policy: window
// arithmetic, usage math and the admission decision. It is pure logic with no
// storage or transport dependencies so the rules can be tested in isolation.
package slot

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultLimit is the maximum number of capacity units a single resource
	// may consume within one window.
	DefaultLimit = 4

	// DefaultWindowDays is the length of the rolling window in calendar days.
	DefaultWindowDays = 15

	// DefaultTimezone anchors day boundaries. Allocations are day-granular and
	// may be backdated, so the window must be computed against calendar days
	// in a fixed zone rather than "now minus N*24h".
	DefaultTimezone = "Asia/Shanghai"
)

// Policy holds the tunable parameters of the admission rule. The zero value is
// not usable; construct one with DefaultPolicy or NewPolicy.
type Policy struct {
	Limit      int
	WindowDays int
	Location   *time.Location
}

// DefaultPolicy returns the stock policy: 4 units per 15 days, day boundaries
// in DefaultTimezone.
func DefaultPolicy() Policy {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		// DefaultTimezone is a constant known to the tzdata shipped with Go.
		panic(fmt.Sprintf("load default timezone: %v", err))
	}
	return Policy{Limit: DefaultLimit, WindowDays: DefaultWindowDays, Location: loc}
}

// NewPolicy builds a policy with the given overrides. Zero or negative limit
// and windowDays fall back to the defaults, an empty timezone falls back to
// DefaultTimezone.
func NewPolicy(limit, windowDays int, timezone string) (Policy, error) {
	p := DefaultPolicy()
	if limit > 0 {
		p.Limit = limit
	}
	if windowDays > 0 {
		p.WindowDays = windowDays
	}
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return Policy{}, fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}
		p.Location = loc
	}
	return p, nil
}

// startOfDay truncates t to midnight of its calendar day in the policy zone.
func (p Policy) startOfDay(t time.Time) time.Time {
	local := t.In(p.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.Location)
}

// CutoffDate returns the inclusive lower bound of the window as of ref: the
// start of ref's calendar day minus WindowDays full days.
func (p Policy) CutoffDate(ref time.Time) time.Time {
	return p.startOfDay(ref).AddDate(0, 0, -p.WindowDays)
}

// UpperBound returns the exclusive upper bound of the window as of ref: the
// start of the calendar day after ref. Anything dated "today" counts no matter
// the time of day; anything dated tomorrow or later does not.
func (p Policy) UpperBound(ref time.Time) time.Time {
	return p.startOfDay(ref).AddDate(0, 0, 1)
}

// InWindow reports whether an allocation dated at falls inside the half-open
// window [CutoffDate(ref), UpperBound(ref)).
func (p Policy) InWindow(at, ref time.Time) bool {
	return !at.Before(p.CutoffDate(ref)) && at.Before(p.UpperBound(ref))
}

// AtCapacity reports whether a resource at the given usage can accept nothing
// more.
func (p Policy) AtCapacity(usage int) bool {
	return usage >= p.Limit
}

// Remaining returns how many units are still available at the given usage,
// never negative.
func (p Policy) Remaining(usage int) int {
	if usage >= p.Limit {
		return 0
	}
	return p.Limit - usage
}

// UsagePercent returns usage as a percentage of the limit, capped at 100.
func (p Policy) UsagePercent(usage int) float64 {
	pct := float64(usage) / float64(p.Limit) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// TotalUsage sums allocation counts, defaulting a missing count to 1. Rows
// written before the count column existed have a NULL count and consume a
// single unit.
func TotalUsage(counts []*int) int {
	total := 0
	for _, c := range counts {
		if c == nil {
			total++
			continue
		}
		total += *c
	}
	return total
}

// LimitError is the capacity-exceeded rejection. It is an expected outcome,
// not a fault; the message carries the numbers the UI shows the user.
type LimitError struct {
	Resource string // "Phone" or "IP"
	Current  int
	Adding   int
	Limit    int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("Allocation blocked. %s would exceed limit (Current: %d, Adding: %d, Limit: %d)",
		e.Resource, e.Current, e.Adding, e.Limit)
}

// Admit applies the admission rule for one resource: the request is admitted
// iff current + adding stays within the limit. Partial fill up to exactly the
// limit is allowed; only an addition that would overflow is rejected.
func (p Policy) Admit(resource string, current, adding int) error {
	if current+adding > p.Limit {
		return &LimitError{Resource: resource, Current: current, Adding: adding, Limit: p.Limit}
	}
	return nil
}

// Validation errors for allocation requests. Each precondition failure is a
// distinct error so callers can surface precise messages.
var (
	ErrNoResource        = errors.New("either phoneId or ipId is required")
	ErrAmbiguousResource = errors.New("only one of phoneId or ipId may be set")
	ErrInvalidCount      = errors.New("count must be between 1 and the slot limit")
	ErrMissingUsedAt     = errors.New("usedAt is required")
)

// Request is a well-typed allocation request as seen by the admission path.
// Boundary normalization (empty strings, string dates) happens before a
// Request is built; this struct never carries half-parsed values.
type Request struct {
	PhoneID string
	IPID    string
	Count   int
	UsedAt  time.Time
}

// Validate checks request shape against the policy: exactly one resource
// reference, a count within [1, Limit], and a usable timestamp.
func (r Request) Validate(p Policy) error {
	if r.PhoneID == "" && r.IPID == "" {
		return ErrNoResource
	}
	if r.PhoneID != "" && r.IPID != "" {
		return ErrAmbiguousResource
	}
	if r.Count < 1 || r.Count > p.Limit {
		return fmt.Errorf("%w: got %d", ErrInvalidCount, r.Count)
	}
	if r.UsedAt.IsZero() {
		return ErrMissingUsedAt
	}
	return nil
}
