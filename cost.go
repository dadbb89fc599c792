package intention

import (
	"fmt"
	"sync"
	"time"
)

// Ledger accumulates spend for one budget scope. A zero limit means the scope
// is unbudgeted. All mutation happens under the ledger's own mutex, so
// concurrent commits on different scopes never contend.
type Ledger struct {
	mu          sync.Mutex
	scope       string
	spent       float64
	limit       float64
	period      time.Duration
	periodStart time.Time
	overBudget  bool
}

// rolloverLocked resets the ledger when now has passed the period boundary.
// The tracker does not schedule resets; the first access past the boundary
// performs the roll.
func (l *Ledger) rolloverLocked(now time.Time) {
	if l.period <= 0 || l.periodStart.IsZero() {
		return
	}
	elapsed := now.Sub(l.periodStart)
	if elapsed < l.period {
		return
	}
	// Jump all elapsed whole periods at once, keeping period boundaries
	// aligned to the original start.
	periods := elapsed / l.period
	l.periodStart = l.periodStart.Add(periods * l.period)
	l.spent = 0
	l.overBudget = false
}

// CostTracker enforces spend caps per caller-defined budget scope. Pre-checks
// are advisory; commits are authoritative and atomic relative to concurrent
// commits on the same scope.
type CostTracker struct {
	mu      sync.Mutex
	ledgers map[string]*Ledger

	defaultLimit  float64
	defaultPeriod time.Duration

	now func() time.Time
}

// NewCostTracker creates a tracker whose unknown scopes start with the given
// default budget. defaultLimit 0 means unbudgeted.
func NewCostTracker(defaultLimit float64, defaultPeriod time.Duration) *CostTracker {
	return &CostTracker{
		ledgers:       make(map[string]*Ledger),
		defaultLimit:  defaultLimit,
		defaultPeriod: defaultPeriod,
		now:           time.Now,
	}
}

// SetDefaults changes the budget unknown scopes start with. Ledgers already
// created keep their configured budgets.
func (t *CostTracker) SetDefaults(limit float64, period time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defaultLimit = limit
	t.defaultPeriod = period
}

// SetBudget installs or replaces the budget for a scope. Spend already
// recorded in the current period is preserved.
func (t *CostTracker) SetBudget(scope string, limit float64, period time.Duration) {
	l := t.ledger(scope)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = limit
	l.period = period
	if l.periodStart.IsZero() {
		l.periodStart = t.now()
	}
	l.overBudget = l.limit > 0 && l.spent > l.limit
}

func (t *CostTracker) ledger(scope string) *Ledger {
	t.mu.Lock()
	defer t.mu.Unlock()
	if l, ok := t.ledgers[scope]; ok {
		return l
	}
	l := &Ledger{
		scope:       scope,
		limit:       t.defaultLimit,
		period:      t.defaultPeriod,
		periodStart: t.now(),
	}
	t.ledgers[scope] = l
	return l
}

// PreCheck reports whether an estimated spend fits the scope's remaining
// budget. Advisory only: admission here does not reserve anything.
func (t *CostTracker) PreCheck(scope string, estimatedCost float64) error {
	l := t.ledger(scope)
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rolloverLocked(t.now())

	if l.limit <= 0 {
		return nil
	}
	if l.overBudget {
		return &Error{
			Type:    ErrorTypeBudgetExceeded,
			Scope:   scope,
			Message: fmt.Sprintf("scope over budget: spent %.2f of %.2f", l.spent, l.limit),
		}
	}
	if l.spent+estimatedCost > l.limit {
		return &Error{
			Type:    ErrorTypeBudgetExceeded,
			Scope:   scope,
			Message: fmt.Sprintf("estimated cost %.2f exceeds remaining budget %.2f", estimatedCost, l.limit-l.spent),
		}
	}
	return nil
}

// Commit records actual spend against the scope. The spend is always recorded
// even when it crosses the limit: the call already happened and must be
// accounted for. The return value reports whether the scope is now over
// budget, which refuses further dispatch until the period rolls.
func (t *CostTracker) Commit(scope string, actualCost float64) bool {
	l := t.ledger(scope)
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rolloverLocked(t.now())
	l.spent += actualCost
	if l.limit > 0 && l.spent > l.limit {
		l.overBudget = true
	}
	return l.overBudget
}

// Spent reports the scope's spend in the current period.
func (t *CostTracker) Spent(scope string) float64 {
	l := t.ledger(scope)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked(t.now())
	return l.spent
}

// Snapshot returns the scope's current spend, limit and over-budget flag.
func (t *CostTracker) Snapshot(scope string) (spent, limit float64, overBudget bool) {
	l := t.ledger(scope)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked(t.now())
	return l.spent, l.limit, l.overBudget
}
