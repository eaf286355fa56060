/*
tracker.go - The stateful occurrence service

PURPOSE:
  The only stateful component of the rule engine. Record/Count apply the
  lazy reset-then-increment transition; Penalty resolves the current count
  against a policy's tiers into a monetary effect.

CONCURRENCY:
  Read-modify-write on a given key is serialized with a per-key mutex on
  top of the store's atomic upsert. Concurrent payroll runs for the same
  employee must not race on the same tracker.

STATE TRANSITIONS:
  Record:  absent -> count=1; boundary crossed -> reset to 0, then +1
  Count:   read-only variant, but the lazy reset IS persisted so a stale
           count is never reported as current
  Resets:  batch operations for admin/cron use; idempotent in effect,
           though they still refresh the audit timestamp
*/
package occurrence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/rule-engine/engine"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store Store
	eval  *engine.Evaluator
	now   func() time.Time

	mu    sync.Mutex
	locks map[Key]*sync.Mutex
}

// NewService builds an occurrence service. The evaluator is used for
// FORMULA-valued tiers; now is injectable for tests.
func NewService(store Store, eval *engine.Evaluator) *Service {
	return &Service{
		store: store,
		eval:  eval,
		now:   time.Now,
		locks: make(map[Key]*sync.Mutex),
	}
}

// WithClock overrides the time source. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// keyLock returns the mutex serializing writers for one key.
func (s *Service) keyLock(key Key) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// =============================================================================
// RECORD / COUNT
// =============================================================================

// Record registers one occurrence at the given time and returns the new
// count. Creates the tracker lazily; resets first when the period boundary
// has been crossed since the last reset.
func (s *Service) Record(ctx context.Context, key Key, period ResetPeriod, at time.Time) (int, error) {
	if !period.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidResetPeriod, period)
	}
	if at.IsZero() {
		at = s.now()
	}

	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	tracker, err := s.store.Get(ctx, key)
	switch {
	case err == ErrTrackerNotFound:
		tracker = Tracker{Key: key, ResetPeriod: period, LastResetAt: at}
	case err != nil:
		return 0, err
	default:
		// The policy is the source of truth for the cadence.
		tracker.ResetPeriod = period
		if boundaryCrossed(period, tracker.LastResetAt, at) {
			tracker.Count = 0
			tracker.LastResetAt = at
		}
	}

	tracker.Count++
	tracker.LastOccurredAt = at

	if err := s.store.Put(ctx, tracker); err != nil {
		return 0, err
	}
	return tracker.Count, nil
}

// Count returns the current count, applying the lazy reset-on-read rule.
// The reset is persisted: correctness of the reported count depends on it.
func (s *Service) Count(ctx context.Context, key Key) (int, error) {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	tracker, err := s.store.Get(ctx, key)
	if err == ErrTrackerNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	if boundaryCrossed(tracker.ResetPeriod, tracker.LastResetAt, s.now()) {
		tracker.Count = 0
		tracker.LastResetAt = s.now()
		if err := s.store.Put(ctx, tracker); err != nil {
			return 0, err
		}
	}
	return tracker.Count, nil
}

// =============================================================================
// PENALTY RESOLUTION
// =============================================================================

// Penalty resolves the current count against the tiers and computes the
// monetary effect. No applicable tier yields an explicit zero effect.
// extra is bound into FORMULA evaluation under EXTRA.
func (s *Service) Penalty(ctx context.Context, key Key, tiers []Tier, baseSalary decimal.Decimal, extra float64) (Effect, error) {
	count, err := s.Count(ctx, key)
	if err != nil {
		return Effect{}, err
	}
	return s.ResolveTier(count, tiers, baseSalary, extra)
}

// ResolveTier is the pure tier-selection + amount computation for a known
// count. Selection takes the tier with the highest MinOccurrences that the
// count satisfies and whose MaxOccurrences (if set) is not exceeded.
func (s *Service) ResolveTier(count int, tiers []Tier, baseSalary decimal.Decimal, extra float64) (Effect, error) {
	ordered := make([]Tier, len(tiers))
	copy(ordered, tiers)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].MinOccurrences > ordered[j].MinOccurrences
	})

	for i := range ordered {
		tier := ordered[i]
		if !tier.Matches(count) {
			continue
		}
		if tier.Action == ActionNone {
			return Effect{Applied: true, Action: ActionNone, Amount: decimal.Zero, Count: count, Tier: &tier,
				Reason: fmt.Sprintf("tier %d applies with no monetary action", tier.MinOccurrences)}, nil
		}
		amount, err := s.tierAmount(tier, count, baseSalary, extra)
		if err != nil {
			return Effect{}, err
		}
		return Effect{Applied: true, Action: tier.Action, Amount: amount, Count: count, Tier: &tier,
			Reason: fmt.Sprintf("tier %d matched count %d", tier.MinOccurrences, count)}, nil
	}

	return ZeroEffect(count, fmt.Sprintf("no penalty for count %d", count)), nil
}

func (s *Service) tierAmount(tier Tier, count int, baseSalary decimal.Decimal, extra float64) (decimal.Decimal, error) {
	switch tier.ValueType {
	case ValueFixed:
		amount := tier.Value
		if tier.PerOccurrence {
			multiplier := count - tier.MinOccurrences + 1
			amount = amount.Mul(decimal.NewFromInt(int64(multiplier)))
		}
		return amount.Round(2), nil

	case ValuePercentage:
		return baseSalary.Mul(tier.Value).Div(decimal.NewFromInt(100)).Round(2), nil

	case ValueFormula:
		base, _ := baseSalary.Float64()
		value, _ := tier.Value.Float64()
		ctx := engine.NewContext(map[string]any{
			"COUNT":       count,
			"BASE_SALARY": base,
			"VALUE":       value,
			"EXTRA":       extra,
		})
		result, diag := s.eval.Evaluate(tier.Formula, ctx)
		if diag != nil && diag.Fatal {
			return decimal.Zero, fmt.Errorf("tier formula: %w", diag)
		}
		return decimal.NewFromFloat(result).Round(2), nil

	default:
		return decimal.Zero, fmt.Errorf("unknown value type %q", tier.ValueType)
	}
}

// =============================================================================
// BATCH RESETS (admin / cron)
// =============================================================================

// ResetAllForPolicy zeroes every tracker under a policy. Resetting an
// already-zero tracker is a no-op in effect but still refreshes the audit
// timestamp.
func (s *Service) ResetAllForPolicy(ctx context.Context, policyID PolicyID) (int, error) {
	trackers, err := s.store.ListByPolicy(ctx, policyID)
	if err != nil {
		return 0, err
	}

	reset := 0
	for _, tracker := range trackers {
		lock := s.keyLock(tracker.Key)
		lock.Lock()
		current, err := s.store.Get(ctx, tracker.Key)
		if err == nil {
			current.Count = 0
			current.LastResetAt = s.now()
			err = s.store.Put(ctx, current)
		}
		lock.Unlock()
		if err != nil && err != ErrTrackerNotFound {
			return reset, err
		}
		reset++
	}
	return reset, nil
}

// ProcessAutoResets sweeps every tracker and applies any pending period
// reset. Scheduled/cron entry point; idempotent.
func (s *Service) ProcessAutoResets(ctx context.Context) (int, error) {
	trackers, err := s.store.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	reset := 0
	now := s.now()
	for _, tracker := range trackers {
		if !boundaryCrossed(tracker.ResetPeriod, tracker.LastResetAt, now) {
			continue
		}
		lock := s.keyLock(tracker.Key)
		lock.Lock()
		current, err := s.store.Get(ctx, tracker.Key)
		if err == nil && boundaryCrossed(current.ResetPeriod, current.LastResetAt, now) {
			current.Count = 0
			current.LastResetAt = now
			err = s.store.Put(ctx, current)
			if err == nil {
				reset++
			}
		}
		lock.Unlock()
		if err != nil && err != ErrTrackerNotFound {
			return reset, err
		}
	}
	return reset, nil
}

// Remove deletes a tracker row. Explicit administrative action; trackers
// are never deleted as part of normal evaluation.
func (s *Service) Remove(ctx context.Context, key Key) error {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()
	return s.store.Delete(ctx, key)
}
