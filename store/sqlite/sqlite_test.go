package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/rule-engine/occurrence"
	"github.com/warp/rule-engine/policy"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestTrackerRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	key := occurrence.Key{PolicyID: "late-penalty", EmployeeID: "emp-1", Type: "LATE_ARRIVAL"}
	tracker := occurrence.Tracker{
		Key:            key,
		Count:          3,
		ResetPeriod:    occurrence.ResetMonthly,
		LastResetAt:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		LastOccurredAt: time.Date(2026, 3, 17, 9, 30, 0, 0, time.UTC),
	}
	if err := store.Put(ctx, tracker); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Count != 3 {
		t.Errorf("count = %d, want 3", got.Count)
	}
	if got.ResetPeriod != occurrence.ResetMonthly {
		t.Errorf("reset period = %s, want MONTHLY", got.ResetPeriod)
	}
	if !got.LastResetAt.Equal(tracker.LastResetAt) {
		t.Errorf("LastResetAt = %s, want %s", got.LastResetAt, tracker.LastResetAt)
	}
	if !got.LastOccurredAt.Equal(tracker.LastOccurredAt) {
		t.Errorf("LastOccurredAt = %s, want %s", got.LastOccurredAt, tracker.LastOccurredAt)
	}
}

func TestTrackerUpsertReplaces(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	key := occurrence.Key{PolicyID: "p", EmployeeID: "e", Type: "T"}

	for count := 1; count <= 3; count++ {
		if err := store.Put(ctx, occurrence.Tracker{
			Key: key, Count: count, ResetPeriod: occurrence.ResetNever,
		}); err != nil {
			t.Fatalf("Put %d: %v", count, err)
		}
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if got.Count != 3 {
		t.Errorf("count = %d, want 3 (upsert must replace)", got.Count)
	}
}

func TestTrackerNotFound(t *testing.T) {
	store := newStore(t)
	_, err := store.Get(context.Background(), occurrence.Key{PolicyID: "x", EmployeeID: "y", Type: "Z"})
	if err != occurrence.ErrTrackerNotFound {
		t.Errorf("err = %v, want ErrTrackerNotFound", err)
	}
}

func TestTrackerZeroTimesSurviveRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	key := occurrence.Key{PolicyID: "p", EmployeeID: "e", Type: "T"}

	if err := store.Put(ctx, occurrence.Tracker{Key: key, ResetPeriod: occurrence.ResetNever}); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if !got.LastResetAt.IsZero() || !got.LastOccurredAt.IsZero() {
		t.Errorf("zero times must round-trip as zero, got %s / %s", got.LastResetAt, got.LastOccurredAt)
	}
}

func TestListByPolicy(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	keys := []occurrence.Key{
		{PolicyID: "a", EmployeeID: "e1", Type: "T"},
		{PolicyID: "a", EmployeeID: "e2", Type: "T"},
		{PolicyID: "b", EmployeeID: "e1", Type: "T"},
	}
	for _, k := range keys {
		if err := store.Put(ctx, occurrence.Tracker{Key: k, Count: 1, ResetPeriod: occurrence.ResetNever}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.ListByPolicy(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("ListByPolicy = %d trackers, want 2", len(got))
	}

	all, err := store.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("ListAll = %d trackers, want 3", len(all))
	}
}

func TestTrackerDelete(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	key := occurrence.Key{PolicyID: "p", EmployeeID: "e", Type: "T"}

	if err := store.Put(ctx, occurrence.Tracker{Key: key, Count: 1, ResetPeriod: occurrence.ResetNever}); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, key); err != occurrence.ErrTrackerNotFound {
		t.Errorf("err = %v, want ErrTrackerNotFound after delete", err)
	}
}

func TestPolicyRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	two := 2
	p := policy.Policy{
		ID: "late-ladder", CompanyID: "acme", Name: "Late Ladder",
		TriggerEvent: "LATE_ARRIVAL", Status: policy.StatusActive,
		ConditionExpr:  "lateDays > 3",
		OccurrenceType: "LATE_ARRIVAL", ResetPeriod: occurrence.ResetMonthly,
		Actions: []policy.Action{
			{Type: occurrence.ActionDeduct, Component: "BASIC", Value: decimal.NewFromInt(25)},
		},
		Tiers: []occurrence.Tier{
			{MinOccurrences: 1, MaxOccurrences: &two, Action: occurrence.ActionNone},
			{MinOccurrences: 3, Action: occurrence.ActionDeduct,
				ValueType: occurrence.ValueFixed, Value: decimal.NewFromInt(25)},
		},
	}
	if err := store.PutPolicy(ctx, p); err != nil {
		t.Fatalf("PutPolicy: %v", err)
	}

	got, err := store.GetPolicy(ctx, "late-ladder")
	if err != nil {
		t.Fatalf("GetPolicy: %v", err)
	}
	if got.Status != policy.StatusActive {
		t.Errorf("status = %s, want ACTIVE", got.Status)
	}
	if got.ConditionExpr != "lateDays > 3" {
		t.Errorf("condition = %q", got.ConditionExpr)
	}
	if got.ResetPeriod != occurrence.ResetMonthly {
		t.Errorf("reset period = %s, want MONTHLY", got.ResetPeriod)
	}
	if len(got.Tiers) != 2 {
		t.Fatalf("tiers = %d, want 2", len(got.Tiers))
	}
	if got.Tiers[0].MaxOccurrences == nil || *got.Tiers[0].MaxOccurrences != 2 {
		t.Errorf("tier 0 max = %v, want 2", got.Tiers[0].MaxOccurrences)
	}
	if !got.Tiers[1].Value.Equal(decimal.NewFromInt(25)) {
		t.Errorf("tier 1 value = %s, want 25", got.Tiers[1].Value)
	}
}

func TestListPoliciesByCompany(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for _, p := range []policy.Policy{
		{ID: "b", CompanyID: "acme", Name: "B", TriggerEvent: "E", Status: policy.StatusDraft},
		{ID: "a", CompanyID: "acme", Name: "A", TriggerEvent: "E", Status: policy.StatusActive},
		{ID: "c", CompanyID: "other", Name: "C", TriggerEvent: "E", Status: policy.StatusActive},
	} {
		if err := store.PutPolicy(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.ListPoliciesByCompany(ctx, "acme")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d policies, want 2", len(got))
	}
	// Ordered by ID.
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("order = %s, %s; want a, b", got[0].ID, got[1].ID)
	}
}

func TestPolicyStoreAdapter(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	var ps policy.Store = store.Policies()

	p := policy.Policy{ID: "x", CompanyID: "acme", Name: "X", TriggerEvent: "E", Status: policy.StatusDraft}
	if err := ps.Put(ctx, p); err != nil {
		t.Fatal(err)
	}
	got, err := ps.Get(ctx, "x")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "X" {
		t.Errorf("name = %q, want X", got.Name)
	}
	if err := ps.Delete(ctx, "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := ps.Get(ctx, "x"); err != policy.ErrPolicyNotFound {
		t.Errorf("err = %v, want ErrPolicyNotFound", err)
	}
}
