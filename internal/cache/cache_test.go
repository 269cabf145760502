package cache

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const tenantID = "tenant-001"

// fakeClock is a settable time source for expiry tests.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClockedLRU(capacity int) (*LRUCache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)}
	c := NewLRUCache(capacity)
	c.now = clock.now
	return c, clock
}

func testDecision(id string) *domain.Decision {
	return &domain.Decision{
		ID:       id,
		TenantID: tenantID,
		Score:    74.75,
		Result: domain.VerdictResult{
			Verdict:    domain.VerdictProceed,
			Conviction: domain.ConvictionHigh,
			Confidence: 75,
			Reasoning:  []string{"Final score: 74.8/100"},
		},
	}
}

func TestLRUCache(t *testing.T) {
	ctx := context.Background()

	t.Run("SetGetDelete", func(t *testing.T) {
		c := NewLRUCache(10)

		if err := c.Set(ctx, tenantID, "k", []byte("v"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		val, err := c.Get(ctx, tenantID, "k")
		if err != nil || string(val) != "v" {
			t.Fatalf("expected v, got %q (%v)", val, err)
		}

		if err := c.Delete(ctx, tenantID, "k"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := c.Get(ctx, tenantID, "k"); val != nil {
			t.Errorf("expected miss after delete, got %q", val)
		}
		if err := c.Delete(ctx, tenantID, "never-set"); err != nil {
			t.Errorf("expected deleting a missing key to succeed, got %v", err)
		}
	})

	t.Run("Expiry", func(t *testing.T) {
		c, clock := newClockedLRU(10)
		_ = c.Set(ctx, tenantID, "memo", []byte("x"), time.Minute)

		clock.advance(59 * time.Second)
		if val, _ := c.Get(ctx, tenantID, "memo"); val == nil {
			t.Error("expected value before expiry")
		}

		clock.advance(time.Second)
		if val, _ := c.Get(ctx, tenantID, "memo"); val != nil {
			t.Error("expected miss at expiry")
		}
	})

	t.Run("OverwriteRefreshesExpiry", func(t *testing.T) {
		c, clock := newClockedLRU(10)
		_ = c.Set(ctx, tenantID, "k", []byte("old"), time.Minute)
		clock.advance(50 * time.Second)
		_ = c.Set(ctx, tenantID, "k", []byte("new"), time.Minute)
		clock.advance(50 * time.Second)

		val, _ := c.Get(ctx, tenantID, "k")
		if string(val) != "new" {
			t.Errorf("expected refreshed value, got %q", val)
		}
	})

	t.Run("EvictsLeastRecentlyUsed", func(t *testing.T) {
		c := NewLRUCache(3)
		for _, k := range []string{"a", "b", "c"} {
			_ = c.Set(ctx, tenantID, k, []byte(k), time.Minute)
		}
		_, _ = c.Get(ctx, tenantID, "a")
		_ = c.Set(ctx, tenantID, "d", []byte("d"), time.Minute)

		if val, _ := c.Get(ctx, tenantID, "b"); val != nil {
			t.Error("expected b to be evicted")
		}
		for _, k := range []string{"a", "c", "d"} {
			if val, _ := c.Get(ctx, tenantID, k); val == nil {
				t.Errorf("expected %s to remain", k)
			}
		}
		if got := c.Stats().Evictions; got != 1 {
			t.Errorf("expected 1 eviction, got %d", got)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		c := NewLRUCache(10)
		_ = c.Set(ctx, "tenant-a", domain.CacheKeyLatest, []byte("a"), time.Minute)
		_ = c.Set(ctx, "tenant-b", domain.CacheKeyLatest, []byte("b"), time.Minute)

		a, _ := c.Get(ctx, "tenant-a", domain.CacheKeyLatest)
		b, _ := c.Get(ctx, "tenant-b", domain.CacheKeyLatest)
		if string(a) != "a" || string(b) != "b" {
			t.Errorf("expected isolated values, got %q and %q", a, b)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		c := NewLRUCache(10)
		if err := c.Set(ctx, "", "k", []byte("v"), time.Minute); !errors.Is(err, ErrTenantRequired) {
			t.Errorf("expected ErrTenantRequired from Set, got %v", err)
		}
		if _, err := c.Get(ctx, "", "k"); !errors.Is(err, ErrTenantRequired) {
			t.Errorf("expected ErrTenantRequired from Get, got %v", err)
		}
		if err := c.Delete(ctx, "", "k"); !errors.Is(err, ErrTenantRequired) {
			t.Errorf("expected ErrTenantRequired from Delete, got %v", err)
		}
	})

	t.Run("StatsAndPurge", func(t *testing.T) {
		c, clock := newClockedLRU(50)
		_ = c.Set(ctx, tenantID, "short", []byte("1"), time.Second)
		_ = c.Set(ctx, tenantID, "long", []byte("2"), time.Hour)
		_, _ = c.Get(ctx, tenantID, "long")
		_, _ = c.Get(ctx, tenantID, "missing")

		s := c.Stats()
		if s.Size != 2 || s.Capacity != 50 || s.Hits != 1 || s.Misses != 1 {
			t.Errorf("unexpected stats %+v", s)
		}

		clock.advance(time.Minute)
		if removed := c.Purge(); removed != 1 {
			t.Errorf("expected 1 purged entry, got %d", removed)
		}
		if s := c.Stats(); s.Size != 1 {
			t.Errorf("expected size 1 after purge, got %d", s.Size)
		}
	})

	t.Run("CloseEmpties", func(t *testing.T) {
		c := NewLRUCache(10)
		_ = c.Set(ctx, tenantID, "k", []byte("v"), time.Minute)
		if err := c.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if val, _ := c.Get(ctx, tenantID, "k"); val != nil {
			t.Error("expected cache to be empty after close")
		}
	})
}

func TestDecisionRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(10)
	d := testDecision("dec-001")

	if err := c.SetDecision(ctx, tenantID, domain.CacheKeyDecision+d.ID, d, time.Minute); err != nil {
		t.Fatalf("SetDecision failed: %v", err)
	}

	got, err := c.GetDecision(ctx, tenantID, domain.CacheKeyDecision+d.ID)
	if err != nil || got == nil {
		t.Fatalf("expected cached decision, got %v (%v)", got, err)
	}
	if got.Result.Verdict != domain.VerdictProceed || got.Score != d.Score {
		t.Errorf("unexpected decision %+v", got)
	}

	missing, err := c.GetDecision(ctx, tenantID, domain.CacheKeyDecision+"nope")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for miss, got %v, %v", missing, err)
	}

	_ = c.Set(ctx, tenantID, domain.CacheKeyDecision+"bad", []byte("{not json"), time.Minute)
	if _, err := c.GetDecision(ctx, tenantID, domain.CacheKeyDecision+"bad"); err == nil {
		t.Error("expected decode error")
	}
}

func TestTwoPhaseCache(t *testing.T) {
	ctx := context.Background()

	t.Run("ReadThroughFillsL1", func(t *testing.T) {
		l1, l2 := NewLRUCache(10), NewLRUCache(10)
		c := newTwoPhase(l1, l2, time.Minute)

		_ = l2.Set(ctx, tenantID, "k", []byte("remote"), time.Hour)

		val, err := c.Get(ctx, tenantID, "k")
		if err != nil || string(val) != "remote" {
			t.Fatalf("expected remote, got %q (%v)", val, err)
		}
		if local, _ := l1.Get(ctx, tenantID, "k"); string(local) != "remote" {
			t.Errorf("expected L1 to be filled, got %q", local)
		}
	})

	t.Run("L1NeverOutlivesCallerTTL", func(t *testing.T) {
		l1, clock := newClockedLRU(10)
		l2 := NewLRUCache(10)
		c := newTwoPhase(l1, l2, time.Hour)

		_ = c.Set(ctx, tenantID, "k", []byte("v"), time.Second)
		clock.advance(2 * time.Second)

		if val, _ := l1.Get(ctx, tenantID, "k"); val != nil {
			t.Error("expected L1 entry to expire with the caller's TTL")
		}
	})

	t.Run("DeleteBothTiers", func(t *testing.T) {
		l1, l2 := NewLRUCache(10), NewLRUCache(10)
		c := newTwoPhase(l1, l2, time.Minute)

		_ = c.SetDecision(ctx, tenantID, "decision:x", testDecision("x"), time.Minute)
		if err := c.Delete(ctx, tenantID, "decision:x"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		for name, tier := range map[string]*LRUCache{"L1": l1, "L2": l2} {
			if val, _ := tier.Get(ctx, tenantID, "decision:x"); val != nil {
				t.Errorf("expected %s to be empty", name)
			}
		}
	})

	t.Run("DefaultL1TTL", func(t *testing.T) {
		c := newTwoPhase(NewLRUCache(10), NewLRUCache(10), 0)
		if c.l1TTL != defaultL1TTL {
			t.Errorf("expected default L1 TTL %v, got %v", defaultL1TTL, c.l1TTL)
		}
	})
}

func TestNewCache(t *testing.T) {
	c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	lru, ok := c.(*LRUCache)
	if !ok {
		t.Fatalf("expected LRUCache for memory type, got %T", c)
	}
	if lru.Stats().Capacity != 100 {
		t.Errorf("expected capacity 100, got %d", lru.Stats().Capacity)
	}

	if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestFingerprint(t *testing.T) {
	bundle := &domain.SignalBundle{
		Regime:     domain.RegimeSignal{Type: domain.RegimeRiskOn, Confidence: 80},
		SmartMoney: domain.SmartMoneySignal{Score: 60, ForeignNetFlow: 100},
		Sector:     domain.SectorSignal{Pattern: domain.PatternMixed, FocusSectors: []string{"Energy"}},
	}
	conflicts := []domain.Conflict{{Type: "Regime Divergence", Description: "x", Severity: domain.SeverityLow}}

	a := Fingerprint(bundle, conflicts, 1)
	if a != Fingerprint(bundle, conflicts, 1) {
		t.Error("expected stable fingerprint")
	}
	if !strings.HasPrefix(a, domain.CacheKeyFingerprint) {
		t.Errorf("expected fingerprint prefix, got %s", a)
	}

	changed := *bundle
	changed.SmartMoney.Score = 61
	nan := *bundle
	nan.Regime.Confidence = math.NaN()

	tests := []struct {
		name string
		got  string
	}{
		{"generation", Fingerprint(bundle, conflicts, 2)},
		{"conflicts", Fingerprint(bundle, nil, 1)},
		{"bundle", Fingerprint(&changed, conflicts, 1)},
		{"nan", Fingerprint(&nan, conflicts, 1)},
	}
	for _, tt := range tests {
		if tt.got == a {
			t.Errorf("expected %s change to change fingerprint", tt.name)
		}
	}

	if Fingerprint(&nan, conflicts, 1) != Fingerprint(&nan, conflicts, 1) {
		t.Error("expected NaN input to fingerprint deterministically")
	}
}

func TestRunJanitor(t *testing.T) {
	c, clock := newClockedLRU(10)
	ctx, cancel := context.WithCancel(context.Background())

	_ = c.Set(ctx, tenantID, "stale", []byte("x"), time.Second)
	clock.advance(time.Minute)

	done := make(chan struct{})
	go func() {
		RunJanitor(ctx, c, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(time.Second)
	for c.Stats().Size != 0 {
		select {
		case <-deadline:
			t.Fatal("timeout waiting for janitor to purge")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop after cancel")
	}

	// Caches without local entries return immediately.
	RunJanitor(context.Background(), nil, time.Millisecond)
}
