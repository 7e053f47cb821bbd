package queue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Manager basics
// ---------------------------------------------------------------------------

func TestNewManager_Empty(t *testing.T) {
	m := NewManager()
	if !m.Acquire("download") {
		t.Fatal("expected Acquire to succeed for an unconfigured name")
	}
	m.Release("download")
}

func TestManager_MaxConcurrency(t *testing.T) {
	m := NewManager(Config{Name: "muse", MaxConcurrency: 2})

	if !m.Acquire("muse") || !m.Acquire("muse") {
		t.Fatal("first two Acquires should succeed")
	}
	if m.Acquire("muse") {
		t.Fatal("third Acquire should fail (max concurrency 2)")
	}

	m.Release("muse")
	if !m.Acquire("muse") {
		t.Fatal("Acquire should succeed after Release")
	}
	if got := m.ActiveCount("muse"); got != 2 {
		t.Fatalf("expected 2 active, got %d", got)
	}
}

// ---------------------------------------------------------------------------
// Prefix patterns
// ---------------------------------------------------------------------------

func TestManager_PrefixPatternSharesSlots(t *testing.T) {
	m := NewManager(Config{Name: "download*", MaxConcurrency: 2})

	if !m.Acquire("download-ref") || !m.Acquire("download-sample") {
		t.Fatal("two downloads should be admitted")
	}
	if m.Acquire("download-ref") {
		t.Fatal("third download should share the pattern's cap")
	}
	if !m.Acquire("adtex") {
		t.Fatal("non-matching name should be unlimited")
	}
	if got := m.ActiveCount("download-anything"); got != 2 {
		t.Fatalf("expected 2 active under pattern, got %d", got)
	}
}

func TestManager_ExactBeatsPrefix(t *testing.T) {
	m := NewManager(
		Config{Name: "download*", MaxConcurrency: 1},
		Config{Name: "download-ref", MaxConcurrency: 3},
	)
	for i := range 3 {
		if !m.Acquire("download-ref") {
			t.Fatalf("exact Acquire %d should succeed", i)
		}
	}
	if !m.Acquire("download-sample") {
		t.Fatal("prefix slot is independent of the exact limit")
	}
	if m.Acquire("download-sample") {
		t.Fatal("prefix limit 1 reached")
	}
}

func TestManager_LongestPrefixWins(t *testing.T) {
	m := NewManager(
		Config{Name: "d*", MaxConcurrency: 5},
		Config{Name: "download*", MaxConcurrency: 1},
	)
	m.Acquire("download-x")
	if m.Acquire("download-y") {
		t.Fatal("longest pattern should govern")
	}
	if !m.Acquire("dbsnp") {
		t.Fatal("shorter pattern should govern other names")
	}
}

// ---------------------------------------------------------------------------
// Rate limiting
// ---------------------------------------------------------------------------

func TestManager_RateLimit_Throttles(t *testing.T) {
	m := NewManager(Config{Name: "upload", RateLimit: 1.0, RateBurst: 1})

	if !m.Acquire("upload") {
		t.Fatal("first Acquire should succeed (within burst)")
	}
	m.Release("upload")

	if m.Acquire("upload") {
		t.Fatal("second Acquire should fail (rate limited)")
	}

	time.Sleep(1100 * time.Millisecond)
	if !m.Acquire("upload") {
		t.Fatal("Acquire should succeed after token refill")
	}
	m.Release("upload")
}

func TestManager_RateLimit_BurstAllows(t *testing.T) {
	m := NewManager(Config{Name: "bursty", RateLimit: 10.0, RateBurst: 3})
	for i := range 3 {
		if !m.Acquire("bursty") {
			t.Fatalf("Acquire %d should succeed (within burst)", i)
		}
		m.Release("bursty")
	}
}

func TestManager_ConcurrencyRejectionKeepsToken(t *testing.T) {
	m := NewManager(Config{Name: "q", MaxConcurrency: 1, RateLimit: 0.001, RateBurst: 2})

	if !m.Acquire("q") {
		t.Fatal("first Acquire should succeed")
	}
	// Rejected by concurrency; must not burn the second token.
	for range 5 {
		if m.Acquire("q") {
			t.Fatal("should be blocked by concurrency")
		}
	}
	m.Release("q")
	if !m.Acquire("q") {
		t.Fatal("second token should still be available")
	}
}

// ---------------------------------------------------------------------------
// Dynamic reconfiguration
// ---------------------------------------------------------------------------

func TestManager_SetConfig(t *testing.T) {
	m := NewManager(Config{Name: "dyn", MaxConcurrency: 1})

	m.Acquire("dyn")
	if m.Acquire("dyn") {
		t.Fatal("should be blocked at concurrency 1")
	}

	m.SetConfig(Config{Name: "dyn", MaxConcurrency: 3})
	if !m.Acquire("dyn") {
		t.Fatal("should succeed after raising concurrency")
	}
	if got := m.ActiveCount("dyn"); got != 2 {
		t.Fatalf("active count not preserved across reconfigure: %d", got)
	}
}

func TestManager_Configs(t *testing.T) {
	m := NewManager(Config{Name: "z"}, Config{Name: "a*"}, Config{Name: "m"})
	got := m.Configs()
	if len(got) != 3 || got[0].Name != "a*" || got[1].Name != "m" || got[2].Name != "z" {
		t.Fatalf("Configs() = %+v", got)
	}
}

// ---------------------------------------------------------------------------
// Concurrency safety
// ---------------------------------------------------------------------------

func TestManager_ConcurrentAccess(t *testing.T) {
	m := NewManager(Config{Name: "concurrent", MaxConcurrency: 50})

	var acquired atomic.Int64
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Acquire("concurrent") {
				acquired.Add(1)
				time.Sleep(time.Millisecond)
				m.Release("concurrent")
			}
		}()
	}
	wg.Wait()

	if acquired.Load() == 0 {
		t.Fatal("expected some Acquires to succeed")
	}
	if m.ActiveCount("concurrent") != 0 {
		t.Fatalf("expected 0 active after all goroutines, got %d", m.ActiveCount("concurrent"))
	}
}

func TestManager_ReleaseUnderflow(t *testing.T) {
	m := NewManager(Config{Name: "q", MaxConcurrency: 5})
	m.Release("q")
	if m.ActiveCount("q") != 0 {
		t.Fatal("active count should not go below 0")
	}
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

func TestParseConfig(t *testing.T) {
	tests := []struct {
		in   string
		want Config
		bad  bool
	}{
		{in: "download*=4", want: Config{Name: "download*", MaxConcurrency: 4}},
		{in: "upload=0:2", want: Config{Name: "upload", RateLimit: 2}},
		{in: "muse=1:0.5:3", want: Config{Name: "muse", MaxConcurrency: 1, RateLimit: 0.5, RateBurst: 3}},
		{in: "novalue", bad: true},
		{in: "=3", bad: true},
		{in: "x=a", bad: true},
		{in: "x=1:2:3:4", bad: true},
		{in: "x=-1", bad: true},
	}
	for _, tt := range tests {
		got, err := ParseConfig(tt.in)
		if tt.bad {
			if err == nil {
				t.Errorf("ParseConfig(%q) should fail", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseConfig(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseConfig(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}
