package queue

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// Config limits how jobs with a given definition name are admitted.
type Config struct {
	// Name is a job definition name. A trailing "*" matches every name
	// with that prefix; the longest matching pattern wins.
	Name string

	// MaxConcurrency caps how many matching jobs may run at once on the
	// local pool. Zero means no cap beyond the pool's own.
	MaxConcurrency int

	// RateLimit is the sustained number of matching jobs that may start
	// per second. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the token-bucket burst. Defaults to 1 when RateLimit is
	// set.
	RateBurst int
}

type limitState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

func newLimitState(cfg Config) *limitState {
	ls := &limitState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ls.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return ls
}

// Manager enforces per-name limits. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	exact    map[string]*limitState
	prefixes map[string]*limitState
}

// NewManager creates a Manager with the given limits. Names not covered
// by any config are unlimited.
func NewManager(configs ...Config) *Manager {
	m := &Manager{
		exact:    make(map[string]*limitState),
		prefixes: make(map[string]*limitState),
	}
	for _, cfg := range configs {
		m.set(cfg)
	}
	return m
}

// lookup returns the state governing name, or nil. Caller holds m.mu.
func (m *Manager) lookup(name string) *limitState {
	if ls := m.exact[name]; ls != nil {
		return ls
	}
	var best *limitState
	bestLen := -1
	for p, ls := range m.prefixes {
		if strings.HasPrefix(name, p) && len(p) > bestLen {
			best, bestLen = ls, len(p)
		}
	}
	return best
}

// Acquire admits a job named name if its limit allows. On true the caller
// must call Release when the job finishes.
func (m *Manager) Acquire(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ls := m.lookup(name)
	if ls == nil {
		return true
	}
	// Check concurrency before consuming a rate token.
	if ls.config.MaxConcurrency > 0 && ls.active >= ls.config.MaxConcurrency {
		return false
	}
	if ls.limiter != nil && !ls.limiter.Allow() {
		return false
	}
	ls.active++
	return true
}

// Release returns the slot taken by Acquire.
func (m *Manager) Release(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ls := m.lookup(name); ls != nil && ls.active > 0 {
		ls.active--
	}
}

// SetConfig adds or replaces a limit, preserving its active count.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(cfg)
}

func (m *Manager) set(cfg Config) {
	table, key := m.exact, cfg.Name
	if p, ok := strings.CutSuffix(cfg.Name, "*"); ok {
		table, key = m.prefixes, p
	}
	ls := newLimitState(cfg)
	if existing := table[key]; existing != nil {
		ls.active = existing.active
	}
	table[key] = ls
}

// ActiveCount returns the jobs currently admitted under the limit that
// governs name.
func (m *Manager) ActiveCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ls := m.lookup(name); ls != nil {
		return ls.active
	}
	return 0
}

// Configs returns every configured limit ordered by name.
func (m *Manager) Configs() []Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Config, 0, len(m.exact)+len(m.prefixes))
	for _, ls := range m.exact {
		out = append(out, ls.config)
	}
	for _, ls := range m.prefixes {
		out = append(out, ls.config)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// ParseConfig parses "name=concurrency[:rate[:burst]]", the form accepted
// by the CLI --limit flag.
func ParseConfig(s string) (Config, error) {
	name, spec, ok := strings.Cut(s, "=")
	if !ok || name == "" || spec == "" {
		return Config{}, fmt.Errorf("queue: invalid limit %q, want name=concurrency[:rate[:burst]]", s)
	}
	cfg := Config{Name: strings.TrimSpace(name)}
	parts := strings.Split(spec, ":")
	if len(parts) > 3 {
		return Config{}, fmt.Errorf("queue: invalid limit %q: too many fields", s)
	}

	var err error
	if cfg.MaxConcurrency, err = strconv.Atoi(parts[0]); err != nil || cfg.MaxConcurrency < 0 {
		return Config{}, fmt.Errorf("queue: invalid concurrency in %q", s)
	}
	if len(parts) > 1 {
		if cfg.RateLimit, err = strconv.ParseFloat(parts[1], 64); err != nil || cfg.RateLimit < 0 {
			return Config{}, fmt.Errorf("queue: invalid rate in %q", s)
		}
	}
	if len(parts) > 2 {
		if cfg.RateBurst, err = strconv.Atoi(parts[2]); err != nil || cfg.RateBurst < 0 {
			return Config{}, fmt.Errorf("queue: invalid burst in %q", s)
		}
	}
	return cfg, nil
}
