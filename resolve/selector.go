package resolve

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// Strategy controls how a nameserver is chosen for each query.
type Strategy string

const (
	// StrategyRoundRobin cycles through servers in order.
	StrategyRoundRobin Strategy = "round_robin"
	// StrategyRandom picks a server uniformly at random.
	StrategyRandom Strategy = "random"
	// StrategySticky pins each name to one randomly chosen server.
	StrategySticky Strategy = "sticky"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyRoundRobin, StrategyRandom, StrategySticky:
		return true
	}
	return false
}

// Selector chooses nameservers from a fixed list.
// Thread-safe for concurrent access.
type Selector struct {
	mu        sync.Mutex
	servers   []string
	strategy  Strategy
	stickyTTL time.Duration
	rrIndex   int64
	stickyMap map[string]*stickyEntry
	now       func() time.Time
}

// stickyEntry holds a sticky assignment with optional expiry.
type stickyEntry struct {
	serverIdx int
	expiresAt time.Time
}

// NewSelector creates a selector. An empty strategy selects round-robin.
// stickyTTL bounds sticky assignments; zero keeps them forever.
func NewSelector(servers []string, strategy Strategy, stickyTTL time.Duration) (*Selector, error) {
	if len(servers) == 0 {
		return nil, errors.New("selector requires at least one server")
	}
	if strategy == "" {
		strategy = StrategyRoundRobin
	}
	if !strategy.Valid() {
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}
	for i, s := range servers {
		if s == "" {
			return nil, fmt.Errorf("server %d is empty", i)
		}
	}

	return &Selector{
		servers:   append([]string(nil), servers...),
		strategy:  strategy,
		stickyTTL: stickyTTL,
		stickyMap: make(map[string]*stickyEntry),
		now:       time.Now,
	}, nil
}

// Select returns the server for a query about key.
// Commit determines whether rotation counters and sticky assignments advance;
// when false, Select reports what would be chosen without mutating state.
func (s *Selector) Select(key string, commit bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var idx int
	var err error
	switch s.strategy {
	case StrategyRoundRobin:
		idx = s.selectRoundRobin(commit)
	case StrategyRandom:
		idx, err = s.selectRandom()
	case StrategySticky:
		idx, err = s.selectSticky(key, commit)
	}
	if err != nil {
		return "", err
	}
	return s.servers[idx], nil
}

// Next returns the server after current in list order, for retries.
func (s *Selector) Next(current string) string {
	for i, srv := range s.servers {
		if srv == current {
			return s.servers[(i+1)%len(s.servers)]
		}
	}
	return s.servers[0]
}

func (s *Selector) selectRoundRobin(commit bool) int {
	idx := int(s.rrIndex % int64(len(s.servers)))
	if commit {
		s.rrIndex++
	}
	return idx
}

func (s *Selector) selectRandom() (int, error) {
	n := len(s.servers)
	if n == 1 {
		return 0, nil
	}
	bigIdx, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("random selection failed: %w", err)
	}
	return int(bigIdx.Int64()), nil
}

func (s *Selector) selectSticky(key string, commit bool) (int, error) {
	if key == "" {
		return 0, errors.New("sticky selection requires a key")
	}

	now := s.now()
	if entry, ok := s.stickyMap[key]; ok {
		if entry.expiresAt.IsZero() || entry.expiresAt.After(now) {
			return entry.serverIdx, nil
		}
		delete(s.stickyMap, key)
	}

	idx, err := s.selectRandom()
	if err != nil {
		return 0, err
	}
	if commit {
		entry := &stickyEntry{serverIdx: idx}
		if s.stickyTTL > 0 {
			entry.expiresAt = now.Add(s.stickyTTL)
		}
		s.stickyMap[key] = entry
	}
	return idx, nil
}

// SelectorStats reports selector state.
type SelectorStats struct {
	RoundRobinIndex int64
	StickyEntries   int
}

// Stats returns current selector state.
func (s *Selector) Stats() SelectorStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SelectorStats{
		RoundRobinIndex: s.rrIndex,
		StickyEntries:   len(s.stickyMap),
	}
}

// CleanExpiredSticky removes expired sticky entries.
func (s *Selector) CleanExpiredSticky() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, entry := range s.stickyMap {
		if !entry.expiresAt.IsZero() && !entry.expiresAt.After(now) {
			delete(s.stickyMap, key)
		}
	}
}
