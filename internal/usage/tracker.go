// Package usage tracks per-provider API call budgets with durable counters.
package usage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Provider names understood by the tracker.
const (
	ProviderClaude = "claude"
	ProviderYNAB   = "ynab"
)

// Limits holds the ceilings for one provider. A zero CostLimit marks the
// provider as not cost-bearing.
type Limits struct {
	Daily     int
	Monthly   int
	CostLimit float64
}

// Counters is the persisted usage state for one provider. The JSON field
// names are a compatibility contract with the on-disk usage file.
type Counters struct {
	LastReset    time.Time `json:"last_reset"`
	Daily        int       `json:"daily"`
	Monthly      int       `json:"monthly"`
	CostEstimate float64   `json:"cost_estimate"`
}

// Tracker gates outbound calls against daily/monthly/cost budgets and
// persists counters to a JSON state file on every mutation.
//
// Safe for concurrent readers within one process, but the state file has no
// cross-process locking: exactly one tracker-owning process at a time.
type Tracker struct {
	now    func() time.Time
	limits map[string]Limits
	path   string
	mu     sync.Mutex
}

// NewTracker creates a tracker persisting to path with the given limits.
func NewTracker(path string, limits map[string]Limits) (*Tracker, error) {
	if path == "" {
		return nil, fmt.Errorf("usage state path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create usage state directory: %w", err)
	}

	return &Tracker{
		path:   path,
		limits: limits,
		now:    time.Now,
	}, nil
}

func (t *Tracker) load() map[string]*Counters {
	state := make(map[string]*Counters)

	data, err := os.ReadFile(t.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Failed to read usage state, starting fresh", "path", t.path, "error", err)
		}
		return t.freshState()
	}

	if err := json.Unmarshal(data, &state); err != nil {
		slog.Warn("Corrupted usage state, starting fresh", "path", t.path, "error", err)
		return t.freshState()
	}

	for provider := range t.limits {
		if state[provider] == nil {
			state[provider] = &Counters{LastReset: t.now()}
		}
	}

	return state
}

func (t *Tracker) freshState() map[string]*Counters {
	state := make(map[string]*Counters)
	for provider := range t.limits {
		state[provider] = &Counters{LastReset: t.now()}
	}
	return state
}

func (t *Tracker) save(state map[string]*Counters) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal usage state: %w", err)
	}
	if err := os.WriteFile(t.path, data, 0600); err != nil {
		return fmt.Errorf("failed to save usage state: %w", err)
	}
	return nil
}

// resetCountersIfNeeded zeroes the daily counter on a calendar-day rollover
// and the monthly counter (plus cost for cost-bearing providers) on a
// calendar-month rollover. last_reset is always refreshed.
func (t *Tracker) resetCountersIfNeeded(state map[string]*Counters) {
	now := t.now()

	for provider, counters := range state {
		lastReset := counters.LastReset

		if now.Format("2006-01-02") != lastReset.Format("2006-01-02") {
			counters.Daily = 0
		}

		if now.Month() != lastReset.Month() || now.Year() != lastReset.Year() {
			counters.Monthly = 0
			if t.limits[provider].CostLimit > 0 {
				counters.CostEstimate = 0
			}
		}

		counters.LastReset = now
	}
}

// CheckLimit reports whether provider still has budget for one more call.
// Must be called before every outbound call.
func (t *Tracker) CheckLimit(provider string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	limits, ok := t.limits[provider]
	if !ok {
		return false, fmt.Errorf("unknown provider: %s", provider)
	}

	state := t.load()
	t.resetCountersIfNeeded(state)
	if err := t.save(state); err != nil {
		return false, err
	}

	counters := state[provider]

	if limits.Daily > 0 && counters.Daily >= limits.Daily {
		slog.Warn("Daily limit exceeded", "provider", provider, "daily", counters.Daily, "limit", limits.Daily)
		return false, nil
	}
	if limits.Monthly > 0 && counters.Monthly >= limits.Monthly {
		slog.Warn("Monthly limit exceeded", "provider", provider, "monthly", counters.Monthly, "limit", limits.Monthly)
		return false, nil
	}
	if limits.CostLimit > 0 && counters.CostEstimate >= limits.CostLimit {
		slog.Warn("Cost limit exceeded", "provider", provider, "cost", counters.CostEstimate, "limit", limits.CostLimit)
		return false, nil
	}

	return true, nil
}

// RecordUsage increments provider counters after a successful call and
// persists them.
func (t *Tracker) RecordUsage(provider string, cost float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	limits, ok := t.limits[provider]
	if !ok {
		return fmt.Errorf("unknown provider: %s", provider)
	}

	state := t.load()
	t.resetCountersIfNeeded(state)

	counters := state[provider]
	counters.Daily++
	counters.Monthly++
	if limits.CostLimit > 0 {
		counters.CostEstimate += cost
	}

	if err := t.save(state); err != nil {
		return err
	}

	slog.Debug("Usage recorded",
		"provider", provider,
		"daily", counters.Daily,
		"monthly", counters.Monthly)

	return nil
}

// Snapshot returns the current (post-rollover) counters per provider for
// display.
func (t *Tracker) Snapshot() (map[string]Counters, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.load()
	t.resetCountersIfNeeded(state)
	if err := t.save(state); err != nil {
		return nil, err
	}

	snapshot := make(map[string]Counters, len(state))
	for provider, counters := range state {
		snapshot[provider] = *counters
	}
	return snapshot, nil
}

// Limit returns the configured limits for a provider.
func (t *Tracker) Limit(provider string) (Limits, bool) {
	limits, ok := t.limits[provider]
	return limits, ok
}
