// Package session gates how often and with what parameters a search is
// dispatched: it owns the current match mode, the debounce timer and the
// query normalization rules.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Mode selects the match discipline for dispatched queries. The engine also
// implements a full-text discipline, but it is not part of the session's
// public mode set.
type Mode string

const (
	ModeExact  Mode = "exact"
	ModePrefix Mode = "prefix"
	ModeFuzzy  Mode = "fuzzy"
)

// maxQueryLength caps normalized queries, matching the backend's validation.
const maxQueryLength = 100

// Defaults applied by NewSession before any setter runs.
const (
	DefaultDebounce       = 300 * time.Millisecond
	DefaultResultLimit    = 20
	DefaultFuzzyThreshold = 0.5
)

// Config is the snapshot handed to whichever engine executes the query.
type Config struct {
	Mode           Mode
	Limit          int
	FuzzyThreshold float64
}

// Session owns the debounce timer and search parameters for one application
// session. At most one timer is ever pending; each DebounceSearch call
// restarts it (trailing-edge semantics).
type Session struct {
	mu        sync.Mutex
	mode      Mode
	debounce  time.Duration
	limit     int
	threshold float64
	lastQuery string
	timer     *time.Timer
}

// NewSession returns a Session with default parameters. Overrides go through
// the setters.
func NewSession() *Session {
	return &Session{
		mode:      ModePrefix,
		debounce:  DefaultDebounce,
		limit:     DefaultResultLimit,
		threshold: DefaultFuzzyThreshold,
	}
}

// SetMode switches the active match discipline.
func (s *Session) SetMode(mode Mode) {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
	log.Debugf("Search mode set to %s", mode)
}

// Mode returns the active match discipline.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetDebounce changes the quiet period required before dispatch. Negative
// values collapse to zero (immediate dispatch on the next tick).
func (s *Session) SetDebounce(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	s.debounce = d
	s.mu.Unlock()
}

// SetResultLimit changes the per-kind result cap passed to the engine.
func (s *Session) SetResultLimit(limit int) {
	if limit < 0 {
		limit = 0
	}
	s.mu.Lock()
	s.limit = limit
	s.mu.Unlock()
}

// SetFuzzyThreshold sets the minimum fuzzy score, clamped to [0,1].
// Out-of-range values are clamped, never rejected.
func (s *Session) SetFuzzyThreshold(t float64) {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	s.mu.Lock()
	s.threshold = t
	s.mu.Unlock()
}

// FuzzyThreshold returns the effective threshold.
func (s *Session) FuzzyThreshold() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threshold
}

// SearchConfig snapshots the parameters for the caller to pass to whichever
// engine executes the query.
func (s *Session) SearchConfig() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Config{Mode: s.mode, Limit: s.limit, FuzzyThreshold: s.threshold}
}

// ValidateQuery is the single normalization point for raw input: trim
// whitespace, lower-case, truncate to 100 characters. All downstream
// matching assumes input already passed through it.
func (s *Session) ValidateQuery(raw string) string {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	runes := []rune(normalized)
	if len(runes) > maxQueryLength {
		normalized = string(runes[:maxQueryLength])
	}
	return normalized
}

// LastQuery returns the most recently debounced query. It reflects the
// latest keystroke even before the pending callback fires.
func (s *Session) LastQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery
}

// DebounceSearch records the query immediately and schedules fn(query) to
// run once the debounce interval elapses with no further calls. Any
// previously pending timer is canceled first: restart, not extend.
func (s *Session) DebounceSearch(fn func(query string), query string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastQuery = query
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		fn(query)
	})
}

// CancelDebounce cancels the pending timer if any. Idempotent.
func (s *Session) CancelDebounce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Close tears the session down, canceling any pending dispatch.
func (s *Session) Close() {
	s.CancelDebounce()
}
