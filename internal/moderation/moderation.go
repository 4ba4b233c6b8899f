// Package moderation scores partner reports and applies temporary
// matchmaking restrictions to repeat offenders. All state is
// in-memory and scoped to a peer id's lifetime.
package moderation

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Report categories and their reputation penalties. Unknown
// categories are rejected at the API edge.
var categoryWeights = map[string]int{
	"spam":          5,
	"harassment":    15,
	"inappropriate": 10,
	"underage":      25,
	"other":         3,
}

// Weight returns the penalty for a report category, or 0 for an
// unknown one.
func Weight(category string) int {
	return categoryWeights[category]
}

// Config carries the restriction thresholds.
type Config struct {
	// ReputationThreshold is the cumulative penalty at which a peer
	// gets restricted.
	ReputationThreshold int

	// FrequencyThreshold restricts a peer reported more than this many
	// times inside FrequencyWindow, regardless of category weights.
	FrequencyThreshold int
	FrequencyWindow    time.Duration

	Level1Duration time.Duration
	Level2Duration time.Duration
	Level3Duration time.Duration
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		ReputationThreshold: 30,
		FrequencyThreshold:  3,
		FrequencyWindow:     24 * time.Hour,
		Level1Duration:      time.Hour,
		Level2Duration:      24 * time.Hour,
		Level3Duration:      7 * 24 * time.Hour,
	}
}

type report struct {
	reporter string
	category string
	at       time.Time
}

type restriction struct {
	level int
	until time.Time
}

// Service accumulates reports per peer and decides when a peer may no
// longer enter matchmaking. Restrictions escalate when a peer earns a
// new one shortly after the last expired.
type Service struct {
	cfg Config
	log *logrus.Entry

	mu           sync.Mutex
	penalties    map[string]int
	reports      map[string][]report
	restrictions map[string]restriction
	lastApplied  map[string]time.Time
}

func NewService(cfg Config, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.New()
	}
	return &Service{
		cfg:          cfg,
		log:          log.WithField("component", "moderation"),
		penalties:    make(map[string]int),
		reports:      make(map[string][]report),
		restrictions: make(map[string]restriction),
		lastApplied:  make(map[string]time.Time),
	}
}

// Report records one report against offender. It returns the category
// weight and whether the category was recognized. A second report of
// the same offender by the same reporter only counts once.
func (s *Service) Report(reporter, offender, category string, now time.Time) (int, bool) {
	weight := Weight(category)
	if weight == 0 {
		return 0, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.reports[offender] {
		if r.reporter == reporter {
			return weight, true
		}
	}

	s.reports[offender] = append(s.reports[offender], report{
		reporter: reporter,
		category: category,
		at:       now,
	})
	s.penalties[offender] += weight

	if s.shouldRestrictLocked(offender, now) {
		s.applyLocked(offender, now)
	}
	return weight, true
}

func (s *Service) shouldRestrictLocked(offender string, now time.Time) bool {
	if s.penalties[offender] >= s.cfg.ReputationThreshold {
		return true
	}
	recent := 0
	cutoff := now.Add(-s.cfg.FrequencyWindow)
	for _, r := range s.reports[offender] {
		if r.at.After(cutoff) {
			recent++
		}
	}
	return recent > s.cfg.FrequencyThreshold
}

// applyLocked escalates the restriction level based on how recently
// the previous one was earned.
func (s *Service) applyLocked(offender string, now time.Time) {
	level := 1
	if last, ok := s.lastApplied[offender]; ok {
		switch {
		case now.Sub(last) < 7*24*time.Hour:
			level = 2
		case now.Sub(last) < 30*24*time.Hour:
			level = 3
		}
	}

	var duration time.Duration
	switch level {
	case 1:
		duration = s.cfg.Level1Duration
	case 2:
		duration = s.cfg.Level2Duration
	default:
		duration = s.cfg.Level3Duration
	}

	s.restrictions[offender] = restriction{level: level, until: now.Add(duration)}
	s.lastApplied[offender] = now
	// Penalties reset so the next restriction needs fresh reports.
	delete(s.penalties, offender)
	delete(s.reports, offender)

	s.log.WithFields(logrus.Fields{
		"peer":  offender,
		"level": level,
		"until": s.restrictions[offender].until,
	}).Warn("peer restricted")
}

// Restricted reports whether a peer is currently barred from
// matchmaking, and until when.
func (s *Service) Restricted(peerID string, now time.Time) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.restrictions[peerID]
	if !ok {
		return time.Time{}, false
	}
	if now.After(r.until) {
		delete(s.restrictions, peerID)
		return time.Time{}, false
	}
	return r.until, true
}

// Counts reports live restriction and pending-report totals.
func (s *Service) Counts(now time.Time) (restricted, reported int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.restrictions {
		if now.Before(r.until) {
			restricted++
		}
	}
	reported = len(s.reports)
	return restricted, reported
}
