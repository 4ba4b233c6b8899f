package match

import (
	"math"
	"time"

	"github.com/rajeshbanoth/randomchat/internal/models"
)

// ScoringConfig carries every tunable weight of the compatibility
// formula. Zero values are replaced by the defaults from
// DefaultScoringConfig, so partial overrides from the environment are
// safe.
type ScoringConfig struct {
	InterestWeight    float64
	DemographicWeight float64
	ModeWeight        float64
	BehaviorWeight    float64

	OptimalAgeDiff int
	MaxAgeDiff     int

	SameGenderBonus  float64
	PremiumBonus     float64
	VideoModeBonus   float64
	VideoTextPenalty float64
	AgeRangeBonus    float64

	// MinWaitBoost is the average wait after which the wait-time boost
	// starts; PriorityTime is where it saturates.
	MinWaitBoost time.Duration
	PriorityTime time.Duration

	VideoThreshold float64
	TextThreshold  float64
}

// DefaultScoringConfig returns the production defaults.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		InterestWeight:    0.35,
		DemographicWeight: 0.25,
		ModeWeight:        0.30,
		BehaviorWeight:    0.10,
		OptimalAgeDiff:    5,
		MaxAgeDiff:        25,
		SameGenderBonus:   0.10,
		PremiumBonus:      0.15,
		VideoModeBonus:    0.10,
		VideoTextPenalty:  0.20,
		AgeRangeBonus:     0.10,
		MinWaitBoost:      5 * time.Second,
		PriorityTime:      15 * time.Second,
		VideoThreshold:    70,
		TextThreshold:     65,
	}
}

// Threshold returns the minimum committable score for a chat mode.
func (c ScoringConfig) Threshold(mode string) float64 {
	if mode == models.ModeVideo {
		return c.VideoThreshold
	}
	return c.TextThreshold
}

// Entry is one waiting peer as the scorer and the engine see it.
type Entry struct {
	Profile  *models.Profile
	JoinedAt time.Time
	Attempts int
}

// Wait returns how long the entry has been in the pool.
func (e *Entry) Wait(now time.Time) time.Duration {
	if e.JoinedAt.IsZero() {
		return 0
	}
	return now.Sub(e.JoinedAt)
}

// Scorer maps two waiting peers to a compatibility score in [0, 100].
// It is deterministic given its inputs and the history count supplied by
// the engine.
type Scorer struct {
	cfg ScoringConfig
}

// NewScorer builds a scorer, filling unset config fields with defaults.
func NewScorer(cfg ScoringConfig) *Scorer {
	def := DefaultScoringConfig()
	if cfg.InterestWeight == 0 {
		cfg.InterestWeight = def.InterestWeight
	}
	if cfg.DemographicWeight == 0 {
		cfg.DemographicWeight = def.DemographicWeight
	}
	if cfg.ModeWeight == 0 {
		cfg.ModeWeight = def.ModeWeight
	}
	if cfg.BehaviorWeight == 0 {
		cfg.BehaviorWeight = def.BehaviorWeight
	}
	if cfg.OptimalAgeDiff == 0 {
		cfg.OptimalAgeDiff = def.OptimalAgeDiff
	}
	if cfg.MaxAgeDiff == 0 {
		cfg.MaxAgeDiff = def.MaxAgeDiff
	}
	if cfg.SameGenderBonus == 0 {
		cfg.SameGenderBonus = def.SameGenderBonus
	}
	if cfg.PremiumBonus == 0 {
		cfg.PremiumBonus = def.PremiumBonus
	}
	if cfg.VideoModeBonus == 0 {
		cfg.VideoModeBonus = def.VideoModeBonus
	}
	if cfg.VideoTextPenalty == 0 {
		cfg.VideoTextPenalty = def.VideoTextPenalty
	}
	if cfg.AgeRangeBonus == 0 {
		cfg.AgeRangeBonus = def.AgeRangeBonus
	}
	if cfg.MinWaitBoost == 0 {
		cfg.MinWaitBoost = def.MinWaitBoost
	}
	if cfg.PriorityTime == 0 {
		cfg.PriorityTime = def.PriorityTime
	}
	if cfg.VideoThreshold == 0 {
		cfg.VideoThreshold = def.VideoThreshold
	}
	if cfg.TextThreshold == 0 {
		cfg.TextThreshold = def.TextThreshold
	}
	return &Scorer{cfg: cfg}
}

const baseScore = 50.0

// Score computes the compatibility between two waiting peers at a given
// instant. historyCount is how many times this unordered pair has been
// matched before.
func (s *Scorer) Score(a, b *Entry, now time.Time, historyCount int) float64 {
	total := baseScore
	total += s.interestTerm(a.Profile, b.Profile)
	total += s.demographicTerm(a.Profile, b.Profile)
	total += s.modeTerm(a.Profile, b.Profile)
	total += s.behaviorTerm(a, b, now)

	adj := s.adjustment(a.Profile, b.Profile, historyCount)
	score := total * (1 + adj)

	// Round to one decimal before clamping so equal pairs compare equal.
	score = math.Round(score*10) / 10
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func (s *Scorer) interestTerm(a, b *models.Profile) float64 {
	shared := a.SharedInterests(b)
	union := len(a.Interests) + len(b.Interests) - len(shared)

	sim := 0.0
	if union > 0 {
		sim = float64(len(shared)) / float64(union)
	}
	if len(shared) > 0 {
		sim += 0.3
	}
	if sim > 1.0 {
		sim = 1.0
	}
	return sim * s.cfg.InterestWeight * baseScore
}

func (s *Scorer) demographicTerm(a, b *models.Profile) float64 {
	v := 0.5

	ageDiff := a.Age - b.Age
	if ageDiff < 0 {
		ageDiff = -ageDiff
	}
	switch {
	case ageDiff <= s.cfg.OptimalAgeDiff:
		v += 0.3
	case ageDiff < s.cfg.MaxAgeDiff:
		span := float64(s.cfg.MaxAgeDiff - s.cfg.OptimalAgeDiff)
		v += 0.3 * (1 - float64(ageDiff-s.cfg.OptimalAgeDiff)/span)
	}

	if a.AllowsGender(b.Gender) {
		v += 0.15
	}
	if b.AllowsGender(a.Gender) {
		v += 0.15
	}

	if a.Gender != models.GenderNotSpecified && a.Gender == b.Gender {
		v += s.cfg.SameGenderBonus
	}

	return v * s.cfg.DemographicWeight * baseScore
}

func (s *Scorer) modeTerm(a, b *models.Profile) float64 {
	var v float64
	switch {
	case a.ChatMode == models.ModeVideo && b.ChatMode == models.ModeVideo:
		v = 1.0
	case a.ChatMode == models.ModeText && b.ChatMode == models.ModeText:
		v = 0.8
	default:
		v = 0.4
	}
	return v * s.cfg.ModeWeight * baseScore
}

func (s *Scorer) behaviorTerm(a, b *Entry, now time.Time) float64 {
	avgWait := (a.Wait(now) + b.Wait(now)) / 2

	var waitBoost float64
	if avgWait > s.cfg.MinWaitBoost {
		span := (s.cfg.PriorityTime - s.cfg.MinWaitBoost).Seconds()
		frac := (avgWait - s.cfg.MinWaitBoost).Seconds() / span
		if frac > 1 {
			frac = 1
		}
		waitBoost = 0.3 * frac
	}

	avgAttempts := float64(a.Attempts+b.Attempts) / 2
	attemptsBoost := 0.05 * avgAttempts
	if attemptsBoost > 0.2 {
		attemptsBoost = 0.2
	}

	return (waitBoost + attemptsBoost) * s.cfg.BehaviorWeight * baseScore
}

func (s *Scorer) adjustment(a, b *models.Profile, historyCount int) float64 {
	var adj float64

	if a.IsPremium() || b.IsPremium() {
		adj += s.cfg.PremiumBonus
	}

	switch {
	case a.ChatMode == models.ModeVideo && b.ChatMode == models.ModeVideo:
		adj += s.cfg.VideoModeBonus
	case a.ChatMode != b.ChatMode:
		adj -= s.cfg.VideoTextPenalty
	}

	if a.AllowsAge(b.Age) {
		adj += s.cfg.AgeRangeBonus / 2
	}
	if b.AllowsAge(a.Age) {
		adj += s.cfg.AgeRangeBonus / 2
	}

	if historyCount > 0 {
		penalty := 0.1 * float64(historyCount)
		if penalty > 0.3 {
			penalty = 0.3
		}
		adj -= penalty
	}

	if adj > 0.3 {
		adj = 0.3
	}
	if adj < -0.3 {
		adj = -0.3
	}
	return adj
}
