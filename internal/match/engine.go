package match

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rajeshbanoth/randomchat/internal/models"
)

// pairKey identifies an unordered peer pair. Construct it through
// keyFor so both orderings map to the same key.
type pairKey struct {
	a, b string
}

func keyFor(x, y string) pairKey {
	if x < y {
		return pairKey{a: x, b: y}
	}
	return pairKey{a: y, b: x}
}

// Candidate is the outcome of a successful FindMatch call. The engine
// does not remove either peer; the pair commit does that atomically.
type Candidate struct {
	PeerID          string
	PartnerID       string
	Score           float64
	SharedInterests []string
	Mode            string
}

// Stats summarizes the live state of the engine.
type Stats struct {
	Waiting      int     `json:"waiting"`
	TextWaiting  int     `json:"textWaiting"`
	VideoWaiting int     `json:"videoWaiting"`
	AvgWaitMS    int64   `json:"avgWaitMs"`
	AvgAttempts  float64 `json:"avgAttempts"`
	BlockedPairs int     `json:"blockedPairs"`
}

// Engine owns the waiting pool, the precomputed score index, the block
// list and the rematch history. All state is in-memory and guarded by a
// single internal mutex; callers never see partial updates.
type Engine struct {
	mu sync.Mutex

	scorer *Scorer
	cfg    ScoringConfig
	log    *logrus.Entry

	pool    map[string]*Entry
	scores  map[string]map[string]float64
	blocks  map[pairKey]struct{}
	history map[pairKey]int
}

// NewEngine builds an empty engine around the given scoring config.
func NewEngine(cfg ScoringConfig, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	scorer := NewScorer(cfg)
	return &Engine{
		scorer:  scorer,
		cfg:     scorer.cfg,
		log:     log.WithField("component", "matcher"),
		pool:    make(map[string]*Entry),
		scores:  make(map[string]map[string]float64),
		blocks:  make(map[pairKey]struct{}),
		history: make(map[pairKey]int),
	}
}

// Add inserts a peer into the waiting pool and precomputes its score
// against every basically-compatible candidate, both directions. Adding
// an already-waiting peer refreshes its snapshot and rescoring.
func (e *Engine) Add(profile *models.Profile, attempts int, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.evictLocked(profile.ID)

	entry := &Entry{Profile: profile, JoinedAt: now, Attempts: attempts}
	e.pool[profile.ID] = entry
	e.scores[profile.ID] = make(map[string]float64)

	for otherID, other := range e.pool {
		if otherID == profile.ID {
			continue
		}
		if !e.basicCompatibleLocked(entry, other) {
			continue
		}
		score := e.scorer.Score(entry, other, now, e.history[keyFor(profile.ID, otherID)])
		e.scores[profile.ID][otherID] = score
		e.scores[otherID][profile.ID] = score
	}

	e.log.WithFields(logrus.Fields{
		"peer": profile.ID,
		"mode": profile.ChatMode,
		"pool": len(e.pool),
	}).Debug("peer added to waiting pool")
}

// Remove deletes a peer from the pool and evicts every score-index and
// cache entry mentioning it. Removing an absent peer is a no-op.
func (e *Engine) Remove(peerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evictLocked(peerID)
}

func (e *Engine) evictLocked(peerID string) {
	delete(e.pool, peerID)
	delete(e.scores, peerID)
	for _, idx := range e.scores {
		delete(idx, peerID)
	}
}

// Waiting reports whether the peer is currently in the pool.
func (e *Engine) Waiting(peerID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.pool[peerID]
	return ok
}

// Block records a symmetric block between two peers and evicts their
// mutual score entries so they can never be offered to each other.
func (e *Engine) Block(peerID, otherID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.blocks[keyFor(peerID, otherID)] = struct{}{}
	if idx, ok := e.scores[peerID]; ok {
		delete(idx, otherID)
	}
	if idx, ok := e.scores[otherID]; ok {
		delete(idx, peerID)
	}
}

// Blocked reports whether either side has blocked the other.
func (e *Engine) Blocked(peerID, otherID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.blocks[keyFor(peerID, otherID)]
	return ok
}

// RecordMatch bumps the rematch-history count for an unordered pair.
// The pair commit calls this so immediate re-pairings score lower.
func (e *Engine) RecordMatch(peerID, otherID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history[keyFor(peerID, otherID)]++
}

// HistoryCount returns how many times the unordered pair has matched.
func (e *Engine) HistoryCount(peerID, otherID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history[keyFor(peerID, otherID)]
}

// FindMatch picks the best committable candidate for a peer, or nil.
// Mode equality is strict: a video seeker is never offered a text peer,
// even when the raw score would clear the threshold. The call never
// mutates the pool, so losing the subsequent commit race is harmless and
// a call for an already-paired peer is a no-op.
func (e *Engine) FindMatch(peerID string, now time.Time) *Candidate {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.pool[peerID]
	if !ok {
		return nil
	}
	threshold := e.cfg.Threshold(entry.Profile.ChatMode)

	var (
		best      *Entry
		bestID    string
		bestScore float64
		bestBoost float64
	)

	for otherID, score := range e.scores[peerID] {
		other, ok := e.pool[otherID]
		if !ok {
			continue
		}
		if other.Profile.ChatMode != entry.Profile.ChatMode {
			continue
		}
		if _, blocked := e.blocks[keyFor(peerID, otherID)]; blocked {
			continue
		}
		if score < threshold {
			continue
		}

		boosted := score * e.boostLocked(other, now)
		if best == nil || boosted > bestBoost ||
			(boosted == bestBoost && e.prefersLocked(other, otherID, best, bestID, now)) {
			best = other
			bestID = otherID
			bestScore = score
			bestBoost = boosted
		}
	}

	if best == nil {
		return nil
	}
	return &Candidate{
		PeerID:          peerID,
		PartnerID:       bestID,
		Score:           bestScore,
		SharedInterests: entry.Profile.SharedInterests(best.Profile),
		Mode:            entry.Profile.ChatMode,
	}
}

// boostLocked applies the wait-time and priority multipliers used only
// for candidate ordering, never for threshold checks.
func (e *Engine) boostLocked(other *Entry, now time.Time) float64 {
	boost := 1.0

	wait := other.Wait(now)
	if wait > e.cfg.MinWaitBoost {
		span := (e.cfg.PriorityTime - e.cfg.MinWaitBoost).Seconds()
		frac := (wait - e.cfg.MinWaitBoost).Seconds() / span
		if frac > 1 {
			frac = 1
		}
		boost += 0.3 * frac
	}

	if other.Profile.IsPremium() {
		boost *= other.Profile.Priority
	}
	return boost
}

// prefersLocked is the deterministic tie-break: greater priority, then
// longer wait, then lexicographic peer id.
func (e *Engine) prefersLocked(cand *Entry, candID string, cur *Entry, curID string, now time.Time) bool {
	if cand.Profile.Priority != cur.Profile.Priority {
		return cand.Profile.Priority > cur.Profile.Priority
	}
	cw, xw := cand.Wait(now), cur.Wait(now)
	if cw != xw {
		return cw > xw
	}
	return candID < curID
}

// Snapshot computes summary counts for introspection.
func (e *Engine) Snapshot(now time.Time) Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Stats{Waiting: len(e.pool), BlockedPairs: len(e.blocks)}
	if len(e.pool) == 0 {
		return st
	}

	var totalWait time.Duration
	var totalAttempts int
	for _, entry := range e.pool {
		switch entry.Profile.ChatMode {
		case models.ModeVideo:
			st.VideoWaiting++
		default:
			st.TextWaiting++
		}
		totalWait += entry.Wait(now)
		totalAttempts += entry.Attempts
	}
	st.AvgWaitMS = (totalWait / time.Duration(len(e.pool))).Milliseconds()
	st.AvgAttempts = float64(totalAttempts) / float64(len(e.pool))
	return st
}

// basicCompatibleLocked is the cheap pre-filter run at Add time:
// mutual preference satisfaction, mutual age-range fit, not blocked.
// Mode is deliberately not checked here, so mixed-mode pairs keep a
// (penalized) score in the index; FindMatch enforces mode equality.
func (e *Engine) basicCompatibleLocked(a, b *Entry) bool {
	if _, blocked := e.blocks[keyFor(a.Profile.ID, b.Profile.ID)]; blocked {
		return false
	}
	if !a.Profile.AllowsGender(b.Profile.Gender) || !b.Profile.AllowsGender(a.Profile.Gender) {
		return false
	}
	if !a.Profile.AllowsAge(b.Profile.Age) || !b.Profile.AllowsAge(a.Profile.Age) {
		return false
	}
	return true
}
