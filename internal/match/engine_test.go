package match_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajeshbanoth/randomchat/internal/match"
	"github.com/rajeshbanoth/randomchat/internal/models"
)

func newTestEngine() *match.Engine {
	return match.NewEngine(match.DefaultScoringConfig(), nil)
}

// compatiblePayload is a registration that clears the text threshold
// against an identical twin: same age, same interests.
func compatiblePayload() models.RegisterPayload {
	return models.RegisterPayload{
		Age:       25,
		Interests: []string{"music", "gaming", "art"},
	}
}

func TestEngineAddAndWaiting(t *testing.T) {
	// Arrange
	e := newTestEngine()
	now := time.Now()

	// Act
	e.Add(profile(t, "peer_a", compatiblePayload()), 0, now)

	// Assert
	assert.True(t, e.Waiting("peer_a"))
	assert.False(t, e.Waiting("peer_b"))

	e.Remove("peer_a")
	assert.False(t, e.Waiting("peer_a"))
}

func TestEngineFindsCompatibleMatch(t *testing.T) {
	e := newTestEngine()
	now := time.Now()
	joined := now.Add(-10 * time.Second)

	e.Add(profile(t, "peer_a", compatiblePayload()), 2, joined)
	e.Add(profile(t, "peer_b", compatiblePayload()), 2, joined)

	cand := e.FindMatch("peer_a", now)
	require.NotNil(t, cand)
	assert.Equal(t, "peer_a", cand.PeerID)
	assert.Equal(t, "peer_b", cand.PartnerID)
	assert.Equal(t, models.ModeText, cand.Mode)
	assert.Equal(t, []string{"art", "gaming", "music"}, cand.SharedInterests)
	assert.GreaterOrEqual(t, cand.Score, 65.0)

	// FindMatch never mutates the pool; both peers are still waiting.
	assert.True(t, e.Waiting("peer_a"))
	assert.True(t, e.Waiting("peer_b"))
}

func TestEngineNeverMixesModes(t *testing.T) {
	e := newTestEngine()
	now := time.Now()
	joined := now.Add(-30 * time.Second)

	video := compatiblePayload()
	video.ChatMode = models.ModeVideo
	text := compatiblePayload()
	text.ChatMode = models.ModeText

	e.Add(profile(t, "video_peer", video), 5, joined)
	e.Add(profile(t, "text_peer", text), 5, joined)

	assert.Nil(t, e.FindMatch("video_peer", now))
	assert.Nil(t, e.FindMatch("text_peer", now))
}

func TestEngineRespectsBlocks(t *testing.T) {
	e := newTestEngine()
	now := time.Now()
	joined := now.Add(-10 * time.Second)

	e.Add(profile(t, "peer_a", compatiblePayload()), 2, joined)
	e.Add(profile(t, "peer_b", compatiblePayload()), 2, joined)

	e.Block("peer_a", "peer_b")

	assert.True(t, e.Blocked("peer_a", "peer_b"))
	assert.True(t, e.Blocked("peer_b", "peer_a"))
	assert.Nil(t, e.FindMatch("peer_a", now))
	assert.Nil(t, e.FindMatch("peer_b", now))
}

func TestEngineBlockSurvivesReadd(t *testing.T) {
	e := newTestEngine()
	now := time.Now()
	joined := now.Add(-10 * time.Second)

	e.Block("peer_a", "peer_b")
	e.Add(profile(t, "peer_a", compatiblePayload()), 2, joined)
	e.Add(profile(t, "peer_b", compatiblePayload()), 2, joined)

	assert.Nil(t, e.FindMatch("peer_a", now))
}

func TestEngineFiltersMutualPreferences(t *testing.T) {
	e := newTestEngine()
	now := time.Now()
	joined := now.Add(-10 * time.Second)

	wantsWomen := compatiblePayload()
	wantsWomen.Gender = models.GenderMale
	wantsWomen.GenderPreference = models.PrefFemale

	man := compatiblePayload()
	man.Gender = models.GenderMale

	e.Add(profile(t, "peer_a", wantsWomen), 2, joined)
	e.Add(profile(t, "peer_b", man), 2, joined)

	assert.Nil(t, e.FindMatch("peer_a", now))
}

func TestEngineFiltersAgeRange(t *testing.T) {
	e := newTestEngine()
	now := time.Now()
	joined := now.Add(-10 * time.Second)

	narrow := compatiblePayload()
	narrow.AgeRange = &models.AgeRange{Min: 20, Max: 30}

	older := compatiblePayload()
	older.Age = 45

	e.Add(profile(t, "peer_a", narrow), 2, joined)
	e.Add(profile(t, "peer_b", older), 2, joined)

	assert.Nil(t, e.FindMatch("peer_a", now))
}

func TestEngineTieBreakIsDeterministic(t *testing.T) {
	e := newTestEngine()
	now := time.Now()
	joined := now.Add(-10 * time.Second)

	// Two identical candidates; the lexicographically smaller id wins.
	e.Add(profile(t, "seeker", compatiblePayload()), 2, joined)
	e.Add(profile(t, "cand_b", compatiblePayload()), 2, joined)
	e.Add(profile(t, "cand_a", compatiblePayload()), 2, joined)

	cand := e.FindMatch("seeker", now)
	require.NotNil(t, cand)
	assert.Equal(t, "cand_a", cand.PartnerID)
}

func TestEnginePremiumWinsTieBreak(t *testing.T) {
	e := newTestEngine()
	now := time.Now()
	joined := now.Add(-10 * time.Second)

	regular := compatiblePayload()
	premium := compatiblePayload()
	premium.Priority = 2.0

	e.Add(profile(t, "seeker", compatiblePayload()), 2, joined)
	e.Add(profile(t, "aaa_regular", regular), 2, joined)
	e.Add(profile(t, "zzz_premium", premium), 2, joined)

	cand := e.FindMatch("seeker", now)
	require.NotNil(t, cand)
	assert.Equal(t, "zzz_premium", cand.PartnerID)
}

func TestEngineHistoryTracking(t *testing.T) {
	e := newTestEngine()

	assert.Equal(t, 0, e.HistoryCount("a", "b"))
	e.RecordMatch("a", "b")
	e.RecordMatch("b", "a")
	assert.Equal(t, 2, e.HistoryCount("a", "b"))
	assert.Equal(t, 2, e.HistoryCount("b", "a"))
}

func TestEngineSnapshot(t *testing.T) {
	e := newTestEngine()
	now := time.Now()

	video := compatiblePayload()
	video.ChatMode = models.ModeVideo

	e.Add(profile(t, "t1", compatiblePayload()), 1, now.Add(-4*time.Second))
	e.Add(profile(t, "v1", video), 3, now.Add(-8*time.Second))
	e.Block("x", "y")

	st := e.Snapshot(now)
	assert.Equal(t, 2, st.Waiting)
	assert.Equal(t, 1, st.TextWaiting)
	assert.Equal(t, 1, st.VideoWaiting)
	assert.Equal(t, 1, st.BlockedPairs)
	assert.Equal(t, 2.0, st.AvgAttempts)
	assert.Equal(t, int64(6000), st.AvgWaitMS)
}

func TestEngineSelfMatchImpossible(t *testing.T) {
	e := newTestEngine()
	now := time.Now()

	e.Add(profile(t, "solo", compatiblePayload()), 5, now.Add(-30*time.Second))

	assert.Nil(t, e.FindMatch("solo", now))
}

func TestEngineRemoveEvictsScores(t *testing.T) {
	e := newTestEngine()
	now := time.Now()
	joined := now.Add(-10 * time.Second)

	e.Add(profile(t, "peer_a", compatiblePayload()), 2, joined)
	e.Add(profile(t, "peer_b", compatiblePayload()), 2, joined)
	e.Remove("peer_b")

	assert.Nil(t, e.FindMatch("peer_a", now))
}
