package duel

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duelhall/trumpduel/pkg/cards"
)

func TestHandleTimeoutsBeforeDeadline(t *testing.T) {
	s, clock := startedSession(t, 20)

	s.HandleTimeouts(clock.Now())
	snap := s.Snapshot()
	assert.Empty(t, snap.Rounds)
	for _, p := range snap.Players {
		assert.Nil(t, p.CurrentCard)
	}
}

func TestHandleTimeoutsForcesBothPlays(t *testing.T) {
	s, clock := startedSession(t, 21)
	rigMatch(t, s, suitRun(cards.Hearts), suitRun(cards.Diamonds), cards.Spades)

	clock.Advance(DefaultRules().FirstPlayWindow)
	s.HandleTimeouts(clock.Now())

	snap := s.Snapshot()
	require.Len(t, snap.Rounds, 1, "both forced plays complete the round")
	assert.True(t, cards.SameCard(cards.NewCard(cards.Hearts, cards.Two), snap.Rounds[0].Player1Card),
		"auto-play uses the first hand card")
	assert.True(t, cards.SameCard(cards.NewCard(cards.Diamonds, cards.Two), snap.Rounds[0].Player2Card))
	assert.Empty(t, s.Violations(), "forced plays are legitimate plays")
}

func TestHandleTimeoutsPrefersStagedCard(t *testing.T) {
	s, clock := startedSession(t, 22)
	rigMatch(t, s, suitRun(cards.Hearts), suitRun(cards.Diamonds), cards.Spades)

	staged := cards.NewCard(cards.Hearts, cards.Nine)
	require.NoError(t, s.StageCard("p1", staged))

	clock.Advance(DefaultRules().FirstPlayWindow)
	s.HandleTimeouts(clock.Now())

	snap := s.Snapshot()
	require.Len(t, snap.Rounds, 1)
	assert.True(t, cards.SameCard(staged, snap.Rounds[0].Player1Card))
}

func TestHandleTimeoutsOnlyForcesIdlePlayer(t *testing.T) {
	s, clock := startedSession(t, 23)
	rigMatch(t, s, suitRun(cards.Hearts), suitRun(cards.Diamonds), cards.Spades)

	chosen := cards.NewCard(cards.Hearts, cards.Seven)
	require.NoError(t, s.SubmitPlay("p1", chosen))

	clock.Advance(DefaultRules().FirstPlayWindow)
	s.HandleTimeouts(clock.Now())

	snap := s.Snapshot()
	require.Len(t, snap.Rounds, 1)
	assert.True(t, cards.SameCard(chosen, snap.Rounds[0].Player1Card),
		"a locked play is never overwritten by the supervisor")
}

func TestHandleTimeoutsConcurrentSweeps(t *testing.T) {
	s, clock := startedSession(t, 24)
	rigMatch(t, s, suitRun(cards.Hearts), suitRun(cards.Diamonds), cards.Spades)

	clock.Advance(DefaultRules().FirstPlayWindow)
	now := clock.Now()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.HandleTimeouts(now)
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Len(t, snap.Rounds, 1, "racing sweepers commit the round exactly once")
	assert.Equal(t, 1, snap.CurrentRound)
	assert.Empty(t, s.Violations(), "a sweeper losing the race is not a violation")
	for _, p := range snap.Players {
		assert.Len(t, p.CardsPlayed, 1)
		assert.Len(t, p.Hand, DefaultRules().HandSize-1)
	}
}

func TestHandleTimeoutsAfterMatchEnd(t *testing.T) {
	s, clock := startedSession(t, 25)
	rigMatch(t, s, suitRun(cards.Spades), suitRun(cards.Diamonds), cards.Spades)

	hand1 := suitRun(cards.Spades)
	hand2 := suitRun(cards.Diamonds)
	for i := 0; i < DefaultRules().RoundsToWin; i++ {
		require.NoError(t, s.SubmitPlay("p1", hand1[i]))
		require.NoError(t, s.SubmitPlay("p2", hand2[i]))
	}
	require.Equal(t, StatusMatchEnd, s.Status())

	clock.Advance(time.Hour)
	s.HandleTimeouts(clock.Now())
	assert.Len(t, s.Snapshot().Rounds, DefaultRules().RoundsToWin)
}
