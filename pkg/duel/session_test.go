package duel

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duelhall/trumpduel/pkg/cards"
)

type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestSession(t *testing.T, seed int64) (*Session, *testClock) {
	t.Helper()
	clock := newTestClock()
	s := New(Config{
		ID:      "sess-test",
		Entropy: rand.New(rand.NewSource(seed)),
		Now:     clock.Now,
		Sleep:   func(time.Duration) {},
	})
	return s, clock
}

// startedSession seats both players and readies them, leaving the session in
// the playing state.
func startedSession(t *testing.T, seed int64) (*Session, *testClock) {
	t.Helper()
	s, clock := newTestSession(t, seed)
	require.NoError(t, s.Join("p1", "Alice"))
	require.NoError(t, s.Join("p2", "Bob"))
	require.NoError(t, s.SetReady("p1"))
	require.NoError(t, s.SetReady("p2"))
	require.Equal(t, StatusPlaying, s.Status())
	return s, clock
}

// suitRun returns the 2..10 cards of a suit, nine cards in rank order.
func suitRun(suit cards.Suit) []cards.Card {
	ranks := []cards.Rank{cards.Two, cards.Three, cards.Four, cards.Five,
		cards.Six, cards.Seven, cards.Eight, cards.Nine, cards.Ten}
	out := make([]cards.Card, 0, len(ranks))
	for _, r := range ranks {
		out = append(out, cards.NewCard(suit, r))
	}
	return out
}

// rigMatch overwrites the dealt hands and trump suit so a test can script
// every round.
func rigMatch(t *testing.T, s *Session, hand1, hand2 []cards.Card, trump cards.Suit) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trumpSuit = trump
	s.players[s.seats[0]].Hand = append([]cards.Card(nil), hand1...)
	s.players[s.seats[1]].Hand = append([]cards.Card(nil), hand2...)
}

func TestSessionLifecycle(t *testing.T) {
	s, clock := newTestSession(t, 1)
	assert.Equal(t, StatusWaiting, s.Status())

	require.NoError(t, s.Join("p1", "Alice"))
	assert.Equal(t, StatusWaiting, s.Status())

	require.NoError(t, s.Join("p2", "Bob"))
	assert.Equal(t, StatusReady, s.Status())

	require.NoError(t, s.SetReady("p1"))
	assert.Equal(t, StatusReady, s.Status(), "one ready flag does not start the match")

	require.NoError(t, s.SetReady("p2"))
	assert.Equal(t, StatusPlaying, s.Status())

	snap := s.Snapshot()
	assert.NotEmpty(t, snap.TrumpSuit)
	assert.Equal(t, 0, snap.CurrentRound)
	assert.Equal(t, clock.Now().Add(DefaultRules().FirstPlayWindow), snap.RoundDeadline)
	require.Len(t, snap.Players, 2)
	for _, p := range snap.Players {
		assert.Len(t, p.Hand, DefaultRules().HandSize)
	}
}

func TestJoinRules(t *testing.T) {
	s, _ := newTestSession(t, 2)

	require.NoError(t, s.Join("p1", "Alice"))
	require.NoError(t, s.Join("p1", "Alice"), "rejoin is a no-op")
	require.NoError(t, s.Join("p2", "Bob"))
	assert.ErrorIs(t, s.Join("p3", "Mallory"), ErrSessionFull)
}

func TestJoinResetsReadyFlags(t *testing.T) {
	s, _ := newTestSession(t, 2)
	require.NoError(t, s.Join("p1", "Alice"))
	require.NoError(t, s.Join("p2", "Bob"))
	require.NoError(t, s.SetReady("p1"))
	require.NoError(t, s.SetUnready("p1"))
	require.NoError(t, s.SetReady("p1"))
	require.NoError(t, s.SetReady("p2"))
	assert.Equal(t, StatusPlaying, s.Status())
}

func TestReadyErrors(t *testing.T) {
	s, _ := newTestSession(t, 3)
	require.NoError(t, s.Join("p1", "Alice"))

	assert.ErrorIs(t, s.SetReady("ghost"), ErrNotInSession)
	assert.ErrorIs(t, s.SetReady("p1"), ErrNotAcceptingReady, "cannot ready before both seats fill")
}

func TestSubmitPlayBeforeMatch(t *testing.T) {
	s, _ := newTestSession(t, 4)
	require.NoError(t, s.Join("p1", "Alice"))
	err := s.SubmitPlay("p1", cards.NewCard(cards.Spades, cards.Ace))
	assert.ErrorIs(t, err, ErrNotPlaying)
}

func TestRoundCommitPatch(t *testing.T) {
	s, clock := startedSession(t, 5)
	rigMatch(t, s, suitRun(cards.Hearts), suitRun(cards.Diamonds), cards.Spades)

	c1 := cards.NewCard(cards.Hearts, cards.Ten)
	c2 := cards.NewCard(cards.Diamonds, cards.Two)

	require.NoError(t, s.SubmitPlay("p1", c1))
	assert.Equal(t, 0, s.CurrentRound(), "round waits for the second play")

	commitTime := clock.Now()
	require.NoError(t, s.SubmitPlay("p2", c2))

	snap := s.Snapshot()
	require.Len(t, snap.Rounds, 1)
	assert.True(t, cards.SameCard(c1, snap.Rounds[0].Player1Card))
	assert.True(t, cards.SameCard(c2, snap.Rounds[0].Player2Card))
	assert.Equal(t, "p1", snap.Rounds[0].WinnerID)
	assert.Equal(t, 1, snap.CurrentRound)

	rules := DefaultRules()
	assert.Equal(t, commitTime.Add(rules.ResultPopup+rules.PlayWindow), snap.RoundDeadline)

	for _, p := range snap.Players {
		assert.Len(t, p.Hand, rules.HandSize-1)
		assert.Len(t, p.CardsPlayed, 1)
		assert.Nil(t, p.CurrentCard)
		assert.Nil(t, p.StagedCard)
	}
	assert.Equal(t, 1, snap.Players[0].RoundsWon)
	assert.Equal(t, 0, snap.Players[1].RoundsWon)
}

func TestDoublePlayRejected(t *testing.T) {
	s, _ := startedSession(t, 6)
	rigMatch(t, s, suitRun(cards.Hearts), suitRun(cards.Diamonds), cards.Spades)

	require.NoError(t, s.SubmitPlay("p1", cards.NewCard(cards.Hearts, cards.Two)))
	err := s.SubmitPlay("p1", cards.NewCard(cards.Hearts, cards.Three))
	assert.ErrorIs(t, err, ErrAlreadyPlayed)
	assert.Empty(t, s.Violations(), "a double play is not a violation")
}

func TestPlayNotInHandIsViolation(t *testing.T) {
	s, _ := startedSession(t, 7)
	rigMatch(t, s, suitRun(cards.Hearts), suitRun(cards.Diamonds), cards.Spades)

	foreign := cards.NewCard(cards.Spades, cards.Ace)
	err := s.SubmitPlay("p1", foreign)
	assert.ErrorIs(t, err, ErrCardNotInHand)

	violations := s.Violations()
	require.Len(t, violations, 1)
	v := violations[0]
	assert.Equal(t, ViolationInvalidPlay, v.Kind)
	assert.Equal(t, "p1", v.PlayerID)
	require.NotNil(t, v.AttemptedCard)
	assert.True(t, cards.SameCard(foreign, *v.AttemptedCard))
	assert.Len(t, v.Hand, DefaultRules().HandSize)

	snap := s.Snapshot()
	assert.Nil(t, snap.Players[0].CurrentCard, "rejected play locks nothing")
	assert.Empty(t, snap.Rounds)
}

func TestEarlyTerminationAtRoundsToWin(t *testing.T) {
	s, _ := startedSession(t, 8)
	// Player 1 holds every trump, so wins every round outright.
	rigMatch(t, s, suitRun(cards.Spades), suitRun(cards.Diamonds), cards.Spades)

	hand1 := suitRun(cards.Spades)
	hand2 := suitRun(cards.Diamonds)
	for i := 0; i < DefaultRules().RoundsToWin; i++ {
		require.NoError(t, s.SubmitPlay("p1", hand1[i]))
		require.NoError(t, s.SubmitPlay("p2", hand2[i]))
	}

	assert.Equal(t, StatusMatchEnd, s.Status())
	assert.Equal(t, "p1", s.MatchWinnerID())

	snap := s.Snapshot()
	assert.Len(t, snap.Rounds, DefaultRules().RoundsToWin)
	assert.Equal(t, DefaultRules().RoundsToWin, snap.Players[0].RoundsWon)
	assert.True(t, snap.RoundDeadline.IsZero(), "no deadline after match end")
	assert.Equal(t, "p1", snap.WinnerID)

	err := s.SubmitPlay("p2", hand2[5])
	assert.ErrorIs(t, err, ErrNotPlaying, "terminal state accepts no plays")
}

func TestAllDrawMatchEndsAtRoundCap(t *testing.T) {
	s, _ := startedSession(t, 9)
	// Matching ranks in non-trump suits draw every round. The match must still
	// terminate at the round cap instead of running past it.
	rigMatch(t, s, suitRun(cards.Hearts), suitRun(cards.Diamonds), cards.Spades)

	hand1 := suitRun(cards.Hearts)
	hand2 := suitRun(cards.Diamonds)
	for i := 0; i < DefaultRules().TotalRounds; i++ {
		require.NoError(t, s.SubmitPlay("p1", hand1[i]))
		require.NoError(t, s.SubmitPlay("p2", hand2[i]))
	}

	assert.Equal(t, StatusMatchEnd, s.Status())
	assert.Equal(t, "", s.MatchWinnerID(), "all draws mean no winner")

	snap := s.Snapshot()
	assert.Len(t, snap.Rounds, DefaultRules().TotalRounds)
	for _, r := range snap.Rounds {
		assert.Empty(t, r.WinnerID)
	}
}

func TestCommitIdempotent(t *testing.T) {
	s, _ := startedSession(t, 10)
	rigMatch(t, s, suitRun(cards.Hearts), suitRun(cards.Diamonds), cards.Spades)

	c1 := cards.NewCard(cards.Hearts, cards.Ten)
	c2 := cards.NewCard(cards.Diamonds, cards.Two)
	require.NoError(t, s.SubmitPlay("p1", c1))
	require.NoError(t, s.SubmitPlay("p2", c2))

	// Re-applying the commit for an already-resolved round changes nothing.
	s.mu.Lock()
	s.commitRoundLocked(0, c1, c2)
	s.mu.Unlock()
	s.maybeCompleteRound()

	snap := s.Snapshot()
	assert.Len(t, snap.Rounds, 1)
	assert.Equal(t, 1, snap.CurrentRound)
	assert.Equal(t, 1, snap.Players[0].RoundsWon)
}

func TestHandConservation(t *testing.T) {
	s, _ := startedSession(t, 11)

	initial := make(map[string]map[string]bool)
	for _, p := range s.Snapshot().Players {
		set := make(map[string]bool)
		for _, c := range p.Hand {
			set[c.String()] = true
		}
		initial[p.ID] = set
	}

	// Play each player's first hand card until the match ends.
	for s.Status() == StatusPlaying {
		snap := s.Snapshot()
		for _, p := range snap.Players {
			if p.CurrentCard == nil && len(p.Hand) > 0 {
				require.NoError(t, s.SubmitPlay(p.ID, p.Hand[0]))
			}
		}
	}

	rules := DefaultRules()
	final := s.Snapshot()
	assert.LessOrEqual(t, len(final.Rounds), rules.TotalRounds)
	for _, p := range final.Players {
		assert.Equal(t, rules.HandSize, len(p.Hand)+len(p.CardsPlayed),
			"every card is in the hand or the history, never both or neither")
		for _, c := range append(append([]cards.Card{}, p.Hand...), p.CardsPlayed...) {
			assert.True(t, initial[p.ID][c.String()], "card %s was not dealt to %s", c, p.ID)
		}
		assert.Len(t, p.CardsPlayed, len(final.Rounds))
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s, _ := startedSession(t, 12)

	snap := s.Snapshot()
	require.NotEmpty(t, snap.Players[0].Hand)
	snap.Players[0].Hand[0] = cards.NewCard(cards.Spades, cards.Ace)
	snap.Seats[0] = "tampered"

	again := s.Snapshot()
	assert.Equal(t, "p1", again.Seats[0])
	assert.NotEqual(t, snap.Players[0].Hand[0], again.Players[0].Hand[0])
}

func TestSessionEvents(t *testing.T) {
	s, _ := newTestSession(t, 13)
	ch := make(chan Event, 64)
	s.SetEventChannel(ch)

	require.NoError(t, s.Join("p1", "Alice"))
	require.NoError(t, s.Join("p2", "Bob"))
	require.NoError(t, s.SetReady("p1"))
	require.NoError(t, s.SetReady("p2"))

	var types []EventType
	for len(ch) > 0 {
		types = append(types, (<-ch).Type)
	}
	assert.Contains(t, types, EventPlayerJoined)
	assert.Contains(t, types, EventReadyChanged)
	assert.Contains(t, types, EventMatchStarted)
}

func TestEventChannelNeverBlocks(t *testing.T) {
	s, _ := newTestSession(t, 14)
	s.SetEventChannel(make(chan Event)) // unbuffered, never drained

	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, s.Join("p1", "Alice"))
		require.NoError(t, s.Join("p2", "Bob"))
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("command blocked on a full event channel")
	}
}
