package duel

import (
	"time"

	"github.com/duelhall/trumpduel/pkg/cards"
)

// PlayerSnapshot is a point-in-time copy of one seat.
type PlayerSnapshot struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Hand        []cards.Card `json:"hand"`
	CurrentCard *cards.Card  `json:"currentCard,omitempty"`
	StagedCard  *cards.Card  `json:"stagedCard,omitempty"`
	CardsPlayed []cards.Card `json:"cardsPlayed"`
	RoundsWon   int          `json:"roundsWon"`
	Ready       bool         `json:"ready"`
	JoinedAt    time.Time    `json:"joinedAt"`
}

// SessionSnapshot is a deep copy of the full session state. Readers get a
// consistent view taken under the session lock and can hold it indefinitely
// without blocking gameplay.
type SessionSnapshot struct {
	ID            string           `json:"id"`
	Status        Status           `json:"status"`
	TrumpSuit     cards.Suit       `json:"trumpSuit,omitempty"`
	CurrentRound  int              `json:"currentRound"`
	RoundDeadline time.Time        `json:"roundDeadline,omitempty"`
	Seats         []string         `json:"seats"`
	Players       []PlayerSnapshot `json:"players"`
	Rounds        []RoundResult    `json:"rounds"`
	Deal          DealReport       `json:"deal"`
	WinnerID      string           `json:"winnerId,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// Snapshot returns a deep copy of the session state. Nothing in the returned
// value aliases session-owned memory.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := SessionSnapshot{
		ID:            s.cfg.ID,
		Status:        s.Status(),
		TrumpSuit:     s.trumpSuit,
		CurrentRound:  s.currentRound,
		RoundDeadline: s.roundDeadline,
		Seats:         append([]string(nil), s.seats...),
		Rounds:        append([]RoundResult(nil), s.rounds...),
		Deal:          s.lastDeal,
		CreatedAt:     s.createdAt,
	}
	if snap.Status == StatusMatchEnd {
		snap.WinnerID = s.matchWinnerLocked()
	}

	snap.Players = make([]PlayerSnapshot, 0, len(s.seats))
	for _, id := range s.seats {
		p := s.players[id]
		ps := PlayerSnapshot{
			ID:          p.ID,
			Name:        p.Name,
			Hand:        append([]cards.Card(nil), p.Hand...),
			CardsPlayed: append([]cards.Card(nil), p.CardsPlayed...),
			RoundsWon:   p.RoundsWon,
			Ready:       p.Ready,
			JoinedAt:    p.JoinedAt,
		}
		if p.CurrentCard != nil {
			c := *p.CurrentCard
			ps.CurrentCard = &c
		}
		if p.Staged != nil {
			c := *p.Staged
			ps.StagedCard = &c
		}
		snap.Players = append(snap.Players, ps)
	}
	return snap
}

// Seats returns the player ids in seat order.
func (s *Session) Seats() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seats...)
}

// TrumpSuit returns the match's trump suit, or "" before the deal.
func (s *Session) TrumpSuit() cards.Suit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trumpSuit
}

// CurrentRound returns the zero-based index of the round in progress.
func (s *Session) CurrentRound() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentRound
}

// RoundDeadline returns the active deadline, or the zero time when none is
// armed.
func (s *Session) RoundDeadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roundDeadline
}
