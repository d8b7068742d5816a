package duel

import (
	"errors"
	"math/rand"
	"time"

	"github.com/duelhall/trumpduel/pkg/cards"
)

type forcedPlay struct {
	playerID string
	card     cards.Card
}

// HandleTimeouts forces a play for every player whose window has expired
// without a locked card. The staged card is used when one is set, otherwise
// the first card of the hand.
//
// Forced plays are submitted through the ordinary validated play path after
// a short random delay, outside the session lock. The delay staggers
// concurrent supervisors; it does not arbitrate them. If another actor locks
// a play or commits the round first, the forced submission loses its
// validation race and is discarded.
func (s *Session) HandleTimeouts(now time.Time) {
	s.mu.Lock()
	if s.Status() != StatusPlaying || s.roundDeadline.IsZero() || now.Before(s.roundDeadline) {
		s.mu.Unlock()
		return
	}

	round := s.currentRound
	var forced []forcedPlay
	for _, id := range s.seats {
		p := s.players[id]
		if p.CurrentCard != nil || len(p.Hand) == 0 {
			continue
		}
		card := p.Hand[0]
		if p.Staged != nil && handContains(p.Hand, *p.Staged) {
			card = *p.Staged
		}
		forced = append(forced, forcedPlay{playerID: id, card: card})
	}
	s.mu.Unlock()

	for _, fp := range forced {
		s.cfg.Sleep(s.jitter())

		err := s.lockPlayInternal(fp.playerID, fp.card, round, false)
		switch {
		case err == nil:
			s.log.Debugf("Session %s: auto-played %s for %s in round %d", s.cfg.ID, fp.card, fp.playerID, round)
			s.maybeCompleteRound()
		case errors.Is(err, ErrAlreadyPlayed), errors.Is(err, ErrNotPlaying), errors.Is(err, ErrCardNotInHand):
			// Lost the race to the player or another sweeper.
		default:
			s.log.Warnf("Session %s: auto-play for %s failed: %v", s.cfg.ID, fp.playerID, err)
		}
	}
}

// jitter returns a uniform random delay within the configured auto-play
// window.
func (s *Session) jitter() time.Duration {
	min := s.cfg.Rules.AutoPlayJitterMin
	max := s.cfg.Rules.AutoPlayJitterMax
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
