package duel

import "errors"

// Errors surfaced by session commands. Round-completion conflicts and the
// dealer's fairness fallback are deliberately not errors: the first actor to
// resolve a round wins the race and later actors skip silently, and a match
// must always be able to start even when no balanced deal was found.
var (
	// ErrSessionFull is returned when a join would exceed two players.
	ErrSessionFull = errors.New("session is full")

	// ErrNotInSession is returned for commands from an unknown player id.
	ErrNotInSession = errors.New("player not in session")

	// ErrNotAcceptingReady is returned when a ready flag is set outside the
	// ready phase.
	ErrNotAcceptingReady = errors.New("session is not awaiting ready confirmations")

	// ErrNotPlaying is returned for plays submitted outside the playing phase.
	ErrNotPlaying = errors.New("session is not accepting plays")

	// ErrAlreadyPlayed is returned when a player already has a locked play for
	// the current round.
	ErrAlreadyPlayed = errors.New("play already locked for this round")

	// ErrCardNotInHand is returned when the submitted card is not present in
	// the player's authoritative hand. The attempt is also recorded in the
	// violation audit log.
	ErrCardNotInHand = errors.New("card not in authoritative hand")
)
