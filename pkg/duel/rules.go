package duel

import "time"

// MaxPlayers is the number of participants in a duel. The engine supports
// exactly two.
const MaxPlayers = 2

// Rules holds the named configuration constants for a match. Zero values are
// replaced with the defaults when a session is created, so callers only set
// what they want to override.
type Rules struct {
	TotalRounds int // rounds per match
	RoundsToWin int // round wins that end the match early
	HandSize    int // cards dealt to each player

	// Fair-deal balance constraints.
	MinHandValue       int // lower bound on a hand's summed card value
	MaxHandValue       int // upper bound on a hand's summed card value
	MaxValueDifference int // max allowed |sum(hand1) - sum(hand2)|
	MinHighCards       int // minimum J-or-better cards per hand
	MaxDealAttempts    int // reshuffle budget before the unchecked fallback

	// Round timing. The first round opens immediately; later rounds show the
	// previous result for ResultPopup before the play window starts, so their
	// deadline is ResultPopup+PlayWindow after the commit.
	FirstPlayWindow time.Duration
	PlayWindow      time.Duration
	ResultPopup     time.Duration

	// Auto-play jitter applied by the timer supervisor before it writes a
	// forced play. Reduces, but does not guarantee against, two sweepers
	// committing simultaneously; correctness rests on the arbiter.
	AutoPlayJitterMin time.Duration
	AutoPlayJitterMax time.Duration

	SweepInterval time.Duration // timer sweep period

	Stake int64 // per-player stake debited at seat time; winner takes the pot
}

// DefaultRules returns the standard match configuration.
func DefaultRules() Rules {
	return Rules{
		TotalRounds:        9,
		RoundsToWin:        5,
		HandSize:           9,
		MinHandValue:       55,
		MaxHandValue:       90,
		MaxValueDifference: 8,
		MinHighCards:       1,
		MaxDealAttempts:    100,
		FirstPlayWindow:    15 * time.Second,
		PlayWindow:         15 * time.Second,
		ResultPopup:        5 * time.Second,
		AutoPlayJitterMin:  100 * time.Millisecond,
		AutoPlayJitterMax:  200 * time.Millisecond,
		SweepInterval:      time.Second,
		Stake:              100,
	}
}

// withDefaults fills zero-valued fields from DefaultRules.
func (r Rules) withDefaults() Rules {
	d := DefaultRules()
	if r.TotalRounds == 0 {
		r.TotalRounds = d.TotalRounds
	}
	if r.RoundsToWin == 0 {
		r.RoundsToWin = d.RoundsToWin
	}
	if r.HandSize == 0 {
		r.HandSize = d.HandSize
	}
	if r.MinHandValue == 0 {
		r.MinHandValue = d.MinHandValue
	}
	if r.MaxHandValue == 0 {
		r.MaxHandValue = d.MaxHandValue
	}
	if r.MaxValueDifference == 0 {
		r.MaxValueDifference = d.MaxValueDifference
	}
	if r.MinHighCards == 0 {
		r.MinHighCards = d.MinHighCards
	}
	if r.MaxDealAttempts == 0 {
		r.MaxDealAttempts = d.MaxDealAttempts
	}
	if r.FirstPlayWindow == 0 {
		r.FirstPlayWindow = d.FirstPlayWindow
	}
	if r.PlayWindow == 0 {
		r.PlayWindow = d.PlayWindow
	}
	if r.ResultPopup == 0 {
		r.ResultPopup = d.ResultPopup
	}
	if r.AutoPlayJitterMin == 0 {
		r.AutoPlayJitterMin = d.AutoPlayJitterMin
	}
	if r.AutoPlayJitterMax == 0 {
		r.AutoPlayJitterMax = d.AutoPlayJitterMax
	}
	if r.SweepInterval == 0 {
		r.SweepInterval = d.SweepInterval
	}
	return r
}
