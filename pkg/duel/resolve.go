package duel

import "github.com/duelhall/trumpduel/pkg/cards"

// Outcome is the result of resolving one round.
type Outcome int

const (
	OutcomeDraw Outcome = iota
	OutcomeFirstWins
	OutcomeSecondWins
)

// String returns a readable outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeFirstWins:
		return "first_wins"
	case OutcomeSecondWins:
		return "second_wins"
	default:
		return "draw"
	}
}

// Swapped returns the outcome as seen with the two cards interchanged.
func (o Outcome) Swapped() Outcome {
	switch o {
	case OutcomeFirstWins:
		return OutcomeSecondWins
	case OutcomeSecondWins:
		return OutcomeFirstWins
	default:
		return OutcomeDraw
	}
}

// Resolve determines the winner of a round. Pure, total, and symmetric under
// interchange of the two cards.
//
// A lone trump card wins outright. Otherwise the higher value wins and equal
// values draw; there is no suit ranking among non-trumps, so two equal-value
// cards of different suits draw. Two identical cards cannot come from a
// single deck but resolve to a draw all the same.
func Resolve(first, second cards.Card, trump cards.Suit) Outcome {
	firstTrump := first.Suit() == trump
	secondTrump := second.Suit() == trump

	switch {
	case firstTrump && !secondTrump:
		return OutcomeFirstWins
	case secondTrump && !firstTrump:
		return OutcomeSecondWins
	}

	switch {
	case first.Value() > second.Value():
		return OutcomeFirstWins
	case second.Value() > first.Value():
		return OutcomeSecondWins
	default:
		return OutcomeDraw
	}
}
