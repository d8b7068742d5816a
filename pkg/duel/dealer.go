package duel

import (
	"fmt"
	"io"

	"github.com/duelhall/trumpduel/pkg/cards"
)

// DealReport describes how a deal went: how many shuffles were needed and
// whether the balance constraints had to be abandoned.
type DealReport struct {
	Attempts int  `json:"attempts"`
	Fallback bool `json:"fallback"`
}

// Deal shuffles a full deck and splits the top cards into two hands that
// satisfy the balance constraints in rules. If no balanced split is found
// within rules.MaxDealAttempts shuffles, the last split is returned anyway
// with Fallback set: a match must always be able to start, so fairness is
// best-effort within the retry budget.
//
// Deal is pure given the entropy source; nil entropy selects crypto/rand.
func Deal(entropy io.Reader, trump cards.Suit, rules Rules) (hand1, hand2 []cards.Card, report DealReport, err error) {
	for attempt := 1; attempt <= rules.MaxDealAttempts; attempt++ {
		deck, derr := cards.NewDeck(entropy)
		if derr != nil {
			return nil, nil, report, fmt.Errorf("deal: %w", derr)
		}
		hand1, _ = deck.Take(rules.HandSize)
		hand2, _ = deck.Take(rules.HandSize)
		report.Attempts = attempt

		if balanced(hand1, hand2, trump, rules) {
			return hand1, hand2, report, nil
		}
	}

	// Unchecked fallback: the last shuffle's split stands.
	report.Fallback = true
	return hand1, hand2, report, nil
}

// balanced reports whether the two hands satisfy every fair-distribution
// constraint for the given trump suit.
func balanced(hand1, hand2 []cards.Card, trump cards.Suit, rules Rules) bool {
	sum1 := cards.HandValue(hand1)
	sum2 := cards.HandValue(hand2)

	if sum1 < rules.MinHandValue || sum1 > rules.MaxHandValue {
		return false
	}
	if sum2 < rules.MinHandValue || sum2 > rules.MaxHandValue {
		return false
	}

	diff := sum1 - sum2
	if diff < 0 {
		diff = -diff
	}
	if diff > rules.MaxValueDifference {
		return false
	}

	if cards.CountSuit(hand1, trump) != cards.CountSuit(hand2, trump) {
		return false
	}

	if cards.CountHigh(hand1) < rules.MinHighCards || cards.CountHigh(hand2) < rules.MinHighCards {
		return false
	}

	return true
}
