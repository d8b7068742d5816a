package cards

import (
	"encoding/json"
	"fmt"
)

// Suit represents a card suit
type Suit string

const (
	Spades   Suit = "♠"
	Hearts   Suit = "♥"
	Diamonds Suit = "♦"
	Clubs    Suit = "♣"
)

// Suits lists every suit in deck-building order.
var Suits = []Suit{Spades, Hearts, Diamonds, Clubs}

// Rank represents a card rank
type Rank string

const (
	Two   Rank = "2"
	Three Rank = "3"
	Four  Rank = "4"
	Five  Rank = "5"
	Six   Rank = "6"
	Seven Rank = "7"
	Eight Rank = "8"
	Nine  Rank = "9"
	Ten   Rank = "10"
	Jack  Rank = "J"
	Queen Rank = "Q"
	King  Rank = "K"
	Ace   Rank = "A"
)

// Ranks lists every rank in ascending value order.
var Ranks = []Rank{Two, Three, Four, Five, Six, Seven, Eight, Nine, Ten, Jack, Queen, King, Ace}

// HighCardValue is the minimum numeric value a card must have to count as a
// high card (Jack or better).
const HighCardValue = 11

// rankValues maps each rank to its numeric value. Numeric ranks carry their
// literal value; J=11, Q=12, K=13, A=14.
var rankValues = map[Rank]int{
	Two: 2, Three: 3, Four: 4, Five: 5, Six: 6, Seven: 7, Eight: 8,
	Nine: 9, Ten: 10, Jack: 11, Queen: 12, King: 13, Ace: 14,
}

// Card represents a playing card. Cards are immutable values; the numeric
// value is derived from the rank and never stored.
type Card struct {
	suit Suit
	rank Rank
}

// NewCard creates a card with the given suit and rank.
func NewCard(suit Suit, rank Rank) Card {
	return Card{suit: suit, rank: rank}
}

// Suit returns the card's suit.
func (c Card) Suit() Suit { return c.suit }

// Rank returns the card's rank.
func (c Card) Rank() Rank { return c.rank }

// Value returns the card's numeric value in [2,14].
func (c Card) Value() int { return rankValues[c.rank] }

// IsHigh reports whether the card is a high card (J, Q, K or A).
func (c Card) IsHigh() bool { return c.Value() >= HighCardValue }

// Zero reports whether the card is the zero value (no suit, no rank).
func (c Card) Zero() bool { return c.suit == "" && c.rank == "" }

// String returns a string representation of the card
func (c Card) String() string {
	return string(c.rank) + string(c.suit)
}

// cardJSON is the wire shape of a card. The value field is included for
// display convenience but is always recomputed from the rank on decode, so a
// client cannot claim an inflated value.
type cardJSON struct {
	Suit  string `json:"suit"`
	Rank  string `json:"rank"`
	Value int    `json:"value"`
}

// MarshalJSON implements json.Marshaler for Card.
func (c Card) MarshalJSON() ([]byte, error) {
	return json.Marshal(cardJSON{
		Suit:  string(c.suit),
		Rank:  string(c.rank),
		Value: c.Value(),
	})
}

// UnmarshalJSON implements json.Unmarshaler for Card.
func (c *Card) UnmarshalJSON(data []byte) error {
	var cj cardJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return err
	}

	suit, err := ParseSuit(cj.Suit)
	if err != nil {
		return err
	}

	rank, err := ParseRank(cj.Rank)
	if err != nil {
		return err
	}

	c.suit = suit
	c.rank = rank
	return nil
}

// ParseSuit converts a string to a Suit, accepting both the suit symbol and
// common spellings.
func ParseSuit(s string) (Suit, error) {
	switch s {
	case "♠", "s", "S", "spade", "spades", "Spades":
		return Spades, nil
	case "♥", "h", "H", "heart", "hearts", "Hearts":
		return Hearts, nil
	case "♦", "d", "D", "diamond", "diamonds", "Diamonds":
		return Diamonds, nil
	case "♣", "c", "C", "club", "clubs", "Clubs":
		return Clubs, nil
	default:
		return "", fmt.Errorf("invalid suit: %s", s)
	}
}

// ParseRank converts a string to a Rank.
func ParseRank(s string) (Rank, error) {
	switch s {
	case "A", "a", "ace", "Ace":
		return Ace, nil
	case "K", "k", "king", "King":
		return King, nil
	case "Q", "q", "queen", "Queen":
		return Queen, nil
	case "J", "j", "jack", "Jack":
		return Jack, nil
	case "10", "T", "t", "ten", "Ten":
		return Ten, nil
	case "9":
		return Nine, nil
	case "8":
		return Eight, nil
	case "7":
		return Seven, nil
	case "6":
		return Six, nil
	case "5":
		return Five, nil
	case "4":
		return Four, nil
	case "3":
		return Three, nil
	case "2":
		return Two, nil
	default:
		return "", fmt.Errorf("invalid rank: %s", s)
	}
}

// SameCard reports whether two cards match by suit and rank. This is the
// identity used everywhere a client-submitted card is compared against an
// authoritative hand.
func SameCard(a, b Card) bool {
	return a.suit == b.suit && a.rank == b.rank
}

// HandValue returns the summed numeric value of a hand.
func HandValue(hand []Card) int {
	sum := 0
	for _, c := range hand {
		sum += c.Value()
	}
	return sum
}

// CountSuit returns how many cards in the hand carry the given suit.
func CountSuit(hand []Card, suit Suit) int {
	n := 0
	for _, c := range hand {
		if c.suit == suit {
			n++
		}
	}
	return n
}

// CountHigh returns how many high cards (value >= 11) the hand contains.
func CountHigh(hand []Card) int {
	n := 0
	for _, c := range hand {
		if c.IsHigh() {
			n++
		}
	}
	return n
}
