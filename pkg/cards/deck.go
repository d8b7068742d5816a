package cards

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

// DeckSize is the number of cards in a full deck.
const DeckSize = 52

// Deck represents an ordered deck of cards backed by an entropy source.
type Deck struct {
	cards   []Card
	entropy io.Reader
}

// NewDeck creates a full 52-card deck and shuffles it with the given entropy
// source. Passing nil selects crypto/rand, which is the correct choice for
// real matches: players have an adversarial incentive to predict deals. Tests
// pass a seeded math/rand Rand, which satisfies io.Reader.
func NewDeck(entropy io.Reader) (*Deck, error) {
	if entropy == nil {
		entropy = crand.Reader
	}

	deck := &Deck{
		cards:   make([]Card, 0, DeckSize),
		entropy: entropy,
	}
	for _, suit := range Suits {
		for _, rank := range Ranks {
			deck.cards = append(deck.cards, Card{suit: suit, rank: rank})
		}
	}

	if err := deck.Shuffle(); err != nil {
		return nil, err
	}
	return deck, nil
}

// Shuffle randomizes the order of cards in the deck using a Fisher-Yates
// permutation driven by unbiased draws from the entropy source.
func (d *Deck) Shuffle() error {
	for i := len(d.cards) - 1; i > 0; i-- {
		j, err := uniformInt(d.entropy, i+1)
		if err != nil {
			return fmt.Errorf("shuffle: %w", err)
		}
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
	return nil
}

// uniformInt returns a uniformly distributed integer in [0,n) read from r.
// Draws that would introduce modulo bias are rejected and retried.
func uniformInt(r io.Reader, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("uniformInt: non-positive bound %d", n)
	}
	max := uint64(n)
	// Largest multiple of n no greater than 2^32; draws at or above it are
	// rejected so every residue is equally likely.
	limit := (uint64(1) << 32) / max * max
	var buf [4]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		v := uint64(binary.BigEndian.Uint32(buf[:]))
		if v >= limit {
			continue
		}
		return int(v % max), nil
	}
}

// PickSuit returns a uniformly random suit from the entropy source. Used for
// trump selection at deal time.
func PickSuit(entropy io.Reader) (Suit, error) {
	if entropy == nil {
		entropy = crand.Reader
	}
	i, err := uniformInt(entropy, len(Suits))
	if err != nil {
		return "", fmt.Errorf("pick suit: %w", err)
	}
	return Suits[i], nil
}

// Draw removes and returns the top card from the deck
func (d *Deck) Draw() (Card, bool) {
	if len(d.cards) == 0 {
		return Card{}, false
	}
	card := d.cards[0]
	d.cards = d.cards[1:]
	return card, true
}

// Take removes and returns the top n cards from the deck.
func (d *Deck) Take(n int) ([]Card, bool) {
	if n < 0 || n > len(d.cards) {
		return nil, false
	}
	taken := make([]Card, n)
	copy(taken, d.cards[:n])
	d.cards = d.cards[n:]
	return taken, true
}

// Size returns the number of cards remaining in the deck
func (d *Deck) Size() int {
	return len(d.cards)
}

// Cards returns the remaining cards in deck order.
func (d *Deck) Cards() []Card {
	out := make([]Card, len(d.cards))
	copy(out, d.cards)
	return out
}
