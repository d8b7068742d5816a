package duel

import (
	"encoding/json"
	"fmt"

	"github.com/duelhall/trumpduel/pkg/cards"
)

// Field names accepted by ApplyFieldWrite. Writable fields are routed to the
// matching command; every other known field belongs to the arbitration path
// and is protected.
const (
	FieldReady       = "ready"
	FieldCurrentCard = "currentCard"
	FieldStagedCard  = "stagedCard"
)

// protectedFields are session and player fields only the engine may mutate.
// A client write to any of these is discarded and audited.
var protectedFields = map[string]bool{
	"trumpSuit":     true,
	"currentRound":  true,
	"roundDeadline": true,
	"rounds":        true,
	"status":        true,
	"hand":          true,
	"roundsWon":     true,
	"cardsPlayed":   true,
	"winnerId":      true,
}

// IsProtectedField reports whether the named field may only be written by
// the engine.
func IsProtectedField(field string) bool {
	return protectedFields[field]
}

// ApplyFieldWrite is the ingress guard for document-style client updates. A
// write to a writable field is translated into the corresponding validated
// command. A write to a protected field is dropped, recorded in the audit
// trail, and reported as success: the caller sees its write accepted while
// the authoritative state is unchanged, which is exactly what a subsequent
// snapshot shows.
func (s *Session) ApplyFieldWrite(playerID, field string, value json.RawMessage) error {
	if IsProtectedField(field) {
		s.mu.Lock()
		s.recordViolationLocked(Violation{
			PlayerID:       playerID,
			Kind:           ViolationProtectedField,
			Field:          field,
			AttemptedValue: string(value),
		})
		s.mu.Unlock()
		return nil
	}

	switch field {
	case FieldReady:
		var ready bool
		if err := json.Unmarshal(value, &ready); err != nil {
			return fmt.Errorf("field %s: %w", field, err)
		}
		if ready {
			return s.SetReady(playerID)
		}
		return s.SetUnready(playerID)

	case FieldCurrentCard:
		var card cards.Card
		if err := json.Unmarshal(value, &card); err != nil {
			return fmt.Errorf("field %s: %w", field, err)
		}
		return s.SubmitPlay(playerID, card)

	case FieldStagedCard:
		var card cards.Card
		if err := json.Unmarshal(value, &card); err != nil {
			return fmt.Errorf("field %s: %w", field, err)
		}
		return s.StageCard(playerID, card)

	default:
		return fmt.Errorf("unknown field %q", field)
	}
}
