package duel

import (
	"time"

	"github.com/duelhall/trumpduel/pkg/cards"
)

// ViolationKind classifies an audit record.
type ViolationKind string

const (
	// ViolationInvalidPlay records a play of a card that was not in the
	// player's authoritative hand.
	ViolationInvalidPlay ViolationKind = "invalid_play"

	// ViolationProtectedField records a client write to a field only the
	// arbitration path may mutate.
	ViolationProtectedField ViolationKind = "protected_field"
)

// Violation is one audit record. Recording it is an observability side
// effect; session state is unchanged by the attempt it describes.
type Violation struct {
	SessionID      string
	PlayerID       string
	Kind           ViolationKind
	Field          string      // protected-field violations only
	AttemptedCard  *cards.Card // invalid-play violations only
	AttemptedValue string      // raw value of a rejected field write
	Hand           []cards.Card // authoritative hand at the time of the attempt
	Timestamp      time.Time
}

// AuditLog receives violation records for durable storage. Implementations
// must not block for long: records are written from the command path.
type AuditLog interface {
	RecordViolation(v Violation)
}

// recordViolationLocked appends the violation to the session's in-memory
// audit trail, forwards it to the configured sink, and publishes it.
// Assumes lock is held by caller.
func (s *Session) recordViolationLocked(v Violation) {
	v.SessionID = s.cfg.ID
	if v.Timestamp.IsZero() {
		v.Timestamp = s.now()
	}
	s.violations = append(s.violations, v)
	if s.cfg.Audit != nil {
		s.cfg.Audit.RecordViolation(v)
	}
	s.log.Warnf("Session %s: %s violation by player %s", s.cfg.ID, v.Kind, v.PlayerID)
	s.events.publish(Event{
		Type:      EventViolation,
		SessionID: s.cfg.ID,
		PlayerID:  v.PlayerID,
		Round:     s.currentRound,
		Payload:   v,
		Timestamp: v.Timestamp,
	})
}

// Violations returns a copy of the session's audit trail.
func (s *Session) Violations() []Violation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Violation, len(s.violations))
	copy(out, s.violations)
	return out
}
