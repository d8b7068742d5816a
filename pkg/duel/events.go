package duel

import (
	"time"

	"github.com/duelhall/trumpduel/pkg/cards"
)

// EventType represents the type of session event.
type EventType string

const (
	EventPlayerJoined  EventType = "player_joined"
	EventReadyChanged  EventType = "ready_changed"
	EventMatchStarted  EventType = "match_started"
	EventPlayLocked    EventType = "play_locked"
	EventRoundResolved EventType = "round_resolved"
	EventMatchEnded    EventType = "match_ended"
	EventViolation     EventType = "violation"
	EventDealFallback  EventType = "deal_fallback"
)

// Event is an immutable record of something that happened in a session. The
// transport layer subscribes to these to drive client updates; the server's
// event workers persist the durable ones.
type Event struct {
	Type      EventType
	SessionID string
	PlayerID  string // acting player, when there is one
	Round     int
	Payload   interface{}
	Timestamp time.Time
}

// MatchStartedPayload accompanies EventMatchStarted.
type MatchStartedPayload struct {
	TrumpSuit cards.Suit
	Deal      DealReport
	Seats     []string
}

// RoundResolvedPayload accompanies EventRoundResolved.
type RoundResolvedPayload struct {
	Result RoundResult
}

// MatchEndedPayload accompanies EventMatchEnded.
type MatchEndedPayload struct {
	WinnerID string // empty on a drawn match
	Scores   map[string]int
	Seats    []string
	Stake    int64
}

// eventManager delivers events to an optional channel without ever blocking
// session commands. A full or absent channel drops the event.
type eventManager struct {
	ch chan<- Event
}

func (em *eventManager) setChannel(ch chan<- Event) {
	em.ch = ch
}

func (em *eventManager) publish(ev Event) {
	if em.ch == nil {
		return
	}
	select {
	case em.ch <- ev:
	default:
		// Channel full or closed; the event is dropped. Snapshots are pulled,
		// not pushed, so a dropped notification is not a correctness problem.
	}
}
