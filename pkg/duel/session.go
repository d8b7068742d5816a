package duel

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/duelhall/trumpduel/pkg/cards"
	"github.com/duelhall/trumpduel/pkg/statemachine"
)

// Status is the lifecycle phase of a session.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusReady    Status = "ready"
	StatusPlaying  Status = "playing"
	StatusMatchEnd Status = "match_end"
)

// Player is one seat in a duel. Player records are owned exclusively by the
// session that contains them: the hand, locked play, history and score are
// mutated only by the dealer (once) and the round-commit path, never by a
// direct client write.
type Player struct {
	ID          string
	Name        string
	Hand        []cards.Card
	CurrentCard *cards.Card // locked play for the current round, nil otherwise
	Staged      *cards.Card // client-selected but not locked; auto-play prefers it
	CardsPlayed []cards.Card
	RoundsWon   int
	Ready       bool
	JoinedAt    time.Time
}

// RoundResult records the resolution of one round. Results are append-only
// and written exactly once per round index by the commit path.
type RoundResult struct {
	Player1Card cards.Card `json:"player1Card"`
	Player2Card cards.Card `json:"player2Card"`
	WinnerID    string     `json:"winnerId,omitempty"` // empty on a draw
	Timestamp   time.Time  `json:"timestamp"`
}

// SessionStateFn is a session lifecycle state function.
type SessionStateFn = statemachine.StateFn[Session]

// Config holds the collaborators and constants for a new session.
type Config struct {
	ID      string
	Log     slog.Logger
	Rules   Rules
	Entropy io.Reader // nil selects crypto/rand
	Audit   AuditLog  // optional durable sink for violations

	// Now and Sleep are injectable for tests; nil selects the real clock.
	Now   func() time.Time
	Sleep func(time.Duration)
}

// Session is the authoritative aggregate for one duel. All commands
// serialize on the session mutex, which is what makes the round-commit
// contract structural: within one process there is exactly one writer at a
// time, and the commit itself is additionally written to be a no-op when
// re-applied, since triggering actors (either player, the timer sweep) race
// to observe the same completion predicate.
type Session struct {
	cfg Config
	log slog.Logger

	mu            sync.Mutex
	createdAt     time.Time
	trumpSuit     cards.Suit // "" until dealt, immutable afterwards
	currentRound  int
	roundDeadline time.Time // zero when no deadline is armed
	seats         []string  // player ids in seat order
	players       map[string]*Player
	rounds        []RoundResult
	violations    []Violation
	lastDeal      DealReport

	machine *statemachine.Machine[Session]
	events  *eventManager
}

// New creates a session in the waiting state.
func New(cfg Config) *Session {
	cfg.Rules = cfg.Rules.withDefaults()
	if cfg.Log == nil {
		cfg.Log = slog.Disabled
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}

	s := &Session{
		cfg:     cfg,
		log:     cfg.Log,
		players: make(map[string]*Player),
		events:  &eventManager{},
	}
	s.createdAt = cfg.Now()
	s.machine = statemachine.New(s, sessionStateWaiting)
	return s
}

// SetEventChannel attaches the channel session events are published to.
func (s *Session) SetEventChannel(ch chan<- Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events.setChannel(ch)
}

// Lifecycle state functions. Transitions are driven by commands dispatching
// the target state; the functions themselves only encode which advances are
// automatic.

func sessionStateWaiting(s *Session) SessionStateFn {
	if len(s.players) == MaxPlayers {
		return sessionStateReady
	}
	return sessionStateWaiting
}

func sessionStateReady(s *Session) SessionStateFn {
	// Waits for both ready flags; SetReady dispatches sessionStatePlaying.
	return sessionStateReady
}

func sessionStatePlaying(s *Session) SessionStateFn {
	return sessionStatePlaying
}

func sessionStateMatchEnd(s *Session) SessionStateFn {
	// Terminal. The aggregate is retained for display until purged.
	return sessionStateMatchEnd
}

// Status returns the current lifecycle phase.
func (s *Session) Status() Status {
	current := s.machine.Current()
	if current == nil {
		return StatusMatchEnd
	}
	switch fmt.Sprintf("%p", current) {
	case fmt.Sprintf("%p", SessionStateFn(sessionStateWaiting)):
		return StatusWaiting
	case fmt.Sprintf("%p", SessionStateFn(sessionStateReady)):
		return StatusReady
	case fmt.Sprintf("%p", SessionStateFn(sessionStatePlaying)):
		return StatusPlaying
	default:
		return StatusMatchEnd
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.cfg.ID }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Rules returns the session's configuration constants.
func (s *Session) Rules() Rules { return s.cfg.Rules }

// LastDeal reports how the most recent deal went.
func (s *Session) LastDeal() DealReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDeal
}

func (s *Session) now() time.Time { return s.cfg.Now() }

// Join seats a player. Joining again with the same id is a no-op, so the
// command is safe to retry. Any successful join resets both ready flags to
// force re-confirmation.
func (s *Session) Join(playerID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.players[playerID]; ok {
		return nil
	}
	if len(s.players) >= MaxPlayers {
		return ErrSessionFull
	}

	p := &Player{
		ID:       playerID,
		Name:     name,
		JoinedAt: s.now(),
	}
	s.players[playerID] = p
	s.seats = append(s.seats, playerID)

	for _, pl := range s.players {
		pl.Ready = false
	}

	// Let the waiting state advance to ready once the second seat fills.
	s.machine.Step()

	s.log.Infof("Session %s: player %s (%s) joined, status=%s", s.cfg.ID, playerID, name, s.Status())
	s.events.publish(Event{
		Type:      EventPlayerJoined,
		SessionID: s.cfg.ID,
		PlayerID:  playerID,
		Timestamp: s.now(),
	})
	return nil
}

// SetReady marks a player ready. When both players are ready the match
// starts: the dealer runs, the trump suit is fixed, and the first round's
// deadline is armed.
func (s *Session) SetReady(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.players[playerID]
	if p == nil {
		return ErrNotInSession
	}
	if s.Status() != StatusReady {
		return ErrNotAcceptingReady
	}

	p.Ready = true
	s.events.publish(Event{
		Type:      EventReadyChanged,
		SessionID: s.cfg.ID,
		PlayerID:  playerID,
		Timestamp: s.now(),
	})

	for _, pl := range s.players {
		if !pl.Ready {
			return nil
		}
	}
	return s.startMatchLocked()
}

// SetUnready withdraws a ready confirmation before the match starts.
func (s *Session) SetUnready(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.players[playerID]
	if p == nil {
		return ErrNotInSession
	}
	if s.Status() != StatusReady {
		return ErrNotAcceptingReady
	}
	p.Ready = false
	s.events.publish(Event{
		Type:      EventReadyChanged,
		SessionID: s.cfg.ID,
		PlayerID:  playerID,
		Timestamp: s.now(),
	})
	return nil
}

// startMatchLocked picks the trump suit, deals both hands and enters the
// playing phase. Assumes lock is held by caller.
func (s *Session) startMatchLocked() error {
	trump, err := cards.PickSuit(s.cfg.Entropy)
	if err != nil {
		return fmt.Errorf("start match: %w", err)
	}

	hand1, hand2, report, err := Deal(s.cfg.Entropy, trump, s.cfg.Rules)
	if err != nil {
		return fmt.Errorf("start match: %w", err)
	}

	s.trumpSuit = trump
	s.lastDeal = report
	s.players[s.seats[0]].Hand = hand1
	s.players[s.seats[1]].Hand = hand2
	s.currentRound = 0
	s.rounds = nil
	// No popup delay ahead of round 0.
	s.roundDeadline = s.now().Add(s.cfg.Rules.FirstPlayWindow)

	s.machine.Dispatch(sessionStatePlaying)

	if report.Fallback {
		s.log.Warnf("Session %s: no balanced deal within %d attempts, starting with unchecked split", s.cfg.ID, report.Attempts)
		s.events.publish(Event{
			Type:      EventDealFallback,
			SessionID: s.cfg.ID,
			Payload:   report,
			Timestamp: s.now(),
		})
	}

	s.log.Infof("Session %s: match started, trump=%s, deal attempts=%d", s.cfg.ID, trump, report.Attempts)
	s.events.publish(Event{
		Type:      EventMatchStarted,
		SessionID: s.cfg.ID,
		Payload: MatchStartedPayload{
			TrumpSuit: trump,
			Deal:      report,
			Seats:     append([]string(nil), s.seats...),
		},
		Timestamp: s.now(),
	})
	return nil
}

// SubmitPlay validates and locks a play for the current round, then runs the
// round-completion check. This is the single entry point for plays: client
// submissions and the timer supervisor's forced plays both come through here.
func (s *Session) SubmitPlay(playerID string, card cards.Card) error {
	if err := s.lockPlay(playerID, card); err != nil {
		return err
	}
	s.maybeCompleteRound()
	return nil
}

// StageCard remembers a selected-but-unlocked card. The timer supervisor
// plays it in preference to the first hand card if the deadline passes. A
// stale selection is validated again at auto-play time, so staging does not
// bypass the play validator.
func (s *Session) StageCard(playerID string, card cards.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.players[playerID]
	if p == nil {
		return ErrNotInSession
	}
	if s.Status() != StatusPlaying {
		return ErrNotPlaying
	}
	if p.CurrentCard != nil {
		return ErrAlreadyPlayed
	}
	if !handContains(p.Hand, card) {
		return ErrCardNotInHand
	}
	c := card
	p.Staged = &c
	return nil
}

// lockPlay performs the play validation from the anti-cheat contract: the
// session must be playing, the player must not have a locked play, and the
// card must be present by suit+rank in the authoritative hand. A hand miss is
// recorded in the audit log; the other rejections are ordinary errors.
func (s *Session) lockPlay(playerID string, card cards.Card) error {
	return s.lockPlayInternal(playerID, card, -1, true)
}

// lockPlayInternal is the shared locking path. A non-negative round makes
// the play conditional on that round still being current, which is how the
// timeout supervisor discards plays it selected against a state that has
// since moved on. Only client submissions audit a hand miss; a stale forced
// play naming a just-played card is a lost race, not cheating.
func (s *Session) lockPlayInternal(playerID string, card cards.Card, round int, audit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.players[playerID]
	if p == nil {
		return ErrNotInSession
	}
	if s.Status() != StatusPlaying {
		return ErrNotPlaying
	}
	if round >= 0 && round != s.currentRound {
		return ErrAlreadyPlayed
	}
	if p.CurrentCard != nil {
		return ErrAlreadyPlayed
	}
	if !handContains(p.Hand, card) {
		if audit {
			attempted := card
			s.recordViolationLocked(Violation{
				PlayerID:      playerID,
				Kind:          ViolationInvalidPlay,
				AttemptedCard: &attempted,
				Hand:          append([]cards.Card(nil), p.Hand...),
			})
		}
		return ErrCardNotInHand
	}

	c := card
	p.CurrentCard = &c
	p.Staged = nil
	s.events.publish(Event{
		Type:      EventPlayLocked,
		SessionID: s.cfg.ID,
		PlayerID:  playerID,
		Round:     s.currentRound,
		Timestamp: s.now(),
	})
	return nil
}

// maybeCompleteRound runs the arbiter: if both players have a locked play
// for the current round and no result exists yet at that index, commit the
// round exactly once. Safe to call from any actor at any time.
func (s *Session) maybeCompleteRound() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completeRoundLocked()
}

// completeRoundLocked checks the completion predicate against fresh state
// and commits if it holds. An already-present result for the current round
// means another actor won the race; the attempt is abandoned silently.
// Assumes lock is held by caller.
func (s *Session) completeRoundLocked() {
	if s.Status() != StatusPlaying {
		return
	}
	round := s.currentRound
	if round < len(s.rounds) {
		return // already resolved
	}

	p1 := s.players[s.seats[0]]
	p2 := s.players[s.seats[1]]
	if p1.CurrentCard == nil || p2.CurrentCard == nil {
		return
	}
	s.commitRoundLocked(round, *p1.CurrentCard, *p2.CurrentCard)
}

// commitRoundLocked writes the round-completion patch as one indivisible
// mutation: result append, score update, hand-to-history moves, play clears,
// and either the next deadline or match end. Every step is written so that
// re-applying the commit for the same round index is a no-op.
// Assumes lock is held by caller.
func (s *Session) commitRoundLocked(round int, c1, c2 cards.Card) {
	// Re-check for a pre-existing result immediately before committing, not
	// only at predicate time.
	if round != s.currentRound || round != len(s.rounds) {
		return
	}

	outcome := Resolve(c1, c2, s.trumpSuit)
	winnerID := ""
	switch outcome {
	case OutcomeFirstWins:
		winnerID = s.seats[0]
	case OutcomeSecondWins:
		winnerID = s.seats[1]
	}

	result := RoundResult{
		Player1Card: c1,
		Player2Card: c2,
		WinnerID:    winnerID,
		Timestamp:   s.now(),
	}
	s.rounds = append(s.rounds, result)

	if winnerID != "" {
		s.players[winnerID].RoundsWon++
	}

	for _, id := range s.seats {
		p := s.players[id]
		if p.CurrentCard == nil {
			continue
		}
		played := *p.CurrentCard
		p.Hand = removeCard(p.Hand, played)
		p.CardsPlayed = append(p.CardsPlayed, played)
		p.CurrentCard = nil
		p.Staged = nil
	}

	s.log.Debugf("Session %s: round %d resolved, winner=%q (%s vs %s, trump %s)",
		s.cfg.ID, round, winnerID, c1, c2, s.trumpSuit)
	s.events.publish(Event{
		Type:      EventRoundResolved,
		SessionID: s.cfg.ID,
		PlayerID:  winnerID,
		Round:     round,
		Payload:   RoundResolvedPayload{Result: result},
		Timestamp: result.Timestamp,
	})

	won := winnerID != "" && s.players[winnerID].RoundsWon >= s.cfg.Rules.RoundsToWin
	if won || round >= s.cfg.Rules.TotalRounds-1 {
		s.endMatchLocked()
		return
	}

	s.currentRound = round + 1
	s.roundDeadline = s.now().Add(s.cfg.Rules.ResultPopup + s.cfg.Rules.PlayWindow)
}

// endMatchLocked moves the session to its terminal state: the deadline is
// cleared and no further gameplay mutation is accepted.
// Assumes lock is held by caller.
func (s *Session) endMatchLocked() {
	s.roundDeadline = time.Time{}
	s.machine.Dispatch(sessionStateMatchEnd)

	scores := make(map[string]int, len(s.players))
	for id, p := range s.players {
		scores[id] = p.RoundsWon
	}
	winnerID := s.matchWinnerLocked()

	s.log.Infof("Session %s: match ended, winner=%q, scores=%v", s.cfg.ID, winnerID, scores)
	s.events.publish(Event{
		Type:      EventMatchEnded,
		SessionID: s.cfg.ID,
		PlayerID:  winnerID,
		Round:     s.currentRound,
		Payload: MatchEndedPayload{
			WinnerID: winnerID,
			Scores:   scores,
			Seats:    append([]string(nil), s.seats...),
			Stake:    s.cfg.Rules.Stake,
		},
		Timestamp: s.now(),
	})
}

// matchWinnerLocked returns the id of the player with the higher round-win
// count, or "" on a tie. Assumes lock is held by caller.
func (s *Session) matchWinnerLocked() string {
	if len(s.seats) < MaxPlayers {
		return ""
	}
	p1 := s.players[s.seats[0]]
	p2 := s.players[s.seats[1]]
	switch {
	case p1.RoundsWon > p2.RoundsWon:
		return p1.ID
	case p2.RoundsWon > p1.RoundsWon:
		return p2.ID
	default:
		return ""
	}
}

// MatchWinnerID returns the match winner once the session has ended, or ""
// for a draw or an unfinished match.
func (s *Session) MatchWinnerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status() != StatusMatchEnd {
		return ""
	}
	return s.matchWinnerLocked()
}

// handContains reports whether the hand holds the card, matching by
// suit+rank only; the client-declared value is never consulted.
func handContains(hand []cards.Card, card cards.Card) bool {
	for _, c := range hand {
		if cards.SameCard(c, card) {
			return true
		}
	}
	return false
}

// removeCard returns the hand with the first suit+rank match removed.
func removeCard(hand []cards.Card, card cards.Card) []cards.Card {
	for i, c := range hand {
		if cards.SameCard(c, card) {
			return append(hand[:i], hand[i+1:]...)
		}
	}
	return hand
}
