package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"
	"github.com/vctt94/bisonbotkit/logging"

	"github.com/duelhall/trumpduel/pkg/cards"
	"github.com/duelhall/trumpduel/pkg/duel"
	"github.com/duelhall/trumpduel/pkg/server/internal/db"
)

var (
	// ErrUnknownSession indicates a command named a session the server does
	// not hold.
	ErrUnknownSession = errors.New("unknown session")

	// ErrInsufficientBalance indicates a player cannot cover the stake.
	ErrInsufficientBalance = errors.New("insufficient balance for stake")
)

// Server coordinates duel sessions: it owns the session registry, debits and
// settles stakes, drives the timeout sweep, and feeds session events to the
// worker pool for persistence and fan-out.
type Server struct {
	log        slog.Logger
	logBackend *logging.LogBackend
	db         Database
	rules      duel.Rules

	mu       sync.RWMutex
	sessions map[string]*duel.Session

	// Session events funnel into one channel; the pump forwards them to the
	// event processor's queue.
	events         chan duel.Event
	eventProcessor *EventProcessor
	pumpWg         sync.WaitGroup

	// Subscribers receive a non-blocking copy of every processed event.
	subMu       sync.RWMutex
	subscribers map[int]chan duel.Event
	nextSubID   int

	// Per-session save serialization
	saveMutexes map[string]*sync.Mutex // sessionID -> mutex for that session's saves
	saveMu      sync.RWMutex           // protects saveMutexes map

	// WaitGroup to ensure all async save goroutines complete before Stop returns
	saveWg sync.WaitGroup

	// Stake settlement bookkeeping; a match is settled exactly once.
	settleMu sync.Mutex
	settled  map[string]bool

	quit    chan struct{}
	sweepWg sync.WaitGroup
}

// NewServer creates a new duel server.
func NewServer(database Database, logBackend *logging.LogBackend, rules duel.Rules) *Server {
	server := &Server{
		log:         logBackend.Logger("SERVER"),
		logBackend:  logBackend,
		db:          database,
		rules:       rules,
		sessions:    make(map[string]*duel.Session),
		events:      make(chan duel.Event, 256),
		subscribers: make(map[int]chan duel.Event),
		saveMutexes: make(map[string]*sync.Mutex),
		settled:     make(map[string]bool),
		quit:        make(chan struct{}),
	}

	server.eventProcessor = NewEventProcessor(server, 1000, 3) // queue size: 1000, workers: 3
	server.eventProcessor.Start()

	server.pumpWg.Add(1)
	go server.pumpEvents()

	if ids, err := database.GetAllSessionIDs(); err != nil {
		server.log.Errorf("Failed to list persisted sessions: %v", err)
	} else if len(ids) > 0 {
		server.log.Infof("Found %d persisted session snapshots", len(ids))
	}

	return server
}

// pumpEvents forwards session events into the processor queue.
func (s *Server) pumpEvents() {
	defer s.pumpWg.Done()
	for {
		select {
		case <-s.quit:
			// Drain whatever is already buffered so settlement and final
			// snapshots are not lost on shutdown.
			for {
				select {
				case ev := <-s.events:
					s.eventProcessor.PublishEvent(ev)
				default:
					return
				}
			}
		case ev := <-s.events:
			s.eventProcessor.PublishEvent(ev)
		}
	}
}

// StartSweep runs the timeout sweep until the context is canceled or the
// server stops. The sweep is the supervisor that converts expired deadlines
// into forced plays.
func (s *Server) StartSweep(ctx context.Context) {
	s.sweepWg.Add(1)
	go func() {
		defer s.sweepWg.Done()
		ticker := time.NewTicker(s.rules.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.quit:
				return
			case now := <-ticker.C:
				s.Tick(now)
			}
		}
	}()
}

// Tick runs one timeout sweep over every live session. Exposed so tests and
// alternative schedulers can drive time explicitly.
func (s *Server) Tick(now time.Time) {
	s.mu.RLock()
	sessions := make([]*duel.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sess := range sessions {
		wg.Add(1)
		go func(sess *duel.Session) {
			defer wg.Done()
			sess.HandleTimeouts(now)
		}(sess)
	}
	wg.Wait()
}

// Stop gracefully stops the server
func (s *Server) Stop() {
	close(s.quit)
	s.sweepWg.Wait()
	s.pumpWg.Wait()
	if s.eventProcessor != nil {
		s.eventProcessor.Stop()
	}
	// Wait for any in-flight asynchronous saves to complete before returning.
	s.saveWg.Wait()

	s.subMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subMu.Unlock()
}

// Subscribe registers a listener for processed session events. The returned
// cancel function unregisters it. Slow listeners lose events rather than
// slowing the worker pool.
func (s *Server) Subscribe() (<-chan duel.Event, func()) {
	ch := make(chan duel.Event, 64)

	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		if existing, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(existing)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

// fanOut delivers an event to every subscriber without blocking.
func (s *Server) fanOut(ev duel.Event) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// CreateSession creates a session and seats its creator, debiting the stake.
func (s *Server) CreateSession(playerID, name string) (string, error) {
	sessionID := uuid.New().String()

	sess := duel.New(duel.Config{
		ID:    sessionID,
		Log:   s.logBackend.Logger("DUEL"),
		Rules: s.rules,
		Audit: &sessionAudit{server: s},
	})
	sess.SetEventChannel(s.events)

	if err := s.debitStake(sessionID, playerID); err != nil {
		return "", err
	}
	if err := sess.Join(playerID, name); err != nil {
		s.refundStake(sessionID, playerID)
		return "", err
	}

	s.mu.Lock()
	s.sessions[sessionID] = sess
	s.mu.Unlock()

	s.log.Infof("Created session %s for player %s", sessionID, playerID)
	return sessionID, nil
}

// JoinSession seats a player in an existing session, debiting the stake. A
// rejoin of an already seated player is a no-op and is not charged again.
func (s *Server) JoinSession(sessionID, playerID, name string) error {
	sess, err := s.getSession(sessionID)
	if err != nil {
		return err
	}

	for _, id := range sess.Seats() {
		if id == playerID {
			return nil
		}
	}

	if err := s.debitStake(sessionID, playerID); err != nil {
		return err
	}
	if err := sess.Join(playerID, name); err != nil {
		s.refundStake(sessionID, playerID)
		return err
	}
	return nil
}

// SetReady marks a player ready in a session.
func (s *Server) SetReady(sessionID, playerID string) error {
	sess, err := s.getSession(sessionID)
	if err != nil {
		return err
	}
	return sess.SetReady(playerID)
}

// SetUnready withdraws a player's ready flag.
func (s *Server) SetUnready(sessionID, playerID string) error {
	sess, err := s.getSession(sessionID)
	if err != nil {
		return err
	}
	return sess.SetUnready(playerID)
}

// SubmitPlay locks a card for the current round.
func (s *Server) SubmitPlay(sessionID, playerID string, card cards.Card) error {
	sess, err := s.getSession(sessionID)
	if err != nil {
		return err
	}
	return sess.SubmitPlay(playerID, card)
}

// StageCard remembers a selected card for the timeout supervisor.
func (s *Server) StageCard(sessionID, playerID string, card cards.Card) error {
	sess, err := s.getSession(sessionID)
	if err != nil {
		return err
	}
	return sess.StageCard(playerID, card)
}

// ApplyFieldWrite routes a document-style field write through the session's
// ingress guard.
func (s *Server) ApplyFieldWrite(sessionID, playerID, field string, value json.RawMessage) error {
	sess, err := s.getSession(sessionID)
	if err != nil {
		return err
	}
	return sess.ApplyFieldWrite(playerID, field, value)
}

// GetSnapshot returns a consistent deep copy of a session's state.
func (s *Server) GetSnapshot(sessionID string) (duel.SessionSnapshot, error) {
	sess, err := s.getSession(sessionID)
	if err != nil {
		return duel.SessionSnapshot{}, err
	}
	return sess.Snapshot(), nil
}

// GetViolations returns a session's in-memory audit trail.
func (s *Server) GetViolations(sessionID string) ([]duel.Violation, error) {
	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Violations(), nil
}

// GetPersistedSnapshot loads the durable snapshot of a session, which may
// outlive the in-memory aggregate.
func (s *Server) GetPersistedSnapshot(sessionID string) (duel.SessionSnapshot, error) {
	row, err := s.db.LoadSessionSnapshot(sessionID)
	if err != nil {
		return duel.SessionSnapshot{}, err
	}
	var snap duel.SessionSnapshot
	if err := json.Unmarshal([]byte(row.Snapshot), &snap); err != nil {
		return duel.SessionSnapshot{}, fmt.Errorf("failed to decode session %s: %v", sessionID, err)
	}
	return snap, nil
}

// GetDealStats returns aggregate fairness statistics across all deals.
func (s *Server) GetDealStats() (*db.DealStatsSummary, error) {
	return s.db.GetDealStatsSummary()
}

// GetPlayerBalance returns a player's ledger balance.
func (s *Server) GetPlayerBalance(playerID string) (int64, error) {
	return s.db.GetPlayerBalance(playerID)
}

// SessionIDs returns the ids of every live session.
func (s *Server) SessionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// RemoveSession drops an ended session from the registry. The durable
// snapshot remains for later inspection. Live sessions are refused.
func (s *Server) RemoveSession(sessionID string) error {
	sess, err := s.getSession(sessionID)
	if err != nil {
		return err
	}
	if sess.Status() != duel.StatusMatchEnd {
		return fmt.Errorf("session %s is still active", sessionID)
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	s.log.Infof("Removed session %s", sessionID)
	return nil
}

func (s *Server) getSession(sessionID string) (*duel.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrUnknownSession
	}
	return sess, nil
}

// debitStake charges the session stake against a player's balance.
func (s *Server) debitStake(sessionID, playerID string) error {
	if s.rules.Stake <= 0 {
		return nil
	}
	balance, err := s.db.GetPlayerBalance(playerID)
	if err == nil && balance < s.rules.Stake {
		return fmt.Errorf("%w: need %d, have %d", ErrInsufficientBalance, s.rules.Stake, balance)
	}
	if err != nil {
		// Unknown players start at zero and cannot cover a positive stake.
		return fmt.Errorf("%w: need %d", ErrInsufficientBalance, s.rules.Stake)
	}
	return s.db.UpdatePlayerBalance(playerID, -s.rules.Stake, "stake",
		fmt.Sprintf("stake for session %s", sessionID))
}

// refundStake returns a previously debited stake.
func (s *Server) refundStake(sessionID, playerID string) {
	if s.rules.Stake <= 0 {
		return
	}
	err := s.db.UpdatePlayerBalance(playerID, s.rules.Stake, "refund",
		fmt.Sprintf("refund for session %s", sessionID))
	if err != nil {
		s.log.Errorf("Failed to refund stake to %s for session %s: %v", playerID, sessionID, err)
	}
}

// settleMatch pays out the pot once per session: the winner takes both
// stakes, a drawn match refunds each player their own.
func (s *Server) settleMatch(sessionID string, payload duel.MatchEndedPayload) {
	s.settleMu.Lock()
	if s.settled[sessionID] {
		s.settleMu.Unlock()
		return
	}
	s.settled[sessionID] = true
	s.settleMu.Unlock()

	if payload.Stake <= 0 {
		return
	}

	if payload.WinnerID != "" {
		pot := payload.Stake * int64(len(payload.Seats))
		err := s.db.UpdatePlayerBalance(payload.WinnerID, pot, "payout",
			fmt.Sprintf("won session %s", sessionID))
		if err != nil {
			s.log.Errorf("Failed to pay out session %s to %s: %v", sessionID, payload.WinnerID, err)
		}
		return
	}

	for _, playerID := range payload.Seats {
		s.refundStake(sessionID, playerID)
	}
}

// saveAsync runs a database write on a tracked goroutine so Stop can wait
// for it.
func (s *Server) saveAsync(reason string, fn func() error) {
	s.saveWg.Add(1)
	go func() {
		defer s.saveWg.Done()
		if err := fn(); err != nil {
			s.log.Errorf("Async save failed (%s): %v", reason, err)
		}
	}()
}

// saveSessionStateAsync persists a session snapshot without blocking game
// operations. Saves for the same session are serialized so a stale snapshot
// never overwrites a newer one.
func (s *Server) saveSessionStateAsync(sessionID string, reason string) {
	// Get or create a mutex for this session
	s.saveMu.Lock()
	saveMutex, exists := s.saveMutexes[sessionID]
	if !exists {
		saveMutex = &sync.Mutex{}
		s.saveMutexes[sessionID] = saveMutex
	}
	s.saveMu.Unlock()

	// Increment the WaitGroup to track this goroutine
	s.saveWg.Add(1)

	go func() {
		// Ensure the WaitGroup is decremented upon completion
		defer s.saveWg.Done()
		// Acquire the session-specific mutex to serialize saves for this session
		saveMutex.Lock()
		defer saveMutex.Unlock()

		err := s.saveSessionState(sessionID)
		if err != nil {
			s.log.Errorf("Failed to save session state for %s (%s): %v", sessionID, reason, err)
		} else {
			s.log.Debugf("Saved session state for %s (trigger: %s)", sessionID, reason)
		}
	}()
}

// saveSessionState persists the current snapshot of a session.
func (s *Server) saveSessionState(sessionID string) error {
	sess, err := s.getSession(sessionID)
	if err != nil {
		return err
	}
	row, err := marshalSnapshot(sess.Snapshot())
	if err != nil {
		return err
	}
	return s.db.SaveSessionSnapshot(row)
}
