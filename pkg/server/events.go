package server

import (
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/slog"

	"github.com/duelhall/trumpduel/pkg/cards"
	"github.com/duelhall/trumpduel/pkg/duel"
	"github.com/duelhall/trumpduel/pkg/utils"
)

// EventProcessor drains session events through a bounded queue and a small
// worker pool, keeping persistence and fan-out off the gameplay command path.
type EventProcessor struct {
	server   *Server
	log      slog.Logger
	queue    chan duel.Event
	workers  []*eventWorker
	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// eventWorker processes events from the queue
type eventWorker struct {
	id        int
	processor *EventProcessor
	stopChan  chan struct{}
	wg        *sync.WaitGroup
}

// NewEventProcessor creates a new event processor
func NewEventProcessor(server *Server, queueSize, workerCount int) *EventProcessor {
	processor := &EventProcessor{
		server:   server,
		log:      server.log,
		queue:    make(chan duel.Event, queueSize),
		stopChan: make(chan struct{}),
	}

	// Create workers
	processor.workers = make([]*eventWorker, workerCount)
	for i := 0; i < workerCount; i++ {
		processor.workers[i] = &eventWorker{
			id:        i,
			processor: processor,
			stopChan:  make(chan struct{}),
			wg:        &processor.wg,
		}
	}

	return processor
}

// Start begins processing events
func (ep *EventProcessor) Start() {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if ep.started {
		return
	}

	ep.started = true
	ep.log.Infof("Starting event processor with %d workers", len(ep.workers))

	for _, worker := range ep.workers {
		ep.wg.Add(1)
		go worker.run()
	}
}

// Stop gracefully stops the event processor
func (ep *EventProcessor) Stop() {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if !ep.started {
		return
	}

	ep.log.Infof("Stopping event processor...")

	// Signal all workers to stop
	close(ep.stopChan)
	for _, worker := range ep.workers {
		close(worker.stopChan)
	}

	// Wait for all workers to finish
	ep.wg.Wait()

	ep.started = false
	ep.log.Infof("Event processor stopped")
}

// PublishEvent publishes an event for processing
func (ep *EventProcessor) PublishEvent(event duel.Event) {
	ep.mu.Lock()
	started := ep.started
	ep.mu.Unlock()

	if !started {
		ep.log.Warnf("Event processor not started, dropping event: %v", event.Type)
		return
	}

	select {
	case ep.queue <- event:
		ep.log.Debugf("Published event: %s for session %s", event.Type, event.SessionID)
	default:
		ep.log.Errorf("Event queue full, dropping event: %s for session %s", event.Type, event.SessionID)
	}
}

// run executes the worker loop
func (w *eventWorker) run() {
	defer w.wg.Done()
	w.processor.log.Debugf("Event worker %d started", w.id)

	for {
		select {
		case <-w.stopChan:
			w.processor.log.Debugf("Event worker %d stopping", w.id)
			return

		case <-w.processor.stopChan:
			w.processor.log.Debugf("Event worker %d stopping (processor shutdown)", w.id)
			return

		case event := <-w.processor.queue:
			w.processEvent(event)
		}
	}
}

// processEvent runs every handler for a single event.
func (w *eventWorker) processEvent(event duel.Event) {
	w.processor.log.Debugf("Worker %d processing event: %s for session %s", w.id, event.Type, event.SessionID)

	w.processPersistence(event)
	w.processor.server.fanOut(event)
}

// processPersistence handles the durable side effects of an event.
func (w *eventWorker) processPersistence(event duel.Event) {
	s := w.processor.server

	switch event.Type {
	case duel.EventMatchStarted:
		if payload, ok := event.Payload.(duel.MatchStartedPayload); ok {
			err := s.db.RecordDealStats(event.SessionID, payload.Deal.Attempts, payload.Deal.Fallback)
			if err != nil {
				s.log.Errorf("Failed to record deal stats for %s: %v", event.SessionID, err)
			}
		} else {
			s.log.Errorf("Unexpected payload for %s: %s", event.Type, spew.Sdump(event.Payload))
		}
		s.saveSessionStateAsync(event.SessionID, string(event.Type))

	case duel.EventMatchEnded:
		if payload, ok := event.Payload.(duel.MatchEndedPayload); ok {
			s.settleMatch(event.SessionID, payload)
		} else {
			s.log.Errorf("Unexpected payload for %s: %s", event.Type, spew.Sdump(event.Payload))
		}
		s.saveSessionStateAsync(event.SessionID, string(event.Type))

	case duel.EventRoundResolved:
		if payload, ok := event.Payload.(duel.RoundResolvedPayload); ok {
			played := []cards.Card{payload.Result.Player1Card, payload.Result.Player2Card}
			s.log.Debugf("Session %s round %d: %s, winner=%q",
				event.SessionID, event.Round, utils.FormatCards(played), payload.Result.WinnerID)
		}
		s.saveSessionStateAsync(event.SessionID, string(event.Type))

	case duel.EventPlayerJoined, duel.EventReadyChanged, duel.EventPlayLocked:
		s.saveSessionStateAsync(event.SessionID, string(event.Type))

	case duel.EventViolation, duel.EventDealFallback:
		// Violations reach the database through the session's audit sink;
		// fallback deals are already captured in the deal stats.
	}
}
