package services

import (
	"fmt"
	"sync"

	cv_errors "cloudvault/pkg/errors"

	"github.com/google/uuid"
)

// ExchangeState tracks one (conversation, participant) handshake.
type ExchangeState string

const (
	StateNoExchange ExchangeState = "NO_EXCHANGE"
	StateRequested  ExchangeState = "REQUESTED"
	StateDerived    ExchangeState = "DERIVED"
	StateKeyWrapped ExchangeState = "CONVERSATION_KEY_WRAPPED"
	StateNotified   ExchangeState = "NOTIFIED"
	StateFailed     ExchangeState = "FAILED"
)

// NOTIFIED ends a round; a new request or rotation starts the next one.
// FAILED is reachable from every state.
var exchangeTransitions = map[ExchangeState][]ExchangeState{
	StateNoExchange: {StateRequested, StateDerived},
	StateRequested:  {StateRequested, StateDerived},
	StateDerived:    {StateKeyWrapped, StateRequested, StateDerived},
	StateKeyWrapped: {StateNotified},
	StateNotified:   {StateRequested, StateDerived},
	StateFailed:     {StateRequested, StateDerived},
}

func canTransition(from, to ExchangeState) bool {
	if to == StateFailed {
		return true
	}
	for _, next := range exchangeTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type exchangeKey struct {
	conversationID uuid.UUID
	participantID  uuid.UUID
}

type exchangeStates struct {
	mu     sync.Mutex
	states map[exchangeKey]ExchangeState
}

func newExchangeStates() *exchangeStates {
	return &exchangeStates{states: make(map[exchangeKey]ExchangeState)}
}

func (s *exchangeStates) get(conversationID, participantID uuid.UUID) ExchangeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[exchangeKey{conversationID, participantID}]; ok {
		return state
	}
	return StateNoExchange
}

func (s *exchangeStates) transition(conversationID, participantID uuid.UUID, to ExchangeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := exchangeKey{conversationID, participantID}
	from, ok := s.states[key]
	if !ok {
		from = StateNoExchange
	}
	if !canTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", cv_errors.ErrInvalidTransition, from, to)
	}
	s.states[key] = to
	return nil
}
