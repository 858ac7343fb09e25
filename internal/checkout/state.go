package checkout

import (
	"context"
	"fmt"

	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

// State is a step of order placement.
type State string

const (
	StateStart           State = "START"
	StateBuyerResolved   State = "BUYER_RESOLVED"
	StateValidated       State = "VALIDATED"
	StateStockReserved   State = "STOCK_RESERVED"
	StatePromoApplied    State = "PROMO_APPLIED"
	StateSplitComputed   State = "SPLIT_COMPUTED"
	StateInvoicesCreated State = "INVOICES_CREATED"
	StateOrderPersisted  State = "ORDER_PERSISTED"
	StateInvoicesLinked  State = "INVOICES_LINKED"
	StateCommitted       State = "COMMITTED"
	StateFailed          State = "FAILED"
	StateRolledBack      State = "ROLLED_BACK"
)

// ORDER_PERSISTED may skip INVOICES_LINKED when linking is left to
// reconciliation.
var transitions = map[State][]State{
	StateStart:           {StateBuyerResolved},
	StateBuyerResolved:   {StateValidated},
	StateValidated:       {StateStockReserved},
	StateStockReserved:   {StatePromoApplied},
	StatePromoApplied:    {StateSplitComputed},
	StateSplitComputed:   {StateInvoicesCreated},
	StateInvoicesCreated: {StateOrderPersisted},
	StateOrderPersisted:  {StateInvoicesLinked, StateCommitted},
	StateInvoicesLinked:  {StateCommitted},
	StateFailed:          {StateRolledBack},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateRolledBack
}

// CanTransitionTo reports whether next may follow s. FAILED follows any
// non-terminal state.
func (s State) CanTransitionTo(next State) bool {
	if next == StateFailed {
		return !s.Terminal() && s != StateFailed
	}
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// machine tracks one placement and logs every transition.
type machine struct {
	state State
	logg  *logger.Logger
}

func newMachine(logg *logger.Logger) *machine {
	return &machine{state: StateStart, logg: logg}
}

func (m *machine) advance(ctx context.Context, next State) error {
	if !m.state.CanTransitionTo(next) {
		err := fmt.Errorf("checkout: illegal transition %s -> %s", m.state, next)
		m.logg.Error(ctx, "checkout state rejected", err)
		return err
	}
	m.logg.Info(m.logg.WithFields(ctx, map[string]any{"from": string(m.state), "state": string(next)}), "checkout state changed")
	m.state = next
	return nil
}

// fail moves to FAILED from any non-terminal state.
func (m *machine) fail(ctx context.Context, cause error) {
	if !m.state.CanTransitionTo(StateFailed) {
		return
	}
	m.logg.Warn(m.logg.WithFields(ctx, map[string]any{
		"from":  string(m.state),
		"state": string(StateFailed),
		"cause": cause.Error(),
	}), "checkout failed")
	m.state = StateFailed
}

// rewind returns to VALIDATED so the transactional phase can be retried.
func (m *machine) rewind(ctx context.Context) {
	m.logg.Info(m.logg.WithFields(ctx, map[string]any{"from": string(m.state), "state": string(StateValidated)}), "checkout retrying transactional phase")
	m.state = StateValidated
}
