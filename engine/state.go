package engine

import (
	"context"
	"log/slog"

	"github.com/ammiranda/ordered_tree/repository"
)

// State is a step of a mutation's lifecycle
type State int

const (
	StateIdle State = iota
	StateValidating
	StateLocked
	StateParked
	StateReindexed
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateLocked:
		return "locked"
	case StateParked:
		return "parked"
	case StateReindexed:
		return "reindexed"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// transitions lists the legal edges. Validating -> Committed is a no-op move,
// Locked -> Committed is a create or delete.
var transitions = map[State][]State{
	StateIdle:       {StateValidating, StateAborted},
	StateValidating: {StateLocked, StateCommitted, StateAborted},
	StateLocked:     {StateParked, StateCommitted, StateAborted},
	StateParked:     {StateReindexed, StateAborted},
	StateReindexed:  {StateCommitted, StateAborted},
}

// StateHook observes every transition of every mutation
type StateHook func(op string, id int64, from, to State)

// mutation tracks one operation through the state machine
type mutation struct {
	op     string
	id     int64
	kind   repository.Kind
	state  State
	hook   StateHook
	logger *slog.Logger
}

func (m *mutation) to(ctx context.Context, next State) {
	legal := false
	for _, s := range transitions[m.state] {
		if s == next {
			legal = true
			break
		}
	}
	if !legal {
		m.logger.ErrorContext(ctx, "illegal state transition",
			"op", m.op, "kind", m.kind, "id", m.id, "from", m.state.String(), "to", next.String())
	}

	prev := m.state
	m.state = next
	m.logger.DebugContext(ctx, "state", "op", m.op, "kind", m.kind, "id", m.id, "from", prev.String(), "to", next.String())
	if m.hook != nil {
		m.hook(m.op, m.id, prev, next)
	}
}
