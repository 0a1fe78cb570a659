// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aurora

import (
	"fmt"
	"sync"
)

// State is the state of a connection.
type State int

const (
	// StateInit is the state before the transport is ready for a first
	// connect (BLE adapter not enabled yet).
	StateInit State = iota
	StateDisconnected
	StateConnecting
	StateConnectedIdle
	StateConnectedBusy
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnectedIdle:
		return "idle"
	case StateConnectedBusy:
		return "busy"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Connected reports whether the state has a live transport.
func (s State) Connected() bool {
	return s == StateConnectedIdle || s == StateConnectedBusy
}

var stateEdges = map[State][]State{
	StateInit:          {StateConnecting, StateDisconnected},
	StateDisconnected:  {StateConnecting},
	StateConnecting:    {StateConnectedIdle, StateDisconnected},
	StateConnectedIdle: {StateConnectedBusy, StateDisconnected},
	StateConnectedBusy: {StateConnectedIdle, StateDisconnected},
}

// StateListener is called with the new and previous state after every
// transition.
type StateListener func(next, prev State)

// StateMachine owns a connection state. It changes only through
// Transition and TryTransition; listeners run after the lock is released,
// in subscription order.
type StateMachine struct {
	mu        sync.Mutex
	state     State
	listeners map[int]StateListener
	order     []int
	nextID    int
}

// NewStateMachine creates a state machine in the given state.
func NewStateMachine(initial State) *StateMachine {
	return &StateMachine{
		state:     initial,
		listeners: make(map[int]StateListener),
	}
}

// State returns the current state.
func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves to next. Moving to the current state is a no-op; an
// edge not in the transition table returns ErrInvalidState.
func (m *StateMachine) Transition(next State) error {
	m.mu.Lock()
	prev := m.state
	if prev == next {
		m.mu.Unlock()
		return nil
	}
	if !allowed(prev, next) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, prev, next)
	}
	m.state = next
	listeners := m.snapshot()
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(next, prev)
	}
	return nil
}

// TryTransition moves from the expected state to next and reports whether
// it did.
func (m *StateMachine) TryTransition(from, next State) bool {
	m.mu.Lock()
	if m.state != from || !allowed(from, next) {
		m.mu.Unlock()
		return false
	}
	m.state = next
	listeners := m.snapshot()
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(next, from)
	}
	return true
}

// Subscribe registers a listener and returns a function removing it.
func (m *StateMachine) Subscribe(fn StateListener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.order = append(m.order, id)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
		for i, v := range m.order {
			if v == id {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
}

func (m *StateMachine) snapshot() []StateListener {
	out := make([]StateListener, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.listeners[id])
	}
	return out
}

func allowed(from, to State) bool {
	for _, s := range stateEdges[from] {
		if s == to {
			return true
		}
	}
	return false
}
