// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aurora

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateMachine_Transitions(t *testing.T) {
	m := NewStateMachine(StateInit)

	assert.NoError(t, m.Transition(StateConnecting))
	assert.NoError(t, m.Transition(StateConnectedIdle))
	assert.NoError(t, m.Transition(StateConnectedIdle))
	assert.ErrorIs(t, m.Transition(StateConnecting), ErrInvalidState)
	assert.ErrorIs(t, m.Transition(StateInit), ErrInvalidState)
	assert.Equal(t, StateConnectedIdle, m.State())
}

func TestStateMachine_TryTransition(t *testing.T) {
	m := NewStateMachine(StateConnectedIdle)

	assert.True(t, m.TryTransition(StateConnectedIdle, StateConnectedBusy))
	assert.False(t, m.TryTransition(StateConnectedIdle, StateConnectedBusy))
	assert.False(t, m.TryTransition(StateConnectedBusy, StateConnecting))
	assert.True(t, m.TryTransition(StateConnectedBusy, StateConnectedIdle))
}

func TestStateMachine_Subscribe(t *testing.T) {
	m := NewStateMachine(StateDisconnected)
	var first, second []State

	unsubscribe := m.Subscribe(func(next, prev State) { first = append(first, next) })
	m.Subscribe(func(next, prev State) { second = append(second, prev) })

	assert.NoError(t, m.Transition(StateConnecting))
	unsubscribe()
	assert.NoError(t, m.Transition(StateDisconnected))

	assert.Equal(t, []State{StateConnecting}, first)
	assert.Equal(t, []State{StateDisconnected, StateConnecting}, second)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "busy", StateConnectedBusy.String())
	assert.Equal(t, "unknown(42)", State(42).String())
	assert.True(t, StateConnectedBusy.Connected())
	assert.False(t, StateConnecting.Connected())
}
