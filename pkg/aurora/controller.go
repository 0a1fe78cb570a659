// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aurora

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// packetOutcome is the controller's answer to one packet-mode frame.
type packetOutcome int

const (
	packetAccepted packetOutcome = iota
	packetRetry
	packetExhausted
)

type outcome struct {
	result *Result
	err    error
}

type pendingCommand struct {
	cmd     *Command
	line    string
	started time.Time
	done    chan outcome

	begun          bool
	success        bytes.Buffer
	failure        bytes.Buffer
	packets        [][]byte
	packetFailures int
	exhausted      bool
	inputRequested bool
}

// packetResult counts consecutive checksum failures. A verified packet
// clears the count; the host asks for at most MaxPacketRetries
// retransmissions of one packet.
func (p *pendingCommand) packetResult(ok bool) packetOutcome {
	if ok {
		p.packetFailures = 0
		return packetAccepted
	}
	if p.exhausted {
		return packetExhausted
	}
	p.packetFailures++
	if p.packetFailures > MaxPacketRetries {
		p.exhausted = true
		return packetExhausted
	}
	return packetRetry
}

// Controller runs one command at a time over a Transport. It acquires the
// busy slot from the connection's StateMachine, folds the response events
// of the command in flight and resolves it exactly once.
type Controller struct {
	origin    Origin
	sm        *StateMachine
	transport Transport
	log       logrus.FieldLogger
	metrics   Metrics
	stats     *Statistics

	mu      sync.Mutex
	pending *pendingCommand
}

func newController(origin Origin, sm *StateMachine, t Transport, log logrus.FieldLogger, m Metrics, stats *Statistics) *Controller {
	return &Controller{
		origin:    origin,
		sm:        sm,
		transport: t,
		log:       log,
		metrics:   m,
		stats:     stats,
	}
}

// InFlight returns the name of the command in flight, or "".
func (c *Controller) InFlight() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return ""
	}
	return c.pending.cmd.Name
}

// Submit sends cmd and waits for its result.
//
// A device error is a Result with Error set and a nil error. A command the
// host abandons returns a *CommandError wrapping ErrTimeout,
// ErrLostConnection or ErrPacketRetriesExhausted. ErrBusy and
// ErrNotConnected are returned immediately.
func (c *Controller) Submit(ctx context.Context, cmd *Command) (*Result, error) {
	if cmd == nil || cmd.Name == "" {
		return nil, fmt.Errorf("%w: empty command", ErrMalformedLine)
	}
	if !c.sm.TryTransition(StateConnectedIdle, StateConnectedBusy) {
		if c.sm.State().Connected() {
			return nil, ErrBusy
		}
		return nil, ErrNotConnected
	}

	p := &pendingCommand{
		cmd:     cmd,
		line:    cmd.Line(),
		started: time.Now(),
		done:    make(chan outcome, 1),
	}
	c.mu.Lock()
	c.pending = p
	c.mu.Unlock()
	if c.sm.State() != StateConnectedBusy {
		// Disconnected before the command was registered.
		c.mu.Lock()
		if c.pending == p {
			c.pending = nil
		}
		c.mu.Unlock()
		return nil, ErrNotConnected
	}

	log := c.log.WithFields(logrus.Fields{"command": cmd.Name, "origin": c.origin})
	log.WithField("line", p.line).Debug("sending command")

	if err := c.transport.SendCommand(p.line); err != nil {
		c.mu.Lock()
		if c.pending == p {
			c.pending = nil
		}
		c.mu.Unlock()
		c.sm.TryTransition(StateConnectedBusy, StateConnectedIdle)
		c.record(nil, err, p)
		return nil, fmt.Errorf("send %q: %w", cmd.Name, err)
	}
	c.stats.CommandSent()

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var out outcome
	select {
	case out = <-p.done:
	case <-timer.C:
		out = c.abandon(p, nil)
	case <-ctx.Done():
		out = c.abandon(p, ctx.Err())
	}

	c.record(out.result, out.err, p)
	if out.err != nil {
		log.WithError(out.err).Warn("command failed")
	} else if out.result.Error {
		log.Debug("command returned device error")
	}
	return out.result, out.err
}

func (c *Controller) record(res *Result, err error, p *pendingCommand) {
	result := CommandOutcome(res, err)
	c.stats.RecordOutcome(result)
	c.metrics.ObserveCommand(c.origin, result, time.Since(p.started))
}

// abandon gives up on p after a timeout (cause nil) or cancellation. The
// transport is flushed and its parser reset so the next command starts
// from a clean state.
func (c *Controller) abandon(p *pendingCommand, cause error) outcome {
	c.mu.Lock()
	if c.pending != p {
		c.mu.Unlock()
		// Resolved concurrently; the outcome is already queued.
		return <-p.done
	}
	c.pending = nil
	exhausted := p.exhausted
	c.mu.Unlock()

	c.transport.Reset()
	c.sm.TryTransition(StateConnectedBusy, StateConnectedIdle)

	name := p.cmd.Name
	switch {
	case cause != nil:
		return outcome{err: &CommandError{
			Command: name,
			Code:    ErrorCodeCommandTimeout,
			Message: fmt.Sprintf("Command '%s' canceled.", name),
			Err:     cause,
		}}
	case exhausted:
		return outcome{err: c.exhaustedError(name)}
	default:
		return outcome{err: &CommandError{
			Command: name,
			Code:    ErrorCodeCommandTimeout,
			Message: fmt.Sprintf("Command '%s' timed out.", name),
			Err:     ErrTimeout,
		}}
	}
}

func (c *Controller) exhaustedError(name string) *CommandError {
	return &CommandError{
		Command: name,
		Code:    ErrorCodeCommandTimeout,
		Message: fmt.Sprintf("Command '%s' abandoned after %d packet retries.", name, MaxPacketRetries),
		Err:     ErrPacketRetriesExhausted,
	}
}

// Fail rejects the command in flight with a lost-connection error.
func (c *Controller) Fail(cause error) {
	c.mu.Lock()
	p := c.pending
	c.pending = nil
	c.mu.Unlock()
	if p == nil {
		return
	}
	msg := fmt.Sprintf("Lost connection while running '%s'.", p.cmd.Name)
	if cause != nil {
		msg = fmt.Sprintf("Lost connection while running '%s': %v", p.cmd.Name, cause)
	}
	p.done <- outcome{err: &CommandError{
		Command: p.cmd.Name,
		Code:    ErrorCodeCommandTimeout,
		Message: msg,
		Err:     ErrLostConnection,
	}}
}

// WriteCommandInput sends input to the command in flight. Over BLE the
// device must have requested input first.
func (c *Controller) WriteCommandInput(data []byte) error {
	c.mu.Lock()
	p := c.pending
	if p == nil || (c.origin == OriginBLE && !p.inputRequested) {
		c.mu.Unlock()
		return ErrNoInputRequested
	}
	p.inputRequested = false
	c.mu.Unlock()
	return c.transport.WriteInput(data)
}

// HandleEvent applies a command event to the command in flight.
func (c *Controller) HandleEvent(ev Event) {
	var reply []byte
	var out *outcome
	var resolved *pendingCommand
	var onPacket func([]byte)
	var payload []byte

	c.mu.Lock()
	p := c.pending
	if p == nil {
		c.mu.Unlock()
		c.log.WithField("event", fmt.Sprintf("%T", ev)).Debug("command event with no command in flight")
		return
	}

	switch e := ev.(type) {
	case CommandBegin:
		if p.begun {
			c.log.WithField("echo", e.Name).Warn("second command echo for one command")
		}
		p.begun = true

	case ResponseChunk:
		if e.Error {
			p.failure.Write(e.Data)
		} else {
			p.success.Write(e.Data)
		}

	case PacketReceived:
		p.packetResult(true)
		reply = []byte{PacketAckByte}
		if p.cmd.OnPacket != nil {
			onPacket, payload = p.cmd.OnPacket, e.Payload
		} else {
			p.packets = append(p.packets, e.Payload)
		}

	case PacketCorrupt:
		switch p.packetResult(false) {
		case packetRetry:
			c.log.WithError(e.Err).WithField("attempt", p.packetFailures).Warn("packet checksum failed, requesting retransmission")
			reply = []byte{PacketErrorByte}
		case packetExhausted:
			// No error byte: the device ends the exchange on its own timeout.
			c.log.WithError(e.Err).Warn("packet retries exhausted")
		}

	case InputRequested:
		p.inputRequested = true

	case CommandEnd:
		o := c.finishSerial(p, e.Error)
		out, resolved = &o, p

	case CommandResponse:
		o := c.finishBLE(p, e)
		out, resolved = &o, p
	}

	if resolved != nil {
		c.pending = nil
	}
	c.mu.Unlock()

	// The callback may call back into the controller.
	if onPacket != nil {
		onPacket(payload)
	}
	if reply != nil {
		if err := c.transport.SendPacketReply(reply[0]); err != nil {
			c.log.WithError(err).Warn("failed to answer packet")
		}
	}
	if resolved != nil {
		c.sm.TryTransition(StateConnectedBusy, StateConnectedIdle)
		resolved.done <- *out
	}
}

func (c *Controller) finishSerial(p *pendingCommand, isError bool) outcome {
	if p.exhausted {
		return outcome{err: c.exhaustedError(p.cmd.Name)}
	}
	policy, body := p.cmd.SuccessType, p.success.Bytes()
	if isError {
		policy, body = p.cmd.ErrorType, p.failure.Bytes()
	}
	response, err := FoldResponse(policy, body)
	if err != nil {
		c.log.WithError(err).WithField("command", p.cmd.Name).Warn("response decoded with errors")
	}
	return outcome{result: &Result{
		Command:  p.cmd.Name,
		Error:    isError,
		Response: response,
		Origin:   c.origin,
		Packets:  p.packets,
		Duration: time.Since(p.started),
	}}
}

func (c *Controller) finishBLE(p *pendingCommand, e CommandResponse) outcome {
	policy := p.cmd.SuccessType
	if e.Error {
		policy = p.cmd.ErrorType
	}
	response, err := foldBLE(policy, e.Response, e.Output)
	if err != nil {
		c.log.WithError(err).WithField("command", p.cmd.Name).Warn("response decoded with errors")
	}
	return outcome{result: &Result{
		Command:  p.cmd.Name,
		Error:    e.Error,
		Response: response,
		Origin:   c.origin,
		Duration: time.Since(p.started),
	}}
}
