// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aurora

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Transport is one physical link to the device together with its framing
// parser. Open delivers every parser event to handler until Close; a link
// lost after Open is reported as a Disconnected event.
type Transport interface {
	Origin() Origin
	Open(ctx context.Context, handler EventHandler) error
	Close() error

	// SendCommand writes a command line, without terminator.
	SendCommand(line string) error
	// SendPacketReply writes a packet-mode acknowledgment or error byte.
	SendPacketReply(b byte) error
	// WriteInput writes input requested by the running command.
	WriteInput(data []byte) error
	// Reset flushes pending input and resets the framing parser.
	Reset()
}

// Option configures a Connection.
type Option func(*Connection)

// WithLogger sets the logger. The default discards output.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Connection) {
		c.log = log
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *Connection) {
		c.metrics = m
	}
}

// WithStatistics sets the statistics tracker.
func WithStatistics(s *Statistics) Option {
	return func(c *Connection) {
		c.stats = s
	}
}

// Connection is the per-transport owner of the connection state, the
// command controller and the notification subscribers.
type Connection struct {
	origin    Origin
	transport Transport
	sm        *StateMachine
	ctrl      *Controller
	log       logrus.FieldLogger
	metrics   Metrics
	stats     *Statistics

	mu            sync.Mutex
	cancelConnect context.CancelFunc
	connectDone   chan struct{}

	notifyMu    sync.RWMutex
	subscribers []func(Event)
}

// NewConnection creates a disconnected Connection over t. BLE connections
// start in StateInit until the first connect.
func NewConnection(t Transport, opts ...Option) *Connection {
	origin := t.Origin()
	initial := StateDisconnected
	if origin == OriginBLE {
		initial = StateInit
	}

	c := &Connection{
		origin:    origin,
		transport: t,
		sm:        NewStateMachine(initial),
		metrics:   nopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		c.log = l
	}
	if c.stats == nil {
		c.stats = NewStatistics()
	}
	c.log = c.log.WithField("origin", origin)
	c.ctrl = newController(origin, c.sm, t, c.log, c.metrics, c.stats)

	c.sm.Subscribe(func(next, prev State) {
		c.metrics.ObserveState(c.origin, next)
		c.log.WithFields(logrus.Fields{"from": prev, "to": next}).Debug("connection state changed")
	})
	return c
}

// Origin returns the transport tag.
func (c *Connection) Origin() Origin {
	return c.origin
}

// State returns the connection state.
func (c *Connection) State() State {
	return c.sm.State()
}

// IsConnected reports whether the transport is open.
func (c *Connection) IsConnected() bool {
	return c.sm.State().Connected()
}

// IsConnecting reports whether a connect attempt is running.
func (c *Connection) IsConnecting() bool {
	return c.sm.State() == StateConnecting
}

// Statistics returns the connection's statistics tracker.
func (c *Connection) Statistics() *Statistics {
	return c.stats
}

// OnStateChange registers fn for state transitions and returns a function
// removing it.
func (c *Connection) OnStateChange(fn func(next, prev State)) func() {
	return c.sm.Subscribe(fn)
}

// OnNotification registers fn for out-of-band notifications, parse errors
// and command output.
func (c *Connection) OnNotification(fn func(Event)) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// Connect opens the transport. The attempt is bounded by timeout and
// aborted by Disconnect or ctx.
func (c *Connection) Connect(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	c.mu.Lock()
	if c.cancelConnect != nil || c.sm.Transition(StateConnecting) != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	c.cancelConnect = cancel
	c.connectDone = make(chan struct{})
	c.mu.Unlock()

	c.log.WithField("timeout", timeout).Info("connecting")
	err := c.transport.Open(cctx, c.handleEvent)

	// Disconnect cancels under c.mu, so the link is either promoted here
	// or the attempt counts as aborted.
	c.mu.Lock()
	ctxErr := cctx.Err()
	opened := err == nil
	if opened && ctxErr != nil {
		err = ctxErr
	}
	if err == nil && !c.sm.TryTransition(StateConnecting, StateConnectedIdle) {
		err = ErrConnectAborted
	}
	c.mu.Unlock()

	if err != nil {
		if opened {
			_ = c.transport.Close()
		}
		_ = c.sm.Transition(StateDisconnected)
	}

	c.mu.Lock()
	c.cancelConnect = nil
	done := c.connectDone
	c.connectDone = nil
	c.mu.Unlock()
	close(done)
	cancel()

	switch {
	case err == nil:
		c.log.Info("connected")
		return nil
	case errors.Is(err, ErrConnectAborted):
		return err
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return fmt.Errorf("connect timed out after %s: %w", timeout, ErrTimeout)
	case errors.Is(ctxErr, context.Canceled):
		return fmt.Errorf("%w: %v", ErrConnectAborted, err)
	default:
		return fmt.Errorf("connect: %w", err)
	}
}

// Disconnect aborts a running connect attempt and waits for the transport
// to give it up, or closes an open transport. A command in flight is
// rejected with ErrLostConnection.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	done := c.connectDone
	if c.cancelConnect != nil {
		c.cancelConnect()
	}
	c.mu.Unlock()
	if done != nil {
		<-done
	}

	if !c.sm.State().Connected() {
		return nil
	}
	_ = c.sm.Transition(StateDisconnected)
	c.ctrl.Fail(nil)
	err := c.transport.Close()
	c.log.Info("disconnected")
	return err
}

// Submit runs cmd on this connection. See Controller.Submit.
func (c *Connection) Submit(ctx context.Context, cmd *Command) (*Result, error) {
	return c.ctrl.Submit(ctx, cmd)
}

// WriteCommandInput sends input to the running command.
func (c *Connection) WriteCommandInput(data []byte) error {
	return c.ctrl.WriteCommandInput(data)
}

func (c *Connection) handleEvent(ev Event) {
	c.stats.RecordEvent(ev)
	c.metrics.ObserveEvent(c.origin, ev)

	switch e := ev.(type) {
	case Disconnected:
		c.linkLost(e.Err)
		return
	case ParseError:
		c.log.WithError(e.Err).Warn("parse error")
	case CommandOutput, InputRequested:
		c.ctrl.HandleEvent(ev)
	default:
		if !ev.OutOfBand() {
			c.ctrl.HandleEvent(ev)
			return
		}
	}
	c.notify(ev)
}

func (c *Connection) linkLost(cause error) {
	if !c.sm.State().Connected() {
		return
	}
	c.log.WithError(cause).Warn("connection lost")
	_ = c.sm.Transition(StateDisconnected)
	c.ctrl.Fail(cause)
	_ = c.transport.Close()
}

func (c *Connection) notify(ev Event) {
	c.notifyMu.RLock()
	subscribers := append([]func(Event){}, c.subscribers...)
	c.notifyMu.RUnlock()
	for _, fn := range subscribers {
		fn(ev)
	}
}
