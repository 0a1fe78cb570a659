// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aurora

import (
	"bytes"
	"sync"
)

// ============================================================
// Event Recorder
// ============================================================

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// body concatenates every response chunk of the given kind.
func (r *recorder) body(isError bool) string {
	var b bytes.Buffer
	for _, ev := range r.all() {
		if c, ok := ev.(ResponseChunk); ok && c.Error == isError {
			b.Write(c.Data)
		}
	}
	return b.String()
}

// withoutChunks returns the events with response chunks removed.
func (r *recorder) withoutChunks() []Event {
	var out []Event
	for _, ev := range r.all() {
		if _, ok := ev.(ResponseChunk); !ok {
			out = append(out, ev)
		}
	}
	return out
}

func eventsOf[T Event](events []Event) []T {
	var out []T
	for _, ev := range events {
		if e, ok := ev.(T); ok {
			out = append(out, e)
		}
	}
	return out
}
