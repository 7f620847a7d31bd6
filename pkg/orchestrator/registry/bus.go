// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

package registry

import (
	"sync"

	"github.com/gweizero/engine/pkg/common"
	"github.com/gweizero/engine/pkg/logger/log"
)

// subscriberBuffer bounds each live subscriber channel. A slow consumer
// loses its oldest undelivered events, never the publisher's progress.
const subscriberBuffer = 64

// ProgressBus fans analysis progress out to SSE subscribers. Every event is
// kept in a per-job backlog so late subscribers replay history before
// receiving live events.
type ProgressBus struct {
	mu      sync.Mutex
	backlog map[string][]common.ProgressEvent
	subs    map[string][]chan common.ProgressEvent
	closed  map[string]bool
}

// NewProgressBus creates an empty bus.
func NewProgressBus() *ProgressBus {
	return &ProgressBus{
		backlog: make(map[string][]common.ProgressEvent),
		subs:    make(map[string][]chan common.ProgressEvent),
		closed:  make(map[string]bool),
	}
}

// Publish appends the event to the job's backlog and delivers it to every
// live subscriber. Full subscriber channels drop their oldest event.
func (b *ProgressBus) Publish(jobID string, event common.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed[jobID] {
		log.Warnf("bus: publish to closed job %s dropped", jobID)
		return
	}
	b.backlog[jobID] = append(b.backlog[jobID], event)
	for _, ch := range b.subs[jobID] {
		for sent := false; !sent; {
			select {
			case ch <- event:
				sent = true
			default:
				// Full buffer: drop the oldest event and retry.
				select {
				case <-ch:
				default:
				}
			}
		}
	}
}

// Subscribe returns the job's backlog so far plus a live channel. The
// channel closes when the job reaches a terminal phase; cancel detaches a
// subscriber that stops reading early.
func (b *ProgressBus) Subscribe(jobID string) (backlog []common.ProgressEvent, events <-chan common.ProgressEvent, cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	backlog = append([]common.ProgressEvent(nil), b.backlog[jobID]...)
	ch := make(chan common.ProgressEvent, subscriberBuffer)
	if b.closed[jobID] {
		close(ch)
		return backlog, ch, func() {}
	}

	b.subs[jobID] = append(b.subs[jobID], ch)
	cancel = func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[jobID]
		for i, sub := range subs {
			if sub == ch {
				b.subs[jobID] = append(subs[:i], subs[i+1:]...)
				if !b.closed[jobID] {
					close(ch)
				}
				return
			}
		}
	}
	return backlog, ch, cancel
}

// Close marks the job's stream finished and closes all subscriber channels.
// The backlog stays available for later Subscribe calls.
func (b *ProgressBus) Close(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed[jobID] {
		return
	}
	b.closed[jobID] = true
	for _, ch := range b.subs[jobID] {
		close(ch)
	}
	delete(b.subs, jobID)
}
