package core

import (
	"context"
	"sync"

	"girochain/core/types"
)

// SequencedEvent is an emitted ledger event tagged with its position in the
// node's append-only log. Sequences start at 1 and never repeat; the
// achievements gateway uses them as reconciliation cursors.
type SequencedEvent struct {
	Sequence uint64       `json:"sequence"`
	Event    *types.Event `json:"event"`
}

type eventSubscriber struct {
	ch     chan SequencedEvent
	cancel func()
}

// eventLog accumulates every event the engines emit and fans them out to
// subscribers. The log is in-memory; the gateway persists its own cursor and
// replays from the mirror after a node restart.
type eventLog struct {
	mu          sync.Mutex
	entries     []SequencedEvent
	nextSeq     uint64
	subscribers map[uint64]*eventSubscriber
	nextSubID   uint64
}

func newEventLog() *eventLog {
	return &eventLog{nextSeq: 1, subscribers: make(map[uint64]*eventSubscriber)}
}

func (l *eventLog) append(evt *types.Event) SequencedEvent {
	l.mu.Lock()
	entry := SequencedEvent{Sequence: l.nextSeq, Event: evt}
	l.nextSeq++
	l.entries = append(l.entries, entry)
	subs := make([]*eventSubscriber, 0, len(l.subscribers))
	for _, sub := range l.subscribers {
		subs = append(subs, sub)
	}
	l.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- entry:
		default:
			// Slow subscriber; it will catch up through the backlog query.
		}
	}
	return entry
}

// after returns up to limit entries with sequence > cursor.
func (l *eventLog) after(cursor uint64, limit int) []SequencedEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 {
		limit = len(l.entries)
	}
	out := make([]SequencedEvent, 0, limit)
	for _, entry := range l.entries {
		if entry.Sequence <= cursor {
			continue
		}
		out = append(out, entry)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// subscribe registers a live feed starting after cursor. The returned backlog
// covers everything already logged past the cursor; the channel carries the
// rest. cancel must be called to release the subscription.
func (l *eventLog) subscribe(ctx context.Context, cursor uint64) (<-chan SequencedEvent, func(), []SequencedEvent) {
	l.mu.Lock()
	backlog := make([]SequencedEvent, 0)
	for _, entry := range l.entries {
		if entry.Sequence > cursor {
			backlog = append(backlog, entry)
		}
	}
	id := l.nextSubID
	l.nextSubID++
	sub := &eventSubscriber{ch: make(chan SequencedEvent, 64)}
	l.subscribers[id] = sub
	l.mu.Unlock()

	// The channel is left open on cancel; a concurrent append may still hold a
	// reference to it. Consumers terminate through their context instead.
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subscribers, id)
			l.mu.Unlock()
		})
	}
	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return sub.ch, cancel, backlog
}
