package memory

import (
	"fmt"
	"sync"
)

// EventKind describes a store mutation.
type EventKind int

const (
	EventAppended EventKind = iota
	EventReset
	EventRewritten
)

func (k EventKind) String() string {
	switch k {
	case EventAppended:
		return "appended"
	case EventReset:
		return "reset"
	case EventRewritten:
		return "rewritten"
	}
	return "unknown"
}

// Event is delivered to subscribers after every mutation.
// Message is set for EventAppended only. Len is the conversation length after the change.
type Event struct {
	Kind    EventKind
	Message Message
	Len     int
}

// Store is the ordered conversation. Mutations notify subscribers synchronously,
// outside the store lock, in registration order.
type Store struct {
	mu     sync.Mutex
	msgs   []Message
	subs   []subscriber
	nextID int
}

type subscriber struct {
	id int
	fn func(Event)
}

// NewStore returns a store seeded with msgs (copied).
func NewStore(msgs ...Message) *Store {
	s := &Store{}
	for _, m := range msgs {
		s.msgs = append(s.msgs, m.clone())
	}
	return s
}

// Append adds a plain text message.
func (s *Store) Append(role Role, text string) error {
	return s.add(Message{Role: role, Text: text})
}

// AppendBlocks adds a message made of blocks.
func (s *Store) AppendBlocks(role Role, blocks ...Block) error {
	if blocks == nil {
		blocks = []Block{}
	}
	return s.add(Message{Role: role, Blocks: blocks})
}

func (s *Store) add(m Message) error {
	if !m.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, m.Role)
	}
	m = m.clone()
	s.mu.Lock()
	s.msgs = append(s.msgs, m)
	n := len(s.msgs)
	subs := s.subscribers()
	s.mu.Unlock()
	notify(subs, Event{Kind: EventAppended, Message: m.clone(), Len: n})
	return nil
}

// Reset empties the conversation.
func (s *Store) Reset() {
	s.mu.Lock()
	s.msgs = nil
	subs := s.subscribers()
	s.mu.Unlock()
	notify(subs, Event{Kind: EventReset})
}

// Snapshot returns a point-in-time copy of the conversation.
func (s *Store) Snapshot() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.msgs))
	for i, m := range s.msgs {
		out[i] = m.clone()
	}
	return out
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

// Compact runs fn over the backing messages under the store lock. fn may rewrite
// blocks in place and returns how many it changed; subscribers are notified only
// when that count is positive.
func (s *Store) Compact(fn func([]Message) int) int {
	s.mu.Lock()
	changed := fn(s.msgs)
	n := len(s.msgs)
	subs := s.subscribers()
	s.mu.Unlock()
	if changed > 0 {
		notify(subs, Event{Kind: EventRewritten, Len: n})
	}
	return changed
}

// Subscribe registers fn for every mutation. The returned func unregisters it.
func (s *Store) Subscribe(fn func(Event)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// subscribers copies the subscriber list; callers hold s.mu.
func (s *Store) subscribers() []subscriber {
	return append([]subscriber(nil), s.subs...)
}

func notify(subs []subscriber, ev Event) {
	for _, sub := range subs {
		sub.fn(ev)
	}
}
