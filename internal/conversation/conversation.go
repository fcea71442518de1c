// Package conversation holds in-memory transcripts. A Conversation is
// append-only between resets, starts with a system turn once
// initialized, and carries its own lock so chat and clear on the same
// transcript never interleave. Nothing is persisted.
package conversation

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one transcript entry. At is when the turn was recorded, in the
// household's time zone; it is metadata and never part of Text.
type Turn struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Conversation is one transcript.
type Conversation struct {
	ID string

	// sem is a one-slot semaphore held across a whole chat or clear.
	sem chan struct{}

	mu      sync.Mutex
	turns   []Turn
	updated time.Time
}

func newConversation(id string) *Conversation {
	return &Conversation{ID: id, sem: make(chan struct{}, 1)}
}

// Lock acquires exclusive use of the conversation or returns ctx.Err().
func (c *Conversation) Lock(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlock releases a Lock.
func (c *Conversation) Unlock() {
	<-c.sem
}

// Reset replaces every turn with a single system turn. Callers hold
// the conversation lock.
func (c *Conversation) Reset(system Turn) {
	system.Role = RoleSystem
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = []Turn{system}
	c.updated = system.At
}

// Append adds turns in order. Callers hold the conversation lock.
func (c *Conversation) Append(turns ...Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, turns...)
	if n := len(turns); n > 0 {
		c.updated = turns[n-1].At
	}
}

// Initialized reports whether the system turn is present.
func (c *Conversation) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns) > 0
}

// Turns returns a copy of the transcript.
func (c *Conversation) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// Updated returns the time of the most recent turn.
func (c *Conversation) Updated() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updated
}

// Store maps conversation ids to Conversations.
type Store struct {
	mu    sync.Mutex
	convs map[string]*Conversation
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{convs: make(map[string]*Conversation)}
}

// Get returns the conversation for id, creating an uninitialized one
// when absent.
func (s *Store) Get(id string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		c = newConversation(id)
		s.convs[id] = c
	}
	return c
}

// Lookup returns the conversation for id without creating it.
func (s *Store) Lookup(id string) (*Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	return c, ok
}

// Drop forgets id. Holders of the old *Conversation keep a valid but
// detached value.
func (s *Store) Drop(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.convs[id]
	delete(s.convs, id)
	return ok
}

// IDs returns the known conversation ids, sorted.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.convs))
	for id := range s.convs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats summarizes the store for the health endpoint.
func (s *Store) Stats() map[string]any {
	s.mu.Lock()
	convs := make([]*Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		convs = append(convs, c)
	}
	s.mu.Unlock()

	turns := 0
	for _, c := range convs {
		turns += c.Len()
	}
	return map[string]any{
		"conversations": len(convs),
		"turns":         turns,
	}
}
