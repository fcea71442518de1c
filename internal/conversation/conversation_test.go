package conversation

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestResetAndAppend(t *testing.T) {
	s := NewStore()
	c := s.Get("household")
	if c.Initialized() {
		t.Fatal("new conversation should be uninitialized")
	}

	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	c.Reset(Turn{Text: "system", At: now})
	c.Append(Turn{Role: RoleUser, Text: "hi", At: now}, Turn{Role: RoleAssistant, Text: "hello", At: now.Add(time.Second)})

	turns := c.Turns()
	if len(turns) != 3 || turns[0].Role != RoleSystem || turns[2].Text != "hello" {
		t.Fatalf("turns = %+v", turns)
	}
	if !c.Updated().Equal(now.Add(time.Second)) {
		t.Errorf("Updated() = %v", c.Updated())
	}

	turns[0].Text = "mutated"
	if c.Turns()[0].Text != "system" {
		t.Error("Turns() returned shared backing array")
	}

	c.Reset(Turn{Text: "fresh", At: now})
	if c.Len() != 1 || c.Turns()[0].Text != "fresh" {
		t.Errorf("after reset = %+v", c.Turns())
	}
}

func TestStoreGetIsStable(t *testing.T) {
	s := NewStore()
	if s.Get("a") != s.Get("a") {
		t.Fatal("Get returned different conversations for the same id")
	}
	if _, ok := s.Lookup("b"); ok {
		t.Error("Lookup created a conversation")
	}
	s.Get("b")
	if got := s.IDs(); len(got) != 2 || got[0] != "a" {
		t.Errorf("IDs() = %v", got)
	}
	if !s.Drop("a") || s.Drop("a") {
		t.Error("Drop should report presence once")
	}
	if st := s.Stats(); st["conversations"] != 1 {
		t.Errorf("Stats() = %v", st)
	}
}

func TestLockHonorsContext(t *testing.T) {
	c := NewStore().Get("x")
	if err := c.Lock(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Lock(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second Lock = %v, want deadline exceeded", err)
	}

	c.Unlock()
	if err := c.Lock(context.Background()); err != nil {
		t.Fatalf("Lock after Unlock: %v", err)
	}
	c.Unlock()
}
