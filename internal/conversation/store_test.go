package conversation

import (
	"fmt"
	"sync"
	"testing"
)

func TestStore_SeedAppendHistoryKeepsOrder(t *testing.T) {
	s := NewStore()
	s.Seed("a", "hello")
	s.Append("a", Turn{Role: RoleUser, Text: "hi"}, Turn{Role: RoleAssistant, Text: "how can I help"})
	s.Append("a", Turn{Role: RoleUser, Text: "weather?"})

	got := s.History("a")
	want := []Turn{
		{Role: RoleAssistant, Text: "hello"},
		{Role: RoleUser, Text: "hi"},
		{Role: RoleAssistant, Text: "how can I help"},
		{Role: RoleUser, Text: "weather?"},
	}
	if len(got) != len(want) {
		t.Fatalf("history len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("turn[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestStore_HistoryMissingIsEmpty(t *testing.T) {
	s := NewStore()
	if h := s.History("nope"); len(h) != 0 {
		t.Fatalf("history = %+v, want empty", h)
	}
}

func TestStore_HistoryReturnsCopy(t *testing.T) {
	s := NewStore()
	s.Seed("a", "hello")
	h := s.History("a")
	h[0].Text = "mutated"
	if got := s.History("a")[0].Text; got != "hello" {
		t.Fatalf("stored text = %q, want hello", got)
	}
}

func TestStore_MoveCarriesHistory(t *testing.T) {
	s := NewStore()
	s.Seed("old", "hello")
	s.Append("old", Turn{Role: RoleUser, Text: "hi"})
	s.Seed("new", "stale")

	if !s.Move("old", "new") {
		t.Fatal("Move returned false")
	}
	if h := s.History("old"); len(h) != 0 {
		t.Fatalf("old history = %+v, want empty", h)
	}
	h := s.History("new")
	if len(h) != 2 || h[1].Text != "hi" {
		t.Fatalf("new history = %+v", h)
	}
	if s.Move("missing", "x") {
		t.Fatal("Move of missing id should return false")
	}
	if s.Move("new", "new") {
		t.Fatal("Move onto itself should return false")
	}
}

func TestStore_DeleteAndLen(t *testing.T) {
	s := NewStore()
	s.Seed("a", "x")
	s.Seed("b", "y")
	s.Delete("a")
	s.Delete("a")
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
}

func TestStore_ConcurrentAppend(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i%4)
			for j := 0; j < 100; j++ {
				s.Append(id, Turn{Role: RoleUser, Text: "x"})
			}
		}(i)
	}
	wg.Wait()
	for i := 0; i < 4; i++ {
		if n := len(s.History(fmt.Sprintf("s%d", i))); n != 400 {
			t.Fatalf("s%d len = %d, want 400", i, n)
		}
	}
}
