package store

import (
	"reflect"
	"sync"
	"testing"
)

func TestSetGetDelete(t *testing.T) {
	s := NewMemoryStore(5)
	s.Set("user", map[string]any{"name": "Ana"})

	value, ok := s.Get("user")
	if !ok {
		t.Fatal("Expected key to exist")
	}
	if value.(map[string]any)["name"] != "Ana" {
		t.Errorf("Unexpected value %v", value)
	}

	if !s.Delete("user") {
		t.Error("Expected Delete to report true")
	}
	if s.Delete("user") {
		t.Error("Expected second Delete to report false")
	}
	if _, ok := s.Get("user"); ok {
		t.Error("Expected key to be gone")
	}
}

func TestValuesAreIsolatedFromCallers(t *testing.T) {
	s := NewMemoryStore(5)
	original := map[string]any{"items": []any{"a"}}
	s.Set("k", original)

	original["items"] = []any{"mutated"}

	value, _ := s.Get("k")
	value.(map[string]any)["items"] = []any{"also mutated"}

	again, _ := s.Get("k")
	if !reflect.DeepEqual(again, map[string]any{"items": []any{"a"}}) {
		t.Errorf("Stored value leaked mutations: %v", again)
	}
}

func TestUndoRestoresPreviousSnapshot(t *testing.T) {
	s := NewMemoryStore(5)
	s.Set("count", 1)
	s.Set("count", 2)
	s.Delete("count")

	if !s.Undo() {
		t.Fatal("Expected undo to succeed")
	}
	if v, _ := s.Get("count"); v != 2 {
		t.Errorf("Expected 2 after first undo, got %v", v)
	}

	s.Undo()
	if v, _ := s.Get("count"); v != 1 {
		t.Errorf("Expected 1 after second undo, got %v", v)
	}

	s.Undo()
	if _, ok := s.Get("count"); ok {
		t.Error("Expected empty store after third undo")
	}

	if s.Undo() {
		t.Error("Expected undo on empty history to fail")
	}
}

func TestHistoryIsBounded(t *testing.T) {
	s := NewMemoryStore(3)
	for i := 0; i < 10; i++ {
		s.Set("n", i)
	}

	if s.HistoryLen() != 3 {
		t.Fatalf("Expected history of 3, got %d", s.HistoryLen())
	}

	for _, expected := range []int{8, 7, 6} {
		if !s.Undo() {
			t.Fatal("Expected undo to succeed")
		}
		if v, _ := s.Get("n"); v != expected {
			t.Errorf("Expected %d, got %v", expected, v)
		}
	}
	if s.Undo() {
		t.Error("Oldest snapshots should have been overwritten")
	}
}

func TestClearAndKeys(t *testing.T) {
	s := NewMemoryStore(0)
	s.Set("b", 1)
	s.Set("a", 2)

	if keys := s.Keys(); !reflect.DeepEqual(keys, []string{"a", "b"}) {
		t.Errorf("Expected sorted keys, got %v", keys)
	}

	s.Clear()
	if len(s.Keys()) != 0 {
		t.Error("Expected no keys after Clear")
	}
	s.Undo()
	if len(s.Snapshot()) != 2 {
		t.Error("Expected Clear to be undoable")
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := NewMemoryStore(10)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.Set("k", n)
			s.Get("k")
			s.Snapshot()
		}(i)
	}
	wg.Wait()

	if _, ok := s.Get("k"); !ok {
		t.Error("Expected key after concurrent writes")
	}
}
