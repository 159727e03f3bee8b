package cmap

import (
	"strconv"
	"sync"
	"testing"
)

func TestBasicOps(t *testing.T) {
	m := New[int]()
	m.Set("a", 1)
	m.Set("b", 2)

	if v, ok := m.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %d, %v", v, ok)
	}
	if m.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", m.Count())
	}
	if !m.Has("b") {
		t.Fatal("Has(b) = false")
	}

	v, ok := m.Pop("a")
	if !ok || v != 1 {
		t.Fatalf("Pop(a) = %d, %v", v, ok)
	}
	if m.Has("a") {
		t.Fatal("a still present after Pop")
	}

	m.Delete("b")
	if m.Count() != 0 {
		t.Fatalf("Count() = %d after deletes, want 0", m.Count())
	}
}

func TestRangeAndKeys(t *testing.T) {
	m := New[string]()
	for i := 0; i < 100; i++ {
		m.Set(strconv.Itoa(i), "v")
	}
	seen := 0
	m.Range(func(_, _ string) bool {
		seen++
		return true
	})
	if seen != 100 {
		t.Fatalf("Range visited %d entries, want 100", seen)
	}
	if len(m.Keys()) != 100 {
		t.Fatalf("Keys() returned %d, want 100", len(m.Keys()))
	}

	// Early termination.
	seen = 0
	m.Range(func(_, _ string) bool {
		seen++
		return false
	})
	if seen != 1 {
		t.Fatalf("Range after stop visited %d, want 1", seen)
	}
}

func TestInvalidShardCountFallsBack(t *testing.T) {
	m := NewWithShards[int](7)
	if len(m.shards) != DefaultShardCount {
		t.Fatalf("shards = %d, want %d", len(m.shards), DefaultShardCount)
	}
}

func TestConcurrentAccess(t *testing.T) {
	m := New[int]()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				k := strconv.Itoa(g*500 + i)
				m.Set(k, i)
				m.Get(k)
			}
		}(g)
	}
	wg.Wait()
	if m.Count() != 4000 {
		t.Fatalf("Count() = %d, want 4000", m.Count())
	}
	m.Clear()
	if m.Count() != 0 {
		t.Fatalf("Count() = %d after Clear, want 0", m.Count())
	}
}
