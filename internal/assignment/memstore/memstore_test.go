package memstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestStore_SetAndGet(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	if err := s.Set(ctx, "assignment:a-1", []byte(`{"kind":"assigned"}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, err := s.Get(ctx, "assignment:a-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected value to be found")
	}
	if string(got) != `{"kind":"assigned"}` {
		t.Errorf("value = %s", got)
	}
}

func TestStore_GetMissing(t *testing.T) {
	t.Parallel()

	_, ok, err := New().Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing key")
	}
}

func TestStore_CopiesOnReadAndWrite(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	in := []byte("abc")
	_ = s.Set(ctx, "k", in)
	in[0] = 'X'

	got, _, _ := s.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("stored value changed through caller slice: %s", got)
	}
	got[1] = 'Y'
	again, _, _ := s.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("stored value changed through returned slice: %s", again)
	}
}

func TestStore_Overwrite(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	_ = s.Set(ctx, "k", []byte("1"))
	_ = s.Set(ctx, "k", []byte("2"))
	got, _, _ := s.Get(ctx, "k")
	if string(got) != "2" {
		t.Errorf("value = %s, want 2", got)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("k-%d", i)
			_ = s.Set(ctx, key, []byte(key))
			_, _, _ = s.Get(ctx, key)
		}()
	}
	wg.Wait()
	if s.Len() != 50 {
		t.Errorf("Len = %d, want 50", s.Len())
	}
}
