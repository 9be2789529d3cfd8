package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func rec(id string, pool int) CycleRecord {
	return CycleRecord{ID: id, PoolSize: pool, Action: "hold", StartedAt: time.Now()}
}

func TestNewMemoryStore(t *testing.T) {
	st := NewMemoryStore(0)
	if st == nil {
		t.Fatal("NewMemoryStore() = nil")
	}
	if st.Len() != 0 {
		t.Errorf("Len() = %d, want 0", st.Len())
	}
	if _, ok, _ := st.Latest(context.Background()); ok {
		t.Error("Latest() ok = true on empty store")
	}
}

func TestMemoryStore_RecentNewestFirst(t *testing.T) {
	st := NewMemoryStore(10)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := st.Append(ctx, rec(fmt.Sprintf("c%d", i), i)); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	got, err := st.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	want := []string{"c3", "c2", "c1"}
	if len(got) != len(want) {
		t.Fatalf("Recent() = %d records, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("Recent()[%d].ID = %s, want %s", i, got[i].ID, id)
		}
	}

	latest, ok, _ := st.Latest(ctx)
	if !ok || latest.ID != "c3" {
		t.Errorf("Latest() = %v, %v, want c3", latest.ID, ok)
	}
}

func TestMemoryStore_RingEvictsOldest(t *testing.T) {
	st := NewMemoryStore(3)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_ = st.Append(ctx, rec(fmt.Sprintf("c%d", i), i))
	}

	if st.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", st.Len())
	}
	got, _ := st.Recent(ctx, 10)
	want := []string{"c5", "c4", "c3"}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("Recent()[%d].ID = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestMemoryStore_RecentLimit(t *testing.T) {
	st := NewMemoryStore(10)
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		_ = st.Append(ctx, rec(fmt.Sprintf("c%d", i), 1))
	}

	got, _ := st.Recent(ctx, 2)
	if len(got) != 2 {
		t.Fatalf("Recent(2) = %d records, want 2", len(got))
	}
	if got[0].ID != "c5" || got[1].ID != "c4" {
		t.Errorf("Recent(2) = %s,%s, want c5,c4", got[0].ID, got[1].ID)
	}
}

func TestMemoryStore_Subscribe(t *testing.T) {
	st := NewMemoryStore(10)

	ch := st.Subscribe()
	go func() {
		_ = st.Append(context.Background(), rec("c1", 2))
	}()

	select {
	case got := <-ch:
		if got.ID != "c1" {
			t.Errorf("received ID = %v, want c1", got.ID)
		}
	case <-time.After(time.Second):
		t.Error("Subscribe() channel did not receive record")
	}
}

func TestMemoryStore_Unsubscribe(t *testing.T) {
	st := NewMemoryStore(10)

	ch := st.Subscribe()
	st.Unsubscribe(ch)
	st.Unsubscribe(ch) // second call is a no-op

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("channel should be closed after Unsubscribe()")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("channel should be closed immediately")
	}
}

func TestMemoryStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	st := NewMemoryStore(10)
	_ = st.Subscribe() // never read

	done := make(chan struct{})
	go func() {
		for i := 0; i < 2*subscriberBuffer; i++ {
			_ = st.Append(context.Background(), rec("c", 1))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Append() blocked on slow subscriber")
	}
}

func TestMemoryStore_CloseClosesSubscribers(t *testing.T) {
	st := NewMemoryStore(10)
	ch := st.Subscribe()

	if err := st.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed after Close()")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	st := NewMemoryStore(16)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = st.Append(ctx, rec("c", j))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = st.Recent(ctx, 5)
			}
		}()
		go func() {
			defer wg.Done()
			ch := st.Subscribe()
			time.Sleep(5 * time.Millisecond)
			st.Unsubscribe(ch)
		}()
	}
	wg.Wait()

	if st.Len() != 16 {
		t.Errorf("Len() = %d, want 16", st.Len())
	}
}
