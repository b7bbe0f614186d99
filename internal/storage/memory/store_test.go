package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"imgguard/internal/storage"
)

func TestStore_Incr(t *testing.T) {
	ctx := context.Background()

	t.Run("counts up within a window", func(t *testing.T) {
		store := NewStore(nil)
		defer store.Close()

		for i := int64(1); i <= 5; i++ {
			count, ttl, err := store.Incr(ctx, "anon:1.2.3.4", time.Hour)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if count != i {
				t.Errorf("count = %d, want %d", count, i)
			}
			if ttl <= 0 || ttl > time.Hour {
				t.Errorf("ttl = %v, want within (0, 1h]", ttl)
			}
		}
	})

	t.Run("separate keys are independent", func(t *testing.T) {
		store := NewStore(nil)
		defer store.Close()

		store.Incr(ctx, "anon:1.2.3.4", time.Hour)
		store.Incr(ctx, "anon:1.2.3.4", time.Hour)
		count, _, err := store.Incr(ctx, "anon:5.6.7.8", time.Hour)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 1 {
			t.Errorf("count = %d, want 1", count)
		}
	})

	t.Run("expired window restarts the count", func(t *testing.T) {
		store := NewStore(nil)
		defer store.Close()

		store.Incr(ctx, "burst:1.2.3.4", 10*time.Millisecond)
		store.Incr(ctx, "burst:1.2.3.4", 10*time.Millisecond)

		time.Sleep(20 * time.Millisecond)

		count, _, err := store.Incr(ctx, "burst:1.2.3.4", 10*time.Millisecond)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 1 {
			t.Errorf("count after expiry = %d, want 1", count)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		store := NewStore(nil)
		defer store.Close()

		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		if _, _, err := store.Incr(cancelled, "anon:1.2.3.4", time.Hour); err == nil {
			t.Fatal("expected error from cancelled context")
		}
	})
}

func TestStore_Peek(t *testing.T) {
	ctx := context.Background()

	t.Run("missing key reads as zero", func(t *testing.T) {
		store := NewStore(nil)
		defer store.Close()

		count, ttl, err := store.Peek(ctx, "anon:nobody")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 0 || ttl != 0 {
			t.Errorf("got count=%d ttl=%v, want 0, 0", count, ttl)
		}
	})

	t.Run("peek does not mutate", func(t *testing.T) {
		store := NewStore(nil)
		defer store.Close()

		store.Incr(ctx, "anon:1.2.3.4", time.Hour)
		store.Incr(ctx, "anon:1.2.3.4", time.Hour)

		first, _, _ := store.Peek(ctx, "anon:1.2.3.4")
		second, _, _ := store.Peek(ctx, "anon:1.2.3.4")

		if first != 2 || second != 2 {
			t.Errorf("got %d then %d, want 2 both times", first, second)
		}
	})
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	defer store.Close()

	store.Incr(ctx, "anon:1.2.3.4", time.Hour)
	store.Incr(ctx, "burst:1.2.3.4", 10*time.Second)

	if err := store.Reset(ctx, "anon:1.2.3.4", "burst:1.2.3.4"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count, _, _ := store.Peek(ctx, "anon:1.2.3.4")
	if count != 0 {
		t.Errorf("count after reset = %d, want 0", count)
	}
}

func TestStore_MaxEntries(t *testing.T) {
	ctx := context.Background()
	store := NewStore(&storage.QuotaStoreConfig{MaxEntries: 2})
	defer store.Close()

	store.Incr(ctx, "a", time.Hour)
	store.Incr(ctx, "b", time.Hour)
	store.Incr(ctx, "c", time.Hour)

	total := 0
	for _, key := range []string{"a", "b", "c"} {
		count, _, _ := store.Peek(ctx, key)
		if count > 0 {
			total++
		}
	}
	if total > 2 {
		t.Errorf("expected at most 2 live entries, got %d", total)
	}
}

func TestStore_ConcurrentIncr(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	defer store.Close()

	const workers = 20
	const perWorker = 50

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				store.Incr(ctx, "shared", time.Hour)
			}
		}()
	}
	wg.Wait()

	count, _, err := store.Peek(ctx, "shared")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != workers*perWorker {
		t.Errorf("count = %d, want %d", count, workers*perWorker)
	}
}

func TestStore_CloseIsIdempotent(t *testing.T) {
	store := NewStore(nil)
	if err := store.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}
}
