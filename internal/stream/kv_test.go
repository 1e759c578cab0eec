package stream

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryKVListRange(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	for i := 0; i < 5; i++ {
		if err := kv.RPush(ctx, "list", string(rune('a'+i))); err != nil {
			t.Fatalf("RPush: %v", err)
		}
	}

	tests := []struct {
		name        string
		start, stop int64
		want        []string
	}{
		{"full", 0, -1, []string{"a", "b", "c", "d", "e"}},
		{"tail", -2, -1, []string{"d", "e"}},
		{"middle", 1, 3, []string{"b", "c", "d"}},
		{"past end", 3, 99, []string{"d", "e"}},
		{"empty window", 4, 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := kv.LRange(ctx, "list", tt.start, tt.stop)
			if err != nil {
				t.Fatalf("LRange: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

// Subscribers that disconnect while a publisher is active must not crash
// the publisher: Close and Publish synchronize on the store lock, so a
// send can never land on a closed channel.
func TestPublishDuringSubscriberClose(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			if err := kv.Publish(ctx, "chan", "new"); err != nil {
				t.Errorf("Publish: %v", err)
				return
			}
		}
	}()

	for i := 0; i < 200; i++ {
		sub, err := kv.Subscribe(ctx, "chan")
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		// Drain a little so the publisher is mid-flight, then drop the
		// subscription out from under it.
		select {
		case <-sub.C():
		case <-time.After(10 * time.Millisecond):
		}
		sub.Close()
	}

	close(done)
	wg.Wait()
}

func TestPubSubCloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	sub, err := kv.Subscribe(ctx, "chan")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	sub.Close()
	sub.Close()
	if _, ok := <-sub.C(); ok {
		t.Fatal("expected closed channel after Close")
	}
}
