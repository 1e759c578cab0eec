// Package stream implements the run streaming and control plane: an
// append-only response list plus content-free notifications over a shared
// key-value store, and per-run control channels for stop signals.
// Subscribers track their own cursor into the response list, which makes
// delivery gap-free and strictly ordered even when notifications coalesce
// in the underlying transport.
package stream

import (
	"context"
	"sync"
	"time"
)

// ChannelMessage is one payload received on a subscribed channel.
type ChannelMessage struct {
	Channel string
	Payload string
}

// PubSub is a live subscription to one or more channels. Close releases
// the subscription and closes C.
type PubSub interface {
	C() <-chan ChannelMessage
	Close()
}

// KV is the narrow slice of a shared key-value store the broker depends
// on: append-only lists, fire-and-forget channel publish/subscribe, plain
// values for worker markers, and key expiry.
type KV interface {
	RPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)

	Publish(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channels ...string) (PubSub, error)

	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error

	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// MemoryKV is an in-process KV implementation backing single-node
// deployments and tests. All list mutation is append-only, matching the
// broker's concurrency contract.
type MemoryKV struct {
	mu     sync.Mutex
	lists  map[string][]string
	values map[string]string
	subs   map[string]map[*memoryPubSub]struct{}
	timers map[string]*time.Timer
}

// NewMemoryKV creates an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		lists:  map[string][]string{},
		values: map[string]string{},
		subs:   map[string]map[*memoryPubSub]struct{}{},
		timers: map[string]*time.Timer{},
	}
}

func (m *MemoryKV) RPush(ctx context.Context, key string, values ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[key] = append(m.lists[key], values...)
	return nil
}

// LRange follows list-range semantics where stop is inclusive and -1
// addresses the final element.
func (m *MemoryKV) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.lists[key]
	n := int64(len(list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])
	return out, nil
}

func (m *MemoryKV) LLen(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.lists[key])), nil
}

func (m *MemoryKV) Publish(ctx context.Context, channel, payload string) error {
	msg := ChannelMessage{Channel: channel, Payload: payload}

	// Sends stay under the lock: Close unregisters and closes the channel
	// under the same lock, so a subscriber channel can never be closed
	// between lookup and send. Sends are non-blocking, so holding the
	// lock here cannot deadlock against a slow receiver.
	m.mu.Lock()
	defer m.mu.Unlock()
	for s := range m.subs[channel] {
		select {
		case s.ch <- msg:
		default:
			// Slow subscriber: drop the notification. Cursor-based
			// consumers recover on the next one.
		}
	}
	return nil
}

func (m *MemoryKV) Subscribe(ctx context.Context, channels ...string) (PubSub, error) {
	sub := &memoryPubSub{
		kv:       m,
		channels: channels,
		ch:       make(chan ChannelMessage, 64),
	}
	m.mu.Lock()
	for _, c := range channels {
		if m.subs[c] == nil {
			m.subs[c] = map[*memoryPubSub]struct{}{}
		}
		m.subs[c][sub] = struct{}{}
	}
	m.mu.Unlock()
	return sub, nil
}

func (m *MemoryKV) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	delete(m.lists, key)
	if t := m.timers[key]; t != nil {
		t.Stop()
		delete(m.timers, key)
	}
	return nil
}

// Expire schedules key deletion after ttl. Re-arming replaces the
// previous timer.
func (m *MemoryKV) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.timers[key]; t != nil {
		t.Stop()
	}
	m.timers[key] = time.AfterFunc(ttl, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.values, key)
		delete(m.lists, key)
		delete(m.timers, key)
	})
	return nil
}

// Get returns a stored value; used by tests and worker-marker sweeps.
func (m *MemoryKV) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

type memoryPubSub struct {
	kv       *MemoryKV
	channels []string
	ch       chan ChannelMessage
	once     sync.Once
}

func (s *memoryPubSub) C() <-chan ChannelMessage { return s.ch }

func (s *memoryPubSub) Close() {
	s.once.Do(func() {
		s.kv.mu.Lock()
		defer s.kv.mu.Unlock()
		for _, c := range s.channels {
			delete(s.kv.subs[c], s)
		}
		// Closing under the lock keeps Publish from sending on a closed
		// channel.
		close(s.ch)
	})
}
