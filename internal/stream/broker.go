package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

// DefaultResponseTTL bounds how long a finished run's response list is
// retained before the store reclaims it.
const DefaultResponseTTL = 24 * time.Hour

// Broker gives each consumer an incremental, cursor-based view of a run's
// emitted messages and carries the multi-channel stop-signal mechanism.
// The underlying list and channels are shared infrastructure keyed by run
// id; all list mutation is append-only, so concurrent publish and
// subscribe are safe.
type Broker struct {
	kv     KV
	logger *slog.Logger

	// InstanceID identifies this worker for instance-scoped control
	// channels and active-run markers.
	InstanceID string

	// ResponseTTL is applied to the response list on cleanup.
	ResponseTTL time.Duration
}

// NewBroker creates a broker over the shared store.
func NewBroker(kv KV, instanceID string, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		kv:          kv,
		logger:      logger,
		InstanceID:  instanceID,
		ResponseTTL: DefaultResponseTTL,
	}
}

// Publish appends the serialized message to the run's response list, then
// emits a content-free notification. Append-then-notify ordering is what
// makes cursor delivery gap-free: by the time a subscriber reacts to the
// notification, the entry is already readable.
func (b *Broker) Publish(ctx context.Context, runID string, msg *models.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("serialize message: %w", err)
	}
	if err := b.kv.RPush(ctx, responseListKey(runID), string(raw)); err != nil {
		return fmt.Errorf("append response: %w", err)
	}
	if err := b.kv.Publish(ctx, newResponseChannel(runID), newResponseToken); err != nil {
		return fmt.Errorf("notify response: %w", err)
	}
	return nil
}

// Subscription is one consumer's view of a run's message stream. The
// cursor (last delivered index) is monotonically non-decreasing and is
// discarded on Close; it is never persisted beyond the run.
type Subscription struct {
	broker *Broker
	runID  string
	pubsub PubSub

	out    chan *models.Message
	done   chan struct{}
	closer sync.Once
}

// Messages returns the delivery channel. It is closed when the
// subscription is closed.
func (s *Subscription) Messages() <-chan *models.Message { return s.out }

// Close tears the subscription down.
func (s *Subscription) Close() {
	s.closer.Do(func() {
		close(s.done)
		s.pubsub.Close()
	})
}

// Subscribe attaches a consumer to a run's stream. Existing history is
// delivered first as a one-shot backfill, then each new entry exactly
// once, in publish order. How many notifications fire per publish is
// irrelevant: the cursor, not the notification count, defines progress.
func (b *Broker) Subscribe(ctx context.Context, runID string) (*Subscription, error) {
	pubsub, err := b.kv.Subscribe(ctx, newResponseChannel(runID))
	if err != nil {
		return nil, fmt.Errorf("subscribe responses: %w", err)
	}

	sub := &Subscription{
		broker: b,
		runID:  runID,
		pubsub: pubsub,
		out:    make(chan *models.Message, 64),
		done:   make(chan struct{}),
	}
	go sub.pump(ctx)
	return sub, nil
}

// pump performs the backfill and then relays new entries per
// notification, advancing the cursor to the list length after each drain.
func (s *Subscription) pump(ctx context.Context) {
	defer close(s.out)

	cursor, err := s.drainFrom(ctx, 0)
	if err != nil {
		s.broker.logger.Warn("stream backfill failed", "run_id", s.runID, "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case _, ok := <-s.pubsub.C():
			if !ok {
				return
			}
			next, err := s.drainFrom(ctx, cursor)
			if err != nil {
				s.broker.logger.Warn("stream delivery failed", "run_id", s.runID, "error", err)
				return
			}
			cursor = next
		}
	}
}

// drainFrom delivers every list entry from the cursor forward and returns
// the new cursor position.
func (s *Subscription) drainFrom(ctx context.Context, cursor int64) (int64, error) {
	entries, err := s.broker.kv.LRange(ctx, responseListKey(s.runID), cursor, -1)
	if err != nil {
		return cursor, err
	}
	for _, raw := range entries {
		var msg models.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			s.broker.logger.Warn("undecodable stream entry skipped", "run_id", s.runID, "error", err)
			cursor++
			continue
		}
		select {
		case <-ctx.Done():
			return cursor, ctx.Err()
		case <-s.done:
			return cursor, nil
		case s.out <- &msg:
			cursor++
		}
	}
	return cursor, nil
}

// ControlListener reacts to stop signals for one run. Both the
// instance-scoped and the run-global channel are always subscribed
// together, so a stop can come from the worker handling the run or from
// any coordinator that only knows the run id.
type ControlListener struct {
	pubsub PubSub
	done   chan struct{}
	closer sync.Once
}

// Close stops listening.
func (l *ControlListener) Close() {
	l.closer.Do(func() {
		close(l.done)
		l.pubsub.Close()
	})
}

// ListenControl subscribes to the run's control channels and invokes
// onStop once when a STOP payload arrives on either.
func (b *Broker) ListenControl(ctx context.Context, runID string, onStop func()) (*ControlListener, error) {
	pubsub, err := b.kv.Subscribe(ctx,
		globalControlChannel(runID),
		instanceControlChannel(runID, b.InstanceID),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe control: %w", err)
	}

	listener := &ControlListener{pubsub: pubsub, done: make(chan struct{})}
	go func() {
		var stopped bool
		for {
			select {
			case <-ctx.Done():
				return
			case <-listener.done:
				return
			case msg, ok := <-pubsub.C():
				if !ok {
					return
				}
				if Signal(msg.Payload) == SignalStop && !stopped {
					stopped = true
					onStop()
				}
			}
		}
	}()
	return listener, nil
}

// SubscribeControl returns the raw run-global control channel for
// consumers that end their stream on END_STREAM, ERROR, or STOP.
func (b *Broker) SubscribeControl(ctx context.Context, runID string) (PubSub, error) {
	return b.kv.Subscribe(ctx, globalControlChannel(runID))
}

// SignalStop publishes a STOP payload on the run-global control channel.
func (b *Broker) SignalStop(ctx context.Context, runID string) error {
	return b.kv.Publish(ctx, globalControlChannel(runID), string(SignalStop))
}

// PublishStatus maps a run status transition to its control signal and
// publishes it on the run-global channel. Non-terminal statuses publish
// nothing.
func (b *Broker) PublishStatus(ctx context.Context, runID string, status models.RunStatus) error {
	signal, ok := StatusSignal(status)
	if !ok {
		return nil
	}
	return b.kv.Publish(ctx, globalControlChannel(runID), string(signal))
}

// MarkActive records that this worker instance is executing the run.
func (b *Broker) MarkActive(ctx context.Context, runID string) error {
	return b.kv.Set(ctx, activeRunKey(runID, b.InstanceID), time.Now().UTC().Format(time.RFC3339))
}

// Cleanup releases a finished run's streaming resources: the response
// list gets a bounded TTL so abandoned runs are reclaimed, and the
// active-run marker for this instance is removed.
func (b *Broker) Cleanup(ctx context.Context, runID string) {
	ttl := b.ResponseTTL
	if ttl <= 0 {
		ttl = DefaultResponseTTL
	}
	if err := b.kv.Expire(ctx, responseListKey(runID), ttl); err != nil {
		b.logger.Warn("response list expiry failed", "run_id", runID, "error", err)
	}
	if err := b.kv.Delete(ctx, activeRunKey(runID, b.InstanceID)); err != nil {
		b.logger.Warn("active-run marker removal failed", "run_id", runID, "error", err)
	}
}
