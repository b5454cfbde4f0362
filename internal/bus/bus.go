// Package bus provides the in-process event bus carrying lifecycle
// notifications between the request-handling workflows and their downstream
// consumers.
//
// Delivery contract:
//   - Publish blocks until every matching subscriber has accepted the message
//     into its buffer. Acceptance means "accepted by the messaging layer",
//     not "delivered to consumers".
//   - Each subscriber consumes independently and at-least-once: a handler
//     error triggers redelivery up to the subscriber's attempt budget, after
//     which the message is diverted to the dead-letter sink instead of being
//     dropped or blocking other subscribers.
//   - Ordering holds per subscriber only; nothing is ordered across
//     consumers.
//
// Batched subscribers accumulate up to BatchSize messages or wait up to
// BatchWindow, whichever comes first, before invoking their handler. For a
// distributed deployment this package would be replaced by a broker-backed
// implementation honoring the same contract.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var (
	// busPublished counts messages accepted by topic.
	busPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_messages_published_total",
			Help: "Total number of messages accepted by the event bus.",
		},
		[]string{"topic"},
	)

	// busDelivered counts successful handler completions per consumer.
	busDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_messages_delivered_total",
			Help: "Total number of messages successfully handled, per consumer.",
		},
		[]string{"topic", "consumer"},
	)

	// busDeadLettered counts messages that exhausted their retry budget.
	busDeadLettered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_messages_dead_lettered_total",
			Help: "Total number of messages diverted to the dead-letter area.",
		},
		[]string{"topic", "consumer"},
	)
)

func init() {
	prometheus.MustRegister(busPublished, busDelivered, busDeadLettered)
}

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("bus: closed")

// Envelope is the unit of delivery: an event type tag plus the serialized
// payload. MessageID is assigned per publish and survives redelivery, so
// consumers can record it for tracing duplicates.
type Envelope struct {
	MessageID string          `json:"messageId"`
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
}

// Handler consumes one message. Returning an error requests redelivery.
type Handler func(ctx context.Context, env Envelope) error

// BatchHandler consumes an accumulated batch. Returning an error requests
// redelivery of the whole batch.
type BatchHandler func(ctx context.Context, batch []Envelope) error

// DeadLetterSink receives messages that exhausted their delivery budget.
// Implementations must not fail silently; at minimum they log.
type DeadLetterSink interface {
	HoldDeadLetter(ctx context.Context, consumer, topic string, env Envelope, attempts int, lastErr error)
}

// SubscriberConfig describes one consumer's delivery policy.
type SubscriberConfig struct {
	// Name identifies the consumer in logs, metrics, and dead letters.
	Name string
	// EventTypes is an allowlist filter; empty means unfiltered.
	EventTypes []string
	// MaxAttempts bounds deliveries per message (default 3).
	MaxAttempts int
	// RetryDelay is the pause between redeliveries (default none).
	RetryDelay time.Duration
	// BatchSize and BatchWindow configure batched subscriptions; they are
	// ignored by Subscribe and required by SubscribeBatch.
	BatchSize   int
	BatchWindow time.Duration
}

type subscriber struct {
	cfg   SubscriberConfig
	allow map[string]struct{}
	ch    chan Envelope
}

func (s *subscriber) matches(eventType string) bool {
	if len(s.allow) == 0 {
		return true
	}
	_, ok := s.allow[eventType]
	return ok
}

// Bus is the in-memory event bus. Safe for concurrent use.
type Bus struct {
	buffer int
	dead   DeadLetterSink
	log    zerolog.Logger

	mu     sync.RWMutex
	subs   map[string][]*subscriber
	closed bool
	wg     sync.WaitGroup
}

// New constructs a Bus with the given per-subscriber buffer depth and
// dead-letter sink. A nil sink downgrades dead-lettering to log-only.
func New(buffer int, dead DeadLetterSink, log zerolog.Logger) *Bus {
	if buffer < 1 {
		buffer = 1
	}
	return &Bus{
		buffer: buffer,
		dead:   dead,
		log:    log.With().Str("component", "bus").Logger(),
		subs:   make(map[string][]*subscriber),
	}
}

// Publish serializes payload and offers it to every matching subscriber of
// topic. It returns once all of them accepted the message, or when ctx is
// done. Acceptance does not imply the consumers have processed it.
func (b *Bus) Publish(ctx context.Context, topic, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bus: marshal %s: %w", eventType, err)
	}
	env := Envelope{
		MessageID: uuid.NewString(),
		EventType: eventType,
		Data:      data,
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	subs := b.subs[topic]
	b.mu.RUnlock()

	for _, s := range subs {
		if !s.matches(eventType) {
			continue
		}
		select {
		case s.ch <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	busPublished.WithLabelValues(topic).Inc()
	b.log.Debug().
		Str("topic", topic).
		Str("event_type", eventType).
		Str("message_id", env.MessageID).
		Msg("message accepted")
	return nil
}

// Subscribe registers a per-message consumer on topic and starts its delivery
// goroutine. Must be called before the bus starts receiving traffic the
// consumer cares about; there is no replay of earlier messages.
func (b *Bus) Subscribe(topic string, cfg SubscriberConfig, h Handler) error {
	s, err := b.addSubscriber(topic, cfg)
	if err != nil {
		return err
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for env := range s.ch {
			b.deliver(topic, s.cfg, env, h)
		}
	}()
	return nil
}

// SubscribeBatch registers a batched consumer on topic. Batches flush when
// they reach cfg.BatchSize or when cfg.BatchWindow elapses since the first
// buffered message, whichever comes first.
func (b *Bus) SubscribeBatch(topic string, cfg SubscriberConfig, h BatchHandler) error {
	if cfg.BatchSize < 1 {
		return fmt.Errorf("bus: subscriber %q: batch size must be >= 1", cfg.Name)
	}
	if cfg.BatchWindow <= 0 {
		return fmt.Errorf("bus: subscriber %q: batch window must be > 0", cfg.Name)
	}
	s, err := b.addSubscriber(topic, cfg)
	if err != nil {
		return err
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		var batch []Envelope
		timer := time.NewTimer(cfg.BatchWindow)
		if !timer.Stop() {
			<-timer.C
		}
		flush := func() {
			if len(batch) == 0 {
				return
			}
			b.deliverBatch(topic, s.cfg, batch, h)
			batch = nil
		}

		for {
			select {
			case env, ok := <-s.ch:
				if !ok {
					flush()
					return
				}
				if len(batch) == 0 {
					timer.Reset(cfg.BatchWindow)
				}
				batch = append(batch, env)
				if len(batch) >= cfg.BatchSize {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					flush()
				}
			case <-timer.C:
				flush()
			}
		}
	}()
	return nil
}

// Close stops accepting publishes, closes all subscriber channels, and waits
// for in-flight deliveries (including pending batches) to finish.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, s := range subs {
			close(s.ch)
		}
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bus) addSubscriber(topic string, cfg SubscriberConfig) (*subscriber, error) {
	if cfg.Name == "" {
		return nil, errors.New("bus: subscriber name required")
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	s := &subscriber{
		cfg: cfg,
		ch:  make(chan Envelope, b.buffer),
	}
	if len(cfg.EventTypes) > 0 {
		s.allow = make(map[string]struct{}, len(cfg.EventTypes))
		for _, t := range cfg.EventTypes {
			s.allow[t] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	b.subs[topic] = append(b.subs[topic], s)
	return s, nil
}

func (b *Bus) deliver(topic string, cfg SubscriberConfig, env Envelope, h Handler) {
	ctx := context.Background()
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if lastErr = h(ctx, env); lastErr == nil {
			busDelivered.WithLabelValues(topic, cfg.Name).Inc()
			return
		}
		b.log.Warn().
			Err(lastErr).
			Str("topic", topic).
			Str("consumer", cfg.Name).
			Str("message_id", env.MessageID).
			Int("attempt", attempt).
			Msg("delivery failed")
		if attempt < cfg.MaxAttempts && cfg.RetryDelay > 0 {
			time.Sleep(cfg.RetryDelay)
		}
	}
	b.divert(ctx, topic, cfg, env, lastErr)
}

func (b *Bus) deliverBatch(topic string, cfg SubscriberConfig, batch []Envelope, h BatchHandler) {
	ctx := context.Background()
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if lastErr = h(ctx, batch); lastErr == nil {
			busDelivered.WithLabelValues(topic, cfg.Name).Add(float64(len(batch)))
			return
		}
		b.log.Warn().
			Err(lastErr).
			Str("topic", topic).
			Str("consumer", cfg.Name).
			Int("batch_size", len(batch)).
			Int("attempt", attempt).
			Msg("batch delivery failed")
		if attempt < cfg.MaxAttempts && cfg.RetryDelay > 0 {
			time.Sleep(cfg.RetryDelay)
		}
	}
	for _, env := range batch {
		b.divert(ctx, topic, cfg, env, lastErr)
	}
}

func (b *Bus) divert(ctx context.Context, topic string, cfg SubscriberConfig, env Envelope, lastErr error) {
	busDeadLettered.WithLabelValues(topic, cfg.Name).Inc()
	b.log.Error().
		Err(lastErr).
		Str("topic", topic).
		Str("consumer", cfg.Name).
		Str("message_id", env.MessageID).
		Int("attempts", cfg.MaxAttempts).
		Msg("message dead-lettered")
	if b.dead != nil {
		b.dead.HoldDeadLetter(ctx, cfg.Name, topic, env, cfg.MaxAttempts, lastErr)
	}
}
