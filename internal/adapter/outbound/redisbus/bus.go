// Package redisbus implements the command/response bridge over Redis
// pub/sub.
//
// Requests are published on the pattern's channel as
// {"pattern","data","id"}; backends answer on "<channel>.reply" with
// {"id","response","err","isDisposed"}. One Bus per Redis endpoint holds a
// single PSUBSCRIBE on "*.reply" and routes replies to waiting calls by id.
package redisbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Sentinel-Gate/edgegate/internal/domain/command"
)

// Transport failures returned by Call. Callers map them to HTTP statuses.
var (
	// ErrClosed is returned for calls on a closed or unstarted bus, and for
	// calls still waiting when the bus is closed.
	ErrClosed = errors.New("redisbus: bus closed")
	// ErrPublish wraps a failure to hand the request to Redis.
	ErrPublish = errors.New("redisbus: publish failed")
	// ErrTimeout means no reply arrived within the call deadline.
	ErrTimeout = errors.New("redisbus: reply timeout")
	// ErrAbandoned means the caller's context was cancelled while waiting.
	// The request may still be processed; its reply is discarded.
	ErrAbandoned = errors.New("redisbus: call abandoned by caller")
)

const replyPattern = "*" + command.ReplySuffix

// Bus owns one Redis connection pool and the reply dispatcher for it.
type Bus struct {
	rdb    *redis.Client
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]chan command.Outcome
	pubsub  *redis.PubSub
	started bool
	closed  bool
	done    chan struct{}

	wg sync.WaitGroup
}

// Dial creates a Bus for a redis:// URL. No connection is made until Start.
func Dial(url string, logger *slog.Logger) (*Bus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewBus(redis.NewClient(opts), logger), nil
}

// NewBus wraps an existing client. The Bus takes ownership and closes it.
func NewBus(rdb *redis.Client, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		rdb:     rdb,
		logger:  logger,
		pending: make(map[string]chan command.Outcome),
		done:    make(chan struct{}),
	}
}

// Start subscribes to reply channels and launches the dispatcher. It returns
// once Redis has confirmed the subscription, so no reply published after
// Start returns can be missed.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.started {
		return nil
	}

	ps := b.rdb.PSubscribe(ctx, replyPattern)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe to %s: %w", replyPattern, err)
	}
	b.pubsub = ps
	b.started = true

	msgs := ps.Channel()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range msgs {
			b.deliver(msg.Payload)
		}
	}()
	return nil
}

// deliver settles the call a reply belongs to. Replies that cannot be
// decoded or correlated are dropped.
func (b *Bus) deliver(payload string) {
	var pkt command.ReplyPacket
	if err := json.Unmarshal([]byte(payload), &pkt); err != nil {
		b.logger.Debug("dropping undecodable reply", "error", err)
		return
	}
	if pkt.ID == "" {
		return
	}

	b.mu.Lock()
	waiter, ok := b.pending[pkt.ID]
	if ok {
		delete(b.pending, pkt.ID)
	}
	b.mu.Unlock()

	if !ok {
		// Late reply for a settled, timed-out or abandoned call, or a
		// reply meant for another gateway instance.
		return
	}
	waiter <- command.Settle([]byte(payload), pkt)
}

// Call publishes a request and waits for its correlated reply, the
// timeout, the caller's cancellation, or bus shutdown, whichever is first.
func (b *Bus) Call(ctx context.Context, pattern command.Pattern, data any, timeout time.Duration) (command.Outcome, error) {
	id := uuid.NewString()
	packet, err := json.Marshal(command.RequestPacket{Pattern: pattern, Data: data, ID: id})
	if err != nil {
		return command.Outcome{}, fmt.Errorf("encode request: %w", err)
	}

	waiter := make(chan command.Outcome, 1)
	b.mu.Lock()
	if !b.started || b.closed {
		b.mu.Unlock()
		return command.Outcome{}, ErrClosed
	}
	b.pending[id] = waiter
	b.mu.Unlock()
	defer b.forget(id)

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := b.rdb.Publish(callCtx, pattern.Channel(), packet).Err(); err != nil {
		if callCtx.Err() != nil {
			return command.Outcome{}, b.contextFailure(ctx)
		}
		return command.Outcome{}, fmt.Errorf("%w: %w", ErrPublish, err)
	}

	select {
	case out := <-waiter:
		return out, nil
	case <-callCtx.Done():
		return command.Outcome{}, b.contextFailure(ctx)
	case <-b.done:
		return command.Outcome{}, ErrClosed
	}
}

// contextFailure tells a caller cancellation apart from a deadline.
func (b *Bus) contextFailure(parent context.Context) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return ErrAbandoned
	}
	return ErrTimeout
}

func (b *Bus) forget(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// Publish sends an event packet with no correlation id. Nothing waits for
// a reply and delivery is not acknowledged.
func (b *Bus) Publish(ctx context.Context, pattern command.Pattern, data any) error {
	packet, err := json.Marshal(command.RequestPacket{Pattern: pattern, Data: data})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.rdb.Publish(ctx, pattern.Channel(), packet).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	return nil
}

// Subscribe opens a plain subscription on channel. It returns once Redis
// has confirmed it.
func (b *Bus) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	ps := b.rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", channel, err)
	}
	return &Subscription{ps: ps, msgs: ps.Channel()}, nil
}

// Ping checks the connection.
func (b *Bus) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Pending returns the number of calls awaiting a reply.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close fails all waiting calls with ErrClosed, stops the dispatcher and
// closes the connection pool. Safe to call more than once.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	ps := b.pubsub
	b.mu.Unlock()

	var errs []error
	if ps != nil {
		errs = append(errs, ps.Close())
	}
	b.wg.Wait()
	errs = append(errs, b.rdb.Close())
	return errors.Join(errs...)
}

// Subscription is an open channel subscription. Messages are read from the
// go-redis channel so a blocked Next can be abandoned through its context.
type Subscription struct {
	ps   *redis.PubSub
	msgs <-chan *redis.Message
}

// Next blocks until a message arrives, ctx is done or the subscription is
// closed (ErrClosed).
func (s *Subscription) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-s.msgs:
		if !ok {
			return nil, ErrClosed
		}
		return []byte(msg.Payload), nil
	}
}

// Close ends the subscription.
func (s *Subscription) Close() error {
	return s.ps.Close()
}
