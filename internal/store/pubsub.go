package store

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Message is a published payload.
type Message struct {
	Channel string
	Payload string
}

// Subscription delivers messages until closed or until its context ends.
type Subscription interface {
	Channel() <-chan *Message
	Close() error
}

// Broker fans messages out to subscribers.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) Subscription
	Close() error
}

const subscriptionBuffer = 100

type memorySubscription struct {
	channels map[string]bool
	msgChan  chan *Message
	closeCh  chan struct{}
	closed   bool
	mu       sync.RWMutex
}

func newMemorySubscription(channels []string) *memorySubscription {
	set := make(map[string]bool, len(channels))
	for _, ch := range channels {
		set[ch] = true
	}
	return &memorySubscription{
		channels: set,
		msgChan:  make(chan *Message, subscriptionBuffer),
		closeCh:  make(chan struct{}),
	}
}

func (s *memorySubscription) Channel() <-chan *Message {
	return s.msgChan
}

func (s *memorySubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.closeCh)
		close(s.msgChan)
	}
	return nil
}

// deliver drops the message when the subscriber is not keeping up.
func (s *memorySubscription) deliver(msg *Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed || !s.channels[msg.Channel] {
		return
	}
	select {
	case s.msgChan <- msg:
	default:
	}
}

// MemoryBroker is an in-process Broker for single-instance deployments.
type MemoryBroker struct {
	subscribers map[string][]*memorySubscription
	mu          sync.RWMutex
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subscribers: make(map[string][]*memorySubscription)}
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channels ...string) Subscription {
	sub := newMemorySubscription(channels)

	b.mu.Lock()
	for _, ch := range channels {
		b.subscribers[ch] = append(b.subscribers[ch], sub)
	}
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.closeCh:
		}
		b.remove(sub, channels)
	}()
	return sub
}

func (b *MemoryBroker) remove(sub *memorySubscription, channels []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range channels {
		subs := b.subscribers[ch]
		for i, s := range subs {
			if s == sub {
				b.subscribers[ch] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(b.subscribers[ch]) == 0 {
			delete(b.subscribers, ch)
		}
	}
}

// Subscribers reports the live subscription count for channel.
func (b *MemoryBroker) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[channel])
}

func (b *MemoryBroker) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	subs := make([]*memorySubscription, len(b.subscribers[channel]))
	copy(subs, b.subscribers[channel])
	b.mu.RUnlock()

	msg := &Message{Channel: channel, Payload: string(payload)}
	for _, sub := range subs {
		sub.deliver(msg)
	}
	return nil
}

func (b *MemoryBroker) Close() error {
	b.mu.RLock()
	var all []*memorySubscription
	for _, subs := range b.subscribers {
		all = append(all, subs...)
	}
	b.mu.RUnlock()
	for _, sub := range all {
		sub.Close()
	}
	return nil
}

// RedisBroker publishes through Redis pub/sub so every API instance sees
// every update.
type RedisBroker struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

func NewRedisBroker(client *redis.Client, logger *zap.SugaredLogger) *RedisBroker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RedisBroker{client: client, logger: logger}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.Publish(ctx, channel, payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, channels ...string) Subscription {
	ps := b.client.Subscribe(ctx, channels...)
	sub := &redisSubscription{
		ps:      ps,
		msgChan: make(chan *Message, subscriptionBuffer),
		done:    make(chan struct{}),
	}
	go sub.pump(ctx, b.logger)
	return sub
}

// Close is a no-op; the client belongs to the kv store.
func (b *RedisBroker) Close() error {
	return nil
}

type redisSubscription struct {
	ps      *redis.PubSub
	msgChan chan *Message
	done    chan struct{}
	once    sync.Once
}

func (s *redisSubscription) pump(ctx context.Context, logger *zap.SugaredLogger) {
	defer close(s.msgChan)
	in := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-s.done:
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.msgChan <- &Message{Channel: m.Channel, Payload: m.Payload}:
			default:
				logger.Debugw("Dropping pubsub message for slow subscriber", "channel", m.Channel)
			}
		}
	}
}

func (s *redisSubscription) Channel() <-chan *Message {
	return s.msgChan
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
