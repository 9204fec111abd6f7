package broker

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Message struct {
	Event string
	Data  string
}

// Broker fans published messages out to every subscriber. A subscriber that
// cannot keep up loses messages rather than stalling the others.
type Broker struct {
	subscribers map[uuid.UUID]chan Message
	events      chan Message
	done        chan struct{}
	logger      zerolog.Logger
	mu          sync.RWMutex
}

func NewBroker(logger zerolog.Logger) *Broker {
	return &Broker{
		subscribers: make(map[uuid.UUID]chan Message),
		events:      make(chan Message, 64),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Start runs the fanout loop until ctx is cancelled, then closes every
// subscriber channel.
func (b *Broker) Start(ctx context.Context) {
	go func() {
		defer b.closeAll()

		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-b.events:
				b.fanout(msg)
			}
		}
	}()

	b.logger.Info().Msg("Broker started...")
}

func (b *Broker) Subscribe(buffer int) (uuid.UUID, <-chan Message) {
	id := uuid.New()
	ch := make(chan Message, buffer)

	b.mu.Lock()
	select {
	case <-b.done:
		close(ch)
	default:
		b.subscribers[id] = ch
	}
	b.mu.Unlock()

	b.logger.Info().Str("subscriber_id", id.String()).Msg("Subscribing")
	return id, ch
}

func (b *Broker) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[id]
	if !ok {
		return
	}

	b.logger.Info().Str("subscriber_id", id.String()).Msg("Unsubscribing")
	delete(b.subscribers, id)
	close(ch)
}

// Publish queues msg for fanout. It reports false once the broker has
// stopped.
func (b *Broker) Publish(msg Message) bool {
	select {
	case <-b.done:
		return false
	default:
	}

	select {
	case b.events <- msg:
		return true
	case <-b.done:
		return false
	}
}

func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Broker) fanout(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
			b.logger.Warn().Str("subscriber_id", id.String()).Str("event", msg.Event).Msg("subscriber lagging, dropping message")
		}
	}
}

func (b *Broker) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	close(b.done)
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
	b.logger.Info().Msg("Broker stopped")
}
