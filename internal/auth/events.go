package auth

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kaitanna/kaitanna-backend/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType names a session change.
type EventType string

const (
	EventSignedIn    EventType = "signed_in"
	EventSignedOut   EventType = "signed_out"
	EventUserUpdated EventType = "user_updated"
	EventUserDeleted EventType = "user_deleted"
)

// SessionEvent is delivered to session subscribers and WebSocket clients.
type SessionEvent struct {
	Type      EventType    `json:"type"`
	UserID    string       `json:"user_id"`
	User      *models.User `json:"user,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Bus carries session events from publishers to subscribers.
type Bus interface {
	Publish(ctx context.Context, event SessionEvent) error
	Subscribe(fn func(SessionEvent)) (unsubscribe func())
}

// Hub fans events out to in-process subscribers. Each subscriber has its own
// queue drained by one goroutine, so events reach it in publish order and a
// slow subscriber never blocks the publisher.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscriber
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]*subscriber)}
}

func (h *Hub) Publish(_ context.Context, event SessionEvent) error {
	h.fanOut(event)
	return nil
}

func (h *Hub) Subscribe(fn func(SessionEvent)) func() {
	sub := &subscriber{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go sub.run()

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.done)
		})
	}
}

func (h *Hub) fanOut(event SessionEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		sub.push(event)
	}
}

type subscriber struct {
	fn    func(SessionEvent)
	mu    sync.Mutex
	queue []SessionEvent
	wake  chan struct{}
	done  chan struct{}
}

func (s *subscriber) push(event SessionEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, event)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			event := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			s.fn(event)
		}
	}
}

// SessionChannel is the Redis pub/sub channel for session events.
const SessionChannel = "kaitanna:session-events"

// RedisBus publishes through Redis so every instance sees every event, and
// fans received events out through a local Hub.
type RedisBus struct {
	client *redis.Client
	hub    *Hub
	log    *zap.Logger
}

func NewRedisBus(client *redis.Client, log *zap.Logger) *RedisBus {
	return &RedisBus{client: client, hub: NewHub(), log: log}
}

func (b *RedisBus) Publish(ctx context.Context, event SessionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, SessionChannel, data).Err()
}

func (b *RedisBus) Subscribe(fn func(SessionEvent)) func() {
	return b.hub.Subscribe(fn)
}

// Run listens on the Redis channel until ctx is cancelled, reconnecting with
// backoff on errors.
func (b *RedisBus) Run(ctx context.Context) {
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		func() {
			pubsub := b.client.Subscribe(ctx, SessionChannel)
			defer pubsub.Close()

			b.log.Info("session event subscriber started", zap.String("channel", SessionChannel))

			for {
				msg, err := pubsub.ReceiveMessage(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					b.log.Warn("session event subscriber error", zap.Error(err), zap.Duration("retry_in", backoff))
					time.Sleep(backoff)
					backoff *= 2
					if backoff > 30*time.Second {
						backoff = 30 * time.Second
					}
					return
				}

				backoff = time.Second

				var event SessionEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.log.Warn("failed to unmarshal session event", zap.Error(err))
					continue
				}
				b.hub.fanOut(event)
			}
		}()
	}
}
