package feed

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ChangeType names the kind of mutation applied to the attendance collection.
type ChangeType string

const (
	Insert ChangeType = "insert"
	Delete ChangeType = "delete"
	Clear  ChangeType = "clear"
)

// Change is a notification that the collection was mutated.
type Change struct {
	Type ChangeType `json:"type"`
	IDs  []string   `json:"ids,omitempty"`
	At   time.Time  `json:"at"`
}

// Publisher announces changes.
type Publisher interface {
	Publish(ctx context.Context, c Change) error
}

// Bus is the abstraction over different change-feed backends.
type Bus interface {
	Publisher
	// Subscribe streams changes until the returned cancel func is called or ctx ends.
	Subscribe(ctx context.Context) (<-chan Change, func(), error)
}

// InMemory fans changes out to subscribers in this process.
type InMemory struct {
	size int
	mu   sync.Mutex
	subs map[string]chan Change
}

// NewInMemory creates a bus whose subscribers buffer up to size changes.
func NewInMemory(size int) *InMemory {
	if size <= 0 {
		size = 16
	}
	return &InMemory{size: size, subs: make(map[string]chan Change)}
}

// Publish delivers c to every subscriber. Subscribers with a full buffer miss the change.
func (b *InMemory) Publish(ctx context.Context, c Change) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- c:
		default:
			log.Printf("feed subscriber %s is behind, dropping %s", id, c.Type)
		}
	}
	return nil
}

// Subscribe registers a new subscriber.
func (b *InMemory) Subscribe(ctx context.Context) (<-chan Change, func(), error) {
	id := uuid.NewString()
	ch := make(chan Change, b.size)
	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel, nil
}

// Subscribers reports how many subscribers are registered.
func (b *InMemory) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Redis implements the bus with Redis pub/sub so every API instance sees every change.
type Redis struct {
	client  *redis.Client
	channel string
}

// NewRedis builds a bus on the given pub/sub channel.
func NewRedis(client *redis.Client, channel string) *Redis {
	if channel == "" {
		channel = "attendance:changes"
	}
	return &Redis{client: client, channel: channel}
}

// Publish sends the change as JSON.
func (b *Redis) Publish(ctx context.Context, c Change) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, raw).Err()
}

// Subscribe streams decoded changes. Undecodable payloads are skipped.
func (b *Redis) Subscribe(ctx context.Context) (<-chan Change, func(), error) {
	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, err
	}

	out := make(chan Change)
	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stop)
			_ = ps.Close()
		})
	}

	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case <-stop:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var c Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					log.Printf("feed payload undecodable: %v", err)
					continue
				}
				select {
				case out <- c:
				case <-stop:
					return
				case <-ctx.Done():
					cancel()
					return
				}
			}
		}
	}()
	return out, cancel, nil
}

// Discard is a Publisher that drops every change.
type Discard struct{}

func (Discard) Publish(ctx context.Context, c Change) error { return nil }
