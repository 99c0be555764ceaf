package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/sirupsen/logrus"

	"party_server/models"
)

// RedisBus broadcasts events across server processes over a Redis channel.
// It holds one pooled connection role for commands and one dedicated
// connection for the subscription.
type RedisBus struct {
	pool    *redis.Pool
	addr    string
	channel string

	mu       sync.Mutex
	nextID   int
	handlers map[int]func(Event)

	closed chan struct{}
	once   sync.Once
}

// NewRedisBus connects to Redis and starts the receive loop.
func NewRedisBus(addr, channel string) (*RedisBus, error) {
	pool := &redis.Pool{
		MaxIdle:     3,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr)
		},
	}

	// Fail fast when Redis is unreachable at startup.
	conn := pool.Get()
	_, err := conn.Do("PING")
	conn.Close()
	if err != nil {
		pool.Close()
		return nil, models.StoreError(err)
	}

	b := &RedisBus{
		pool:     pool,
		addr:     addr,
		channel:  channel,
		handlers: map[int]func(Event){},
		closed:   make(chan struct{}),
	}
	go b.receiveLoop()
	return b, nil
}

// Publish serializes the event and broadcasts it on the bus channel.
func (b *RedisBus) Publish(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return models.StoreError(err)
	}

	conn := b.pool.Get()
	defer conn.Close()
	if _, err := conn.Do("PUBLISH", b.channel, data); err != nil {
		return models.StoreError(err)
	}
	return nil
}

// Subscribe registers a handler for every event received on the channel,
// including events published by this process.
func (b *RedisBus) Subscribe(handler func(Event)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Close stops the receive loop and releases both connection roles.
func (b *RedisBus) Close() error {
	b.once.Do(func() { close(b.closed) })
	return b.pool.Close()
}

func (b *RedisBus) receiveLoop() {
	for {
		select {
		case <-b.closed:
			return
		default:
		}

		if err := b.receive(); err != nil {
			select {
			case <-b.closed:
				return
			default:
			}
			logrus.WithError(err).Warn("event bus subscription lost, reconnecting")
			time.Sleep(time.Second)
		}
	}
}

func (b *RedisBus) receive() error {
	conn, err := redis.Dial("tcp", b.addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	psc := redis.PubSubConn{Conn: conn}
	if err := psc.Subscribe(b.channel); err != nil {
		return err
	}

	for {
		switch v := psc.Receive().(type) {
		case redis.Message:
			var event Event
			if err := json.Unmarshal(v.Data, &event); err != nil {
				logrus.WithError(err).Warn("discarding malformed bus event")
				continue
			}
			b.dispatch(event)
		case error:
			return v
		}
	}
}

func (b *RedisBus) dispatch(event Event) {
	b.mu.Lock()
	handlers := make([]func(Event), 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}
