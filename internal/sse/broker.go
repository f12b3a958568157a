package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/hireloop/chat-relay/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second

	clientBufferSize = 100
)

// Event is one broadcast unit. Final marks the last event a channel will
// ever carry; each instance delivers it and then drops its subscription, so
// a dead room cannot linger.
type Event struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Final bool            `json:"final,omitempty"`
}

// Client is one live SSE stream. Every client is subscribed to its own
// connection channel; rooms and the admin channel are joined and left as the
// conversation lifecycle progresses.
type Client struct {
	ConnectionID string
	Events       chan Event
	Done         chan struct{}

	closeOnce sync.Once
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.Done)
	})
}

type channelState struct {
	clients map[*Client]bool
	cancel  context.CancelFunc
}

// Broker fans broadcast events out to subscribed clients. Delivery runs
// through Redis pub/sub so every relay instance sees every event; each
// instance then forwards to its locally connected clients.
type Broker struct {
	redis    *redisclient.Client
	mu       sync.RWMutex
	channels map[string]*channelState
	conns    map[string]*Client
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:    redisClient,
		channels: make(map[string]*channelState),
		conns:    make(map[string]*Client),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Connect creates the client for a new connection and subscribes it to its
// own connection channel.
func (b *Broker) Connect(connectionID string) *Client {
	client := &Client{
		ConnectionID: connectionID,
		Events:       make(chan Event, clientBufferSize),
		Done:         make(chan struct{}),
	}

	b.mu.Lock()
	b.conns[connectionID] = client
	b.joinLocked(client, redisclient.ConnChannel(connectionID))
	total := len(b.conns)
	b.mu.Unlock()

	log.Info().
		Str("connectionId", connectionID).
		Int("totalClients", total).
		Msg("sse client connected")

	return client
}

// Join subscribes a connection's client to a broadcast channel.
// Unknown connections are ignored; the stream may already be gone.
func (b *Broker) Join(connectionID, channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	client, ok := b.conns[connectionID]
	if !ok {
		return
	}
	b.joinLocked(client, channel)
}

// Leave removes a connection's client from a broadcast channel.
func (b *Broker) Leave(connectionID, channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	client, ok := b.conns[connectionID]
	if !ok {
		return
	}
	b.leaveLocked(client, channel)
}

// Disconnect tears down a client: removed from every channel, Done closed.
func (b *Broker) Disconnect(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.conns, client.ConnectionID)
	for channel, state := range b.channels {
		if state.clients[client] {
			b.leaveClientLocked(client, channel, state)
		}
	}
	client.close()

	log.Info().
		Str("connectionId", client.ConnectionID).
		Int("totalClients", len(b.conns)).
		Msg("sse client disconnected")
}

// Publish sends an event to a channel via Redis pub/sub.
func (b *Broker) Publish(ctx context.Context, channel string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.redis.Publish(ctx, channel, data).Err()
}

// teardownChannel unsubscribes every client from a channel and stops its
// Redis subscription. Runs on every instance when a Final event arrives.
func (b *Broker) teardownChannel(channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.channels[channel]
	if !ok {
		return
	}
	state.cancel()
	delete(b.channels, channel)

	log.Debug().Str("channel", channel).Msg("broadcast channel closed")
}

func (b *Broker) joinLocked(client *Client, channel string) {
	state, ok := b.channels[channel]
	if !ok {
		subCtx, subCancel := context.WithCancel(b.ctx)
		state = &channelState{
			clients: make(map[*Client]bool),
			cancel:  subCancel,
		}
		b.channels[channel] = state
		go b.subscribeToRedis(subCtx, channel)
	}
	state.clients[client] = true
}

func (b *Broker) leaveLocked(client *Client, channel string) {
	state, ok := b.channels[channel]
	if !ok {
		return
	}
	b.leaveClientLocked(client, channel, state)
}

func (b *Broker) leaveClientLocked(client *Client, channel string, state *channelState) {
	delete(state.clients, client)
	if len(state.clients) == 0 {
		state.cancel()
		delete(b.channels, channel)
	}
}

func (b *Broker) subscribeToRedis(ctx context.Context, channel string) {
	pubsub := b.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Debug().Str("channel", channel).Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Str("channel", channel).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(channel, event)

			if event.Final {
				b.teardownChannel(channel)
				return
			}
		}
	}
}

func (b *Broker) broadcast(channel string, event Event) {
	b.mu.RLock()
	var clients []*Client
	if state, ok := b.channels[channel]; ok {
		clients = make([]*Client, 0, len(state.clients))
		for client := range state.clients {
			clients = append(clients, client)
		}
	}
	b.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("channel", channel).
				Str("connectionId", client.ConnectionID).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, client := range b.conns {
		client.close()
	}
	b.conns = make(map[string]*Client)
	b.channels = make(map[string]*channelState)
}

// ChannelClients returns the number of local clients on a channel.
func (b *Broker) ChannelClients(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	state, ok := b.channels[channel]
	if !ok {
		return 0
	}
	return len(state.clients)
}

// TotalClients returns the number of locally connected clients.
func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns)
}
