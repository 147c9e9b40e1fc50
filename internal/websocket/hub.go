package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tourbook-chat/internal/pkg/logger"
	"tourbook-chat/internal/pkg/metrics"
	"tourbook-chat/pkg/events"
)

// ClusterChannel is the redis pub/sub channel hub instances share.
const ClusterChannel = "cluster_events"

// clusterMessage is what one hub instance tells the others.
type clusterMessage struct {
	Origin   string          `json:"origin"`
	Channel  string          `json:"channel"`
	Envelope json.RawMessage `json:"envelope"`
}

// Hub delivers channel envelopes to the websocket clients subscribed to a
// support channel. With redis configured every delivery is repeated on the
// other instances.
type Hub struct {
	// Registered clients: channel name -> connections (one per open tab)
	clients map[string][]*Client

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex

	// Redis connection for cross-instance communication
	rdb *redis.Client
	// instanceID tags our own cluster publishes so they are not delivered twice
	instanceID string

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[string][]*Client),
		rdb:        rdb,
		instanceID: uuid.NewString(),
		logger:     log,
	}
}

// Run serves register and unregister requests until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.Channel] = append(h.clients[client.Channel], client)
			h.mu.Unlock()
			metrics.WebsocketClients.Inc()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"user_id": client.UserID, "channel": client.Channel})

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()
		}
	}
}

// join and leave give up once Run has returned.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.clients[client.Channel]
	if !ok {
		return
	}
	for i, c := range clients {
		if c == client {
			h.clients[client.Channel] = append(clients[:i], clients[i+1:]...)
			close(client.Send)
			metrics.WebsocketClients.Dec()
			break
		}
	}
	if len(h.clients[client.Channel]) == 0 {
		delete(h.clients, client.Channel)
		h.logger.Info("Hub", "Channel has no more clients", map[string]interface{}{"user_id": client.UserID, "channel": client.Channel})
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for channel, clients := range h.clients {
		for _, c := range clients {
			close(c.Send)
			metrics.WebsocketClients.Dec()
		}
		delete(h.clients, channel)
	}
}

// Publish encodes e and delivers it. It lets the hub stand in for the NATS
// publisher when the server runs without NATS.
func (h *Hub) Publish(ctx context.Context, e events.Event) error {
	data, err := events.Encode(e)
	if err != nil {
		return err
	}
	return h.Deliver(ctx, e.Channel(), data)
}

// Deliver hands envelope to the local clients of channel and to the other
// instances.
func (h *Hub) Deliver(ctx context.Context, channel string, envelope []byte) error {
	h.deliverLocal(channel, envelope)

	if h.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(clusterMessage{
		Origin:   h.instanceID,
		Channel:  channel,
		Envelope: envelope,
	})
	if err != nil {
		return err
	}
	if err := h.rdb.Publish(ctx, ClusterChannel, payload).Err(); err != nil {
		h.logger.Warn("Hub", "Cluster publish failed", map[string]interface{}{"channel": channel, "error": err.Error()})
	}
	return nil
}

func (h *Hub) deliverLocal(channel string, envelope []byte) int {
	var slow []*Client

	h.mu.RLock()
	clients := h.clients[channel]
	for _, client := range clients {
		select {
		case client.Send <- envelope:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("Hub", "Client send buffer full, dropping connection", map[string]interface{}{"user_id": client.UserID, "channel": channel})
		go h.leave(client)
	}
	return len(clients) - len(slow)
}

// handleCluster delivers an envelope published by another instance.
func (h *Hub) handleCluster(raw string) {
	var msg clusterMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		h.logger.Warn("Hub", "Cluster message parse error", map[string]interface{}{"error": err.Error()})
		return
	}
	if msg.Origin == h.instanceID || msg.Channel == "" {
		return
	}
	h.deliverLocal(msg.Channel, msg.Envelope)
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, ClusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.handleCluster(msg.Payload)
		}
	}
}

// Connected reports how many clients listen on channel.
func (h *Hub) Connected(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[channel])
}
