package stream

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// TopicBounties carries insert/update events for bounty rows. Submissions
// and votes stay poll-based for now; adding them is a Publish call with a
// new topic, not a redesign.
const TopicBounties = "bounties"

// Event is the wire format pushed to subscribers. Delivery is at-least-once
// when Redis bridging is on; consumers de-duplicate by the row's primary key.
type Event struct {
	Event string `json:"event"`
	Row   any    `json:"row"`
}

type Hub struct {
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	Topic string
	Send  chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(topic string) *Client {
	client := &Client{
		Topic: topic,
		Send:  make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[topic] == nil {
		h.clients[topic] = map[*Client]struct{}{}
	}
	h.clients[topic][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if topicClients, ok := h.clients[client.Topic]; ok {
		delete(topicClients, client)
		if len(topicClients) == 0 {
			delete(h.clients, client.Topic)
		}
	}
	close(client.Send)
}

// Publish marshals an event and broadcasts it on the topic.
func (h *Hub) Publish(topic, event string, row any) {
	payload, err := json.Marshal(Event{Event: event, Row: row})
	if err != nil {
		log.Printf("stream marshal error: %v", err)
		return
	}
	h.Broadcast(topic, payload)
}

// Broadcast delivers to local subscribers and mirrors the payload to Redis.
// Sends happen under the read lock: Unregister closes Send under the write
// lock, so a send can never race the close. Sends are non-blocking, so
// holding the lock cannot stall on a slow client.
func (h *Hub) Broadcast(topic string, payload []byte) {
	h.mu.RLock()
	for client := range h.clients[topic] {
		select {
		case client.Send <- payload:
		default:
		}
	}
	h.mu.RUnlock()

	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(topic), payload).Err()
		if err != nil {
			log.Printf("redis publish error: %v", err)
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "events:*:broadcast")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		topic := topicFromChannel(msg.Channel)
		h.mu.RLock()
		for client := range h.clients[topic] {
			select {
			case client.Send <- []byte(msg.Payload):
			default:
			}
		}
		h.mu.RUnlock()
	}
}

func redisChannel(topic string) string {
	return "events:" + topic + ":broadcast"
}

func topicFromChannel(ch string) string {
	// events:{topic}:broadcast
	const prefix = "events:"
	const suffix = ":broadcast"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
