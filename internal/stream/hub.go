package stream

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/damygoes/EcoStride-REST-API/internal/logger"

	"github.com/redis/go-redis/v9"
)

const (
	EventCommentCreated = "comment.created"
	EventReplyCreated   = "reply.created"

	channelPrefix  = "activity:"
	channelSuffix  = ":comments"
	channelPattern = channelPrefix + "*" + channelSuffix
)

// Event is what subscribers of an activity receive.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub fans comment events out to the websocket clients watching an activity.
// With redis every event goes through the activity's channel, so clients
// connected to other instances see it too.
type Hub struct {
	redis   *redis.Client
	pubsub  *redis.PubSub
	log     *logger.Logger
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	Slug string
	Send chan []byte
}

func NewHub(redisClient *redis.Client, log *logger.Logger) *Hub {
	h := &Hub{
		log:     log,
		clients: map[string]map[*Client]struct{}{},
	}
	if redisClient == nil {
		return h
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pubsub := redisClient.PSubscribe(ctx, channelPattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Warn("redis subscribe failed, streaming locally only", "error", err)
		_ = pubsub.Close()
		return h
	}
	h.redis = redisClient
	h.pubsub = pubsub
	go h.subscribeRedis(pubsub)
	return h
}

func (h *Hub) Register(slug string) *Client {
	client := &Client{
		Slug: slug,
		Send: make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[slug] == nil {
		h.clients[slug] = map[*Client]struct{}{}
	}
	h.clients[slug][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if slugClients, ok := h.clients[client.Slug]; ok {
		if _, registered := slugClients[client]; !registered {
			return
		}
		delete(slugClients, client)
		if len(slugClients) == 0 {
			delete(h.clients, client.Slug)
		}
		close(client.Send)
	}
}

// Publish encodes ev and broadcasts it to the watchers of slug.
func (h *Hub) Publish(slug string, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("encode stream event", "slug", slug, "type", ev.Type, "error", err)
		return
	}
	h.Broadcast(slug, payload)
}

func (h *Hub) Broadcast(slug string, payload []byte) {
	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(slug), payload).Err()
		if err == nil {
			return
		}
		h.log.Warn("redis publish failed, delivering locally", "slug", slug, "error", err)
	}
	h.deliver(slug, payload)
}

// deliver drops the message for clients whose buffer is full.
func (h *Hub) deliver(slug string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[slug] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis(pubsub *redis.PubSub) {
	for msg := range pubsub.Channel() {
		slug := slugFromChannel(msg.Channel)
		if slug == "" {
			continue
		}
		h.deliver(slug, []byte(msg.Payload))
	}
}

// Close stops the redis subscription.
func (h *Hub) Close() error {
	if h.pubsub == nil {
		return nil
	}
	return h.pubsub.Close()
}

func redisChannel(slug string) string {
	return channelPrefix + slug + channelSuffix
}

func slugFromChannel(ch string) string {
	// activity:{slug}:comments
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	if len(ch) <= len(channelPrefix)+len(channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
