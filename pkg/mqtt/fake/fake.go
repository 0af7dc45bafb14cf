// Package fake provides an in-memory mqtt.Client for tests.
package fake

import (
	"context"
	"sync"

	"github.com/autopeer-io/rcbridge/pkg/mqtt"
)

// Message is a recorded publish.
type Message struct {
	Topic   string
	QoS     int
	Retain  bool
	Payload []byte
}

// Client records publishes and lets tests deliver messages to subscribers.
type Client struct {
	mu            sync.Mutex
	started       bool
	connected     bool
	published     []Message
	subscriptions map[string]mqtt.MessageHandler
	publishErr    error
	awaitErr      error
}

var _ mqtt.Client = (*Client)(nil)

func New() *Client {
	return &Client{subscriptions: make(map[string]mqtt.MessageHandler)}
}

// FailPublish makes every later Publish return err.
func (c *Client) FailPublish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishErr = err
}

// FailAwait makes AwaitConnection return err.
func (c *Client) FailAwait(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.awaitErr = err
}

func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	c.connected = true
	return nil
}

func (c *Client) Disconnect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *Client) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, Message{Topic: topic, QoS: qos, Retain: retain, Payload: append([]byte(nil), payload...)})
	return nil
}

func (c *Client) Subscribe(ctx context.Context, topic string, qos int, handler mqtt.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[topic] = handler
	return nil
}

func (c *Client) Unsubscribe(ctx context.Context, topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, topic)
	return nil
}

func (c *Client) AwaitConnection(ctx context.Context) error {
	c.mu.Lock()
	err := c.awaitErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Deliver calls every handler whose filter matches topic, synchronously.
// It reports whether any handler matched.
func (c *Client) Deliver(ctx context.Context, topic string, payload []byte) bool {
	c.mu.Lock()
	var handlers []mqtt.MessageHandler
	for filter, h := range c.subscriptions {
		if mqtt.TopicMatches(filter, topic) {
			handlers = append(handlers, h)
		}
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(ctx, topic, payload)
	}
	return len(handlers) > 0
}

// Published returns a copy of every recorded publish.
func (c *Client) Published() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.published))
	copy(out, c.published)
	return out
}

// Subscribed reports whether a handler is registered for filter.
func (c *Client) Subscribed(filter string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subscriptions[filter]
	return ok
}

// Started reports whether Start was called.
func (c *Client) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}
