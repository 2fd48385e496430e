// Package memory keeps document notifications in process so dry runs and tests
// can inspect what would have gone to Pub/Sub.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// PublishedMessage is one accepted notification.
type PublishedMessage struct {
	ID      string
	Topic   string
	Payload any
}

// Publisher satisfies ccindex.Publisher without a broker.
type Publisher struct {
	mu       sync.Mutex
	messages []PublishedMessage
	perTopic map[string]int
	fail     error
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{perTopic: make(map[string]int)}
}

// FailWith makes later publishes fail with err until it is called with nil.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	p.fail = err
	p.mu.Unlock()
}

// Publish appends the payload. IDs count per topic, e.g. "documents/3".
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, p.fail)
	}
	if p.perTopic == nil {
		p.perTopic = make(map[string]int)
	}
	p.perTopic[topic]++
	id := fmt.Sprintf("%s/%d", topic, p.perTopic[topic])
	p.messages = append(p.messages, PublishedMessage{ID: id, Topic: topic, Payload: payload})
	return id, nil
}

// Messages returns a copy of every accepted notification in publish order.
func (p *Publisher) Messages() []PublishedMessage {
	return p.filter(func(PublishedMessage) bool { return true })
}

// Topic returns the notifications accepted for topic.
func (p *Publisher) Topic(topic string) []PublishedMessage {
	return p.filter(func(m PublishedMessage) bool { return m.Topic == topic })
}

func (p *Publisher) filter(keep func(PublishedMessage) bool) []PublishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []PublishedMessage
	for _, m := range p.messages {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}
