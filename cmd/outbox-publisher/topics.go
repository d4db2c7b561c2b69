package main

import (
	"context"
	"errors"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type topicSource interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// topicCache holds one Pub/Sub publisher per topic. Unknown topics are not
// cached so a later deploy that creates them is picked up.
type topicCache struct {
	source topicSource
	mu     sync.Mutex
	open   map[string]*gcppubsub.Publisher
}

func newTopicCache(source topicSource) *topicCache {
	return &topicCache{source: source, open: map[string]*gcppubsub.Publisher{}}
}

func (c *topicCache) publisher(topic string) publisher {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.open[topic]
	if !ok {
		if p = c.source.Publisher(topic); p == nil {
			return nil
		}
		c.open[topic] = p
	}
	return topicPublisher{p}
}

// stop flushes buffered messages; safe on a nil cache.
func (c *topicCache) stop() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, p := range c.open {
		p.Stop()
		delete(c.open, topic)
	}
}

type topicPublisher struct {
	p *gcppubsub.Publisher
}

func (t topicPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if t.p == nil {
		return nil
	}
	return pendingResult{t.p.Publish(ctx, msg)}
}

type pendingResult struct {
	r *gcppubsub.PublishResult
}

func (p pendingResult) Get(ctx context.Context) (string, error) {
	if p.r == nil {
		return "", errors.New("publish result is nil")
	}
	return p.r.Get(ctx)
}
