package pubsub

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisPubSub 以 Redis Pub/Sub 實作跨行程廣播
type RedisPubSub struct {
	client *redis.Client
}

func NewRedisPubSub(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{client: client}
}

func (p *RedisPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

func (p *RedisPubSub) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	sub := p.client.Subscribe(ctx, channel)
	// 確認訂閱真的建立後才回傳，避免漏掉緊接著的發佈
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, err
	}

	messages := make(chan []byte, 64)
	go func() {
		defer close(messages)
		for msg := range sub.Channel() {
			messages <- []byte(msg.Payload)
		}
	}()

	return &redisSubscription{sub: sub, messages: messages}, nil
}

func (p *RedisPubSub) Close() error {
	return nil // 底層連線由建立者負責關閉
}

type redisSubscription struct {
	sub      *redis.PubSub
	messages chan []byte
}

func (s *redisSubscription) Messages() <-chan []byte {
	return s.messages
}

func (s *redisSubscription) Close() error {
	return s.sub.Close()
}
