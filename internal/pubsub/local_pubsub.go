package pubsub

import (
	"context"
	"sync"
)

// LocalPubSub 行程內版本的訊息廣播
// 單機部署時與 LocalStore 搭配使用，讓單機與多機共用同一條程式路徑
type LocalPubSub struct {
	mu       sync.RWMutex
	channels map[string]map[*localSubscription]bool
	closed   bool
}

func NewLocalPubSub() *LocalPubSub {
	return &LocalPubSub{
		channels: make(map[string]map[*localSubscription]bool),
	}
}

func (p *LocalPubSub) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for sub := range p.channels[channel] {
		select {
		case sub.messages <- payload:
		default:
			// 訂閱者積壓時丟棄訊息，與 Redis Pub/Sub 的語意一致
		}
	}
	return nil
}

func (p *LocalPubSub) Subscribe(_ context.Context, channel string) (Subscription, error) {
	sub := &localSubscription{
		parent:   p,
		channel:  channel,
		messages: make(chan []byte, 64),
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channels[channel] == nil {
		p.channels[channel] = make(map[*localSubscription]bool)
	}
	p.channels[channel][sub] = true
	return sub, nil
}

func (p *LocalPubSub) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	for _, subs := range p.channels {
		for sub := range subs {
			sub.once.Do(func() { close(sub.messages) })
		}
	}
	p.channels = make(map[string]map[*localSubscription]bool)
	return nil
}

type localSubscription struct {
	parent   *LocalPubSub
	channel  string
	messages chan []byte
	once     sync.Once
}

func (s *localSubscription) Messages() <-chan []byte {
	return s.messages
}

func (s *localSubscription) Close() error {
	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()

	if subs, ok := s.parent.channels[s.channel]; ok {
		if subs[s] {
			delete(subs, s)
			s.once.Do(func() { close(s.messages) })
		}
		if len(subs) == 0 {
			delete(s.parent.channels, s.channel)
		}
	}
	return nil
}
