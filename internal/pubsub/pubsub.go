// Package pubsub 提供跨行程的訊息廣播抽象。
//
// 邀請對手、廣播回合結果這類「發給某個用戶 / 某個房間」的訊息，
// 收訊方的連線可能掛在另一個伺服器行程上；
// 因此所有事件一律發佈到邏輯頻道，由持有連線的行程訂閱後轉送。
// 發佈當下已訂閱者保證收到，之後才訂閱的不補發。
package pubsub

import "context"

// PubSub 訊息發佈與訂閱介面
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Close() error
}

// Subscription 單一頻道的訂閱
// Close 之後 Messages 回傳的通道會被關閉
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}
