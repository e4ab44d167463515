// Package store 提供對戰核心使用的共享狀態儲存抽象。
//
// 所有房間狀態與索引的讀寫都經過這個介面，
// 核心邏輯因此不需要知道狀態是存在 Redis 還是行程內記憶體。
// 每次寫入都帶有 TTL，即使清理流程因故沒有執行，
// 被遺棄的對戰資料也會自動過期回收。
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound 鍵不存在或已過期
	ErrNotFound = errors.New("store: key not found")
	// ErrUpdateConflict 樂觀鎖更新在重試次數用盡後仍然失敗
	ErrUpdateConflict = errors.New("store: update conflict")
)

// UpdateFunc 讀取-修改-寫入的修改函式
// current 為目前的值，exists 表示鍵是否存在
// 回傳錯誤時整個更新中止並將錯誤往上傳遞
type UpdateFunc func(current string, exists bool) (string, error)

// Store 共享狀態儲存介面
//
// Update 是唯一允許修改既有值的途徑：它以樂觀鎖（CAS）方式執行
// 讀取-修改-寫入，避免多個行程同時改寫同一個房間時遺失更新。
// SetField/GetFields 提供雜湊欄位層級的原子寫入，
// 用於答案這類可以獨立落地、不需要整筆改寫的資料。
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX 僅在鍵不存在時寫入，回傳是否成功取得
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	// Update 以樂觀鎖執行讀取-修改-寫入，重試次數有上限
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error

	// SetField 原子地寫入雜湊欄位，並更新整個雜湊的 TTL
	SetField(ctx context.Context, key, field, value string, ttl time.Duration) error
	// SetFieldNX 僅在欄位不存在時寫入，回傳是否成功寫入
	SetFieldNX(ctx context.Context, key, field, value string, ttl time.Duration) (bool, error)
	GetFields(ctx context.Context, key string) (map[string]string, error)
	DeleteField(ctx context.Context, key string, fields ...string) error

	Close() error
}

// updateRetries 樂觀鎖更新的重試上限
const updateRetries = 5
