package store

import (
	"context"
	"sync"
	"time"
)

// LocalStore 行程內記憶體版本的共享狀態儲存
// 沒有設定 Redis 時的單機退路，介面行為與 RedisStore 完全一致
// （包括 TTL 過期），但狀態無法跨伺服器行程共享
type LocalStore struct {
	mu     sync.Mutex
	values map[string]localEntry
	hashes map[string]localHash
	done   chan struct{}
	once   sync.Once
}

type localEntry struct {
	value    string
	expireAt time.Time
}

type localHash struct {
	fields   map[string]string
	expireAt time.Time
}

func NewLocalStore() *LocalStore {
	s := &LocalStore{
		values: make(map[string]localEntry),
		hashes: make(map[string]localHash),
		done:   make(chan struct{}),
	}
	go s.janitor()
	return s
}

// janitor 定期掃除已過期的鍵，避免長時間運行時記憶體累積
func (s *LocalStore) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for key, entry := range s.values {
				if now.After(entry.expireAt) {
					delete(s.values, key)
				}
			}
			for key, hash := range s.hashes {
				if now.After(hash.expireAt) {
					delete(s.hashes, key)
				}
			}
			s.mu.Unlock()
		}
	}
}

// getLocked 讀取未過期的值，呼叫前必須持有鎖
func (s *LocalStore) getLocked(key string) (string, bool) {
	entry, ok := s.values[key]
	if !ok || time.Now().After(entry.expireAt) {
		delete(s.values, key)
		return "", false
	}
	return entry.value, true
}

func (s *LocalStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.getLocked(key)
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (s *LocalStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = localEntry{value: value, expireAt: time.Now().Add(ttl)}
	return nil
}

func (s *LocalStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.getLocked(key); ok {
		return false, nil
	}
	s.values[key] = localEntry{value: value, expireAt: time.Now().Add(ttl)}
	return true, nil
}

func (s *LocalStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.values, key)
		delete(s.hashes, key)
	}
	return nil
}

// Update 在鎖內完成讀取-修改-寫入，單行程下天然原子
func (s *LocalStore) Update(_ context.Context, key string, ttl time.Duration, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.getLocked(key)
	next, err := fn(current, exists)
	if err != nil {
		return err
	}
	s.values[key] = localEntry{value: next, expireAt: time.Now().Add(ttl)}
	return nil
}

// hashLocked 取得未過期的雜湊，不存在時依需求建立
func (s *LocalStore) hashLocked(key string, create bool) (localHash, bool) {
	hash, ok := s.hashes[key]
	if ok && time.Now().After(hash.expireAt) {
		delete(s.hashes, key)
		ok = false
	}
	if !ok && create {
		hash = localHash{fields: make(map[string]string)}
		s.hashes[key] = hash
		ok = true
	}
	return hash, ok
}

func (s *LocalStore) SetField(_ context.Context, key, field, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, _ := s.hashLocked(key, true)
	hash.fields[field] = value
	hash.expireAt = time.Now().Add(ttl)
	s.hashes[key] = hash
	return nil
}

func (s *LocalStore) SetFieldNX(_ context.Context, key, field, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, _ := s.hashLocked(key, true)
	if _, ok := hash.fields[field]; ok {
		return false, nil
	}
	hash.fields[field] = value
	hash.expireAt = time.Now().Add(ttl)
	s.hashes[key] = hash
	return true, nil
}

func (s *LocalStore) DeleteField(_ context.Context, key string, fields ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, ok := s.hashLocked(key, false)
	if !ok {
		return nil
	}
	for _, field := range fields {
		delete(hash.fields, field)
	}
	return nil
}

func (s *LocalStore) GetFields(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[string]string)
	hash, ok := s.hashLocked(key, false)
	if !ok {
		return result, nil
	}
	for field, value := range hash.fields {
		result[field] = value
	}
	return result, nil
}

func (s *LocalStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
