package duel

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Scheduler 管理房間相關的延遲任務
// 每個任務都有明確的控制代碼，房間提前結束或被刪除時可以整批取消，
// 避免過期的計時器對已經回收的房間代碼動作
type Scheduler struct {
	clock  clockwork.Clock
	mu     sync.Mutex
	timers map[string]map[string]clockwork.Timer // roomID -> 用途 -> 計時器
}

func NewScheduler(clock clockwork.Clock) *Scheduler {
	return &Scheduler{
		clock:  clock,
		timers: make(map[string]map[string]clockwork.Timer),
	}
}

// Schedule 為房間排下一個延遲任務，同用途的舊任務會先被取消
func (s *Scheduler) Schedule(roomID, purpose string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timers[roomID] == nil {
		s.timers[roomID] = make(map[string]clockwork.Timer)
	}
	if timer, ok := s.timers[roomID][purpose]; ok {
		timer.Stop()
	}

	s.timers[roomID][purpose] = s.clock.AfterFunc(delay, func() {
		s.remove(roomID, purpose)
		fn()
	})
}

// Cancel 取消房間的單一任務
func (s *Scheduler) Cancel(roomID, purpose string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[roomID][purpose]; ok {
		timer.Stop()
		delete(s.timers[roomID], purpose)
		if len(s.timers[roomID]) == 0 {
			delete(s.timers, roomID)
		}
	}
}

// CancelRoom 取消房間的所有任務
func (s *Scheduler) CancelRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, timer := range s.timers[roomID] {
		timer.Stop()
	}
	delete(s.timers, roomID)
}

func (s *Scheduler) remove(roomID, purpose string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timers, ok := s.timers[roomID]; ok {
		delete(timers, purpose)
		if len(timers) == 0 {
			delete(s.timers, roomID)
		}
	}
}

// 任務用途名稱
const (
	taskActivate = "activate" // starting -> active 的開賽倒數
	taskRound    = "round"    // 回合超時強制結算
	taskAdvance  = "advance"  // 結果展示後推進下一題
	taskCleanup  = "cleanup"  // 終態房間的保留期滿刪除
)
