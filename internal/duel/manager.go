package duel

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"quiz_duel/internal/pubsub"
	"quiz_duel/internal/store"
)

// Profile 用戶目錄提供的最小公開資料
type Profile struct {
	ID          uint   `json:"id"`
	DisplayName string `json:"display_name"`
	Level       int    `json:"level"`
}

// UserDirectory 解析用戶公開資料，用於對戰名單與觀戰畫面
type UserDirectory interface {
	Profile(userID uint) (Profile, error)
}

// QuestionSource 依對戰設定抽出題目快照
type QuestionSource interface {
	Snapshot(settings Settings) ([]Question, error)
}

// DuelRecord 持久化對戰紀錄的讀取視圖
type DuelRecord struct {
	ID           uint
	ChallengerID uint
	OpponentID   uint
	Settings     Settings
	Questions    []Question
	Pending      bool
}

// DuelRecorder 對戰紀錄的持久化邊界
// 核心只透過這個介面讀寫資料庫，不直接依賴 ORM
type DuelRecorder interface {
	CreateDuel(challengerID, opponentID uint, settings Settings, questions []Question) (uint, error)
	FindDuel(duelID uint) (*DuelRecord, error)
	AttachRoomCode(duelID uint, roomID string) error
	MarkActive(duelID uint) error
	MarkDeclined(duelID uint) error
	FinishDuel(duelID uint, winnerID uint, scores map[uint]int, abandoned bool) error
}

// Notifier 站內通知，呼叫失敗由實作自行記錄並吞掉
type Notifier interface {
	Notify(userID uint, message, notifType string, metadata map[string]interface{})
}

// Manager 對戰核心的總入口
// 房間的建立、加入、出題、結算、再戰、觀戰與清理都從這裡走
type Manager struct {
	store     store.Store
	bus       pubsub.PubSub
	clock     clockwork.Clock
	sched     *Scheduler
	duels     DuelRecorder
	questions QuestionSource
	notifier  Notifier
	directory UserDirectory
	logger    *zap.Logger
}

func NewManager(
	st store.Store,
	bus pubsub.PubSub,
	clock clockwork.Clock,
	duels DuelRecorder,
	questions QuestionSource,
	notifier Notifier,
	directory UserDirectory,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		store:     st,
		bus:       bus,
		clock:     clock,
		sched:     NewScheduler(clock),
		duels:     duels,
		questions: questions,
		notifier:  notifier,
		directory: directory,
		logger:    logger,
	}
}

// normalizeSettings 補上設定的預設值
func normalizeSettings(settings Settings) Settings {
	if settings.QuestionCount <= 0 {
		settings.QuestionCount = defaultQuestionCount
	}
	if settings.TimeLimit <= 0 {
		settings.TimeLimit = defaultTimeLimit
	}
	return settings
}

// newRoomCode 產生一組房間代碼，可讀性優先，碰撞由建立流程重試處理
func newRoomCode() string {
	code := make([]byte, roomCodeLength)
	for i := range code {
		code[i] = roomCodeAlphabet[rand.Intn(len(roomCodeAlphabet))]
	}
	return string(code)
}

// CreateRoom 建立代碼制房間，房主分享代碼給對手加入
func (m *Manager) CreateRoom(ctx context.Context, hostID uint, settings Settings) (*Room, error) {
	if err := m.ensureNotInRoom(ctx, hostID); err != nil {
		return nil, err
	}

	settings = normalizeSettings(settings)
	questions, err := m.questions.Snapshot(settings)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, ErrNotEnoughQuestions
	}

	profile, err := m.directory.Profile(hostID)
	if err != nil {
		return nil, err
	}

	room := &Room{
		Status:   RoomStatusWaiting,
		Settings: settings,
		Participants: []Participant{{
			Role:        RoleHost,
			UserID:      hostID,
			DisplayName: profile.DisplayName,
			Level:       profile.Level,
		}},
		Questions: questions,
		Scores:    map[uint]int{hostID: 0},
		Answers:   make(map[uint]map[int]Answer),
		CreatedAt: m.clock.Now(),
	}

	// 代碼空間夠大，碰撞是罕見情況，重試幾次就好
	for i := 0; i < roomCodeAttempts; i++ {
		room.ID = newRoomCode()
		encoded, err := json.Marshal(room)
		if err != nil {
			return nil, err
		}
		ok, err := m.store.SetNX(ctx, roomKey(room.ID), string(encoded), roomTTL)
		if err != nil {
			return nil, err
		}
		if ok {
			if err := m.claimUserRoom(ctx, hostID, room.ID); err != nil {
				if derr := m.store.Delete(ctx, roomKey(room.ID)); derr != nil {
					m.logger.Warn("回收未認領的房間失敗", zap.String("room_id", room.ID), zap.Error(derr))
				}
				return nil, err
			}
			m.publishToUser(ctx, hostID, Event{
				Type:    EventRoomCreated,
				RoomID:  room.ID,
				Payload: map[string]interface{}{"room_id": room.ID, "settings": settings},
			})
			return room, nil
		}
	}
	return nil, ErrRoomIDExhausted
}

// JoinRoom 以房間代碼加入對戰
// 狀態檢查與人數檢查都在原子更新內完成，失敗時不會留下部分修改
func (m *Manager) JoinRoom(ctx context.Context, roomID string, joinerID uint) (*Room, error) {
	profile, err := m.directory.Profile(joinerID)
	if err != nil {
		return nil, err
	}

	// 先以 SetNX 佔住加入者的索引，一個用戶同時發出的多個加入請求只有一個能過
	if err := m.claimUserRoom(ctx, joinerID, roomID); err != nil {
		return nil, err
	}

	room, err := m.updateRoom(ctx, roomID, func(room *Room) error {
		if room.Status != RoomStatusWaiting {
			return ErrRoomNotJoinable
		}
		if room.IsParticipant(joinerID) {
			return ErrAlreadyInRoom
		}
		if len(room.Participants) >= 2 {
			return ErrRoomFull
		}
		room.Participants = append(room.Participants, Participant{
			Role:        RoleGuest,
			UserID:      joinerID,
			DisplayName: profile.DisplayName,
			Level:       profile.Level,
		})
		room.Scores[joinerID] = 0
		room.Status = RoomStatusStarting
		return nil
	})
	if err != nil {
		m.clearUserRoom(ctx, joinerID, roomID)
		return nil, err
	}

	// 雙方到齊後才建立持久化的對戰紀錄
	host := room.Participants[0].UserID
	duelID, err := m.duels.CreateDuel(host, joinerID, room.Settings, room.Questions)
	if err != nil {
		m.logger.Error("建立對戰紀錄失敗", zap.String("room_id", roomID), zap.Error(err))
	} else {
		if err := m.duels.AttachRoomCode(duelID, roomID); err != nil {
			m.logger.Warn("回寫房間代碼失敗", zap.Uint("duel_id", duelID), zap.Error(err))
		}
		if err := m.duels.MarkActive(duelID); err != nil {
			m.logger.Warn("更新對戰紀錄狀態失敗", zap.Uint("duel_id", duelID), zap.Error(err))
		}
		room, err = m.updateRoom(ctx, roomID, func(room *Room) error {
			room.DuelID = duelID
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	m.beginSession(ctx, room)
	return room, nil
}

// GetRoom 讀取房間狀態，並把進行中的答案雜湊併回房間結構
func (m *Manager) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	room, err := m.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	fields, err := m.store.GetFields(ctx, answersKey(roomID))
	if err != nil {
		return nil, err
	}
	for field, value := range fields {
		userID, index, err := parseAnswerField(field)
		if err != nil {
			continue
		}
		var answer Answer
		if err := json.Unmarshal([]byte(value), &answer); err != nil {
			continue
		}
		room.recordAnswer(userID, index, answer)
	}
	return room, nil
}

// DeleteRoom 刪除房間與所有相關索引，可重複呼叫
func (m *Manager) DeleteRoom(ctx context.Context, roomID string) error {
	m.sched.CancelRoom(roomID)

	// 先清掉玩家索引再刪房間本體
	room, err := m.loadRoom(ctx, roomID)
	if err == nil {
		for _, p := range room.Participants {
			m.clearUserRoom(ctx, p.UserID, roomID)
		}
	} else if !errors.Is(err, ErrRoomNotFound) {
		return err
	}

	return m.store.Delete(ctx,
		roomKey(roomID),
		answersKey(roomID),
		spectatorsKey(roomID),
		rematchKey(roomID),
	)
}

// loadRoom 讀取房間本體，不含進行中的答案雜湊
func (m *Manager) loadRoom(ctx context.Context, roomID string) (*Room, error) {
	value, err := m.store.Get(ctx, roomKey(roomID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}

	var room Room
	if err := json.Unmarshal([]byte(value), &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// updateRoom 以樂觀鎖改寫房間，fn 回傳錯誤時整筆更新中止
func (m *Manager) updateRoom(ctx context.Context, roomID string, fn func(room *Room) error) (*Room, error) {
	var updated *Room
	err := m.store.Update(ctx, roomKey(roomID), roomTTL, func(current string, exists bool) (string, error) {
		if !exists {
			return "", ErrRoomNotFound
		}
		var room Room
		if err := json.Unmarshal([]byte(current), &room); err != nil {
			return "", err
		}
		if err := fn(&room); err != nil {
			return "", err
		}
		encoded, err := json.Marshal(&room)
		if err != nil {
			return "", err
		}
		updated = &room
		return string(encoded), nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ensureNotInRoom 提前擋下已在房間中的用戶，省掉後續的抽題與查詢
// 只是快速檢查；真正的唯一性由 claimUserRoom 的 SetNX 保證
func (m *Manager) ensureNotInRoom(ctx context.Context, userID uint) error {
	_, err := m.store.Get(ctx, userRoomKey(userID))
	if err == nil {
		return ErrAlreadyInRoom
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// claimUserRoom 以 SetNX 取得用戶的房間索引
// 一個用戶永遠只有一個存活的索引：競爭中輸掉認領的請求在這裡出局，
// 不會留下兩個房間指向同一個玩家
func (m *Manager) claimUserRoom(ctx context.Context, userID uint, roomID string) error {
	ok, err := m.store.SetNX(ctx, userRoomKey(userID), roomID, roomTTL)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyInRoom
	}
	return nil
}

// clearUserRoom 只在索引仍指向這個房間時清除，避免誤刪新的對應
func (m *Manager) clearUserRoom(ctx context.Context, userID uint, roomID string) {
	current, err := m.store.Get(ctx, userRoomKey(userID))
	if err != nil || current != roomID {
		return
	}
	if err := m.store.Delete(ctx, userRoomKey(userID)); err != nil {
		m.logger.Warn("清除用戶房間索引失敗", zap.Uint("user_id", userID), zap.Error(err))
	}
}

// RoomOf 查詢用戶目前所在的房間代碼
func (m *Manager) RoomOf(ctx context.Context, userID uint) (string, error) {
	roomID, err := m.store.Get(ctx, userRoomKey(userID))
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrRoomNotFound
	}
	return roomID, err
}

// publishToUser 發佈事件到用戶頻道，用戶連在哪個行程都能收到
func (m *Manager) publishToUser(ctx context.Context, userID uint, event Event) {
	encoded, err := event.Encode()
	if err != nil {
		m.logger.Error("事件序列化失敗", zap.String("type", event.Type), zap.Error(err))
		return
	}
	if err := m.bus.Publish(ctx, ChannelUser(userID), encoded); err != nil {
		m.logger.Error("發佈用戶事件失敗",
			zap.Uint("user_id", userID), zap.String("type", event.Type), zap.Error(err))
	}
}

// publishToRoom 發佈事件到房間頻道，玩家與觀眾都會收到
func (m *Manager) publishToRoom(ctx context.Context, roomID string, event Event) {
	event.RoomID = roomID
	encoded, err := event.Encode()
	if err != nil {
		m.logger.Error("事件序列化失敗", zap.String("type", event.Type), zap.Error(err))
		return
	}
	if err := m.bus.Publish(ctx, ChannelRoom(roomID), encoded); err != nil {
		m.logger.Error("發佈房間事件失敗",
			zap.String("room_id", roomID), zap.String("type", event.Type), zap.Error(err))
	}
}
