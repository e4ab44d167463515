package duel

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"quiz_duel/internal/store"
)

// spectConn 連線索引的值：一條觀戰連線屬於誰、在看哪個房間
// 斷線清理靠這個索引就能運作，不依賴玩家索引
type spectConn struct {
	UserID uint   `json:"user_id"`
	RoomID string `json:"room_id"`
}

// JoinSpectate 觀眾加入一場對戰
// 只允許觀看進行中或剛結束的對戰，玩家不能觀戰自己的場次；
// 成功後回傳即時快照，之後的增量更新走房間頻道
func (m *Manager) JoinSpectate(ctx context.Context, roomID string, observerID uint, connID string) (*SpectateSnapshot, error) {
	room, err := m.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status != RoomStatusActive && room.Status != RoomStatusCompleted {
		return nil, ErrNotSpectatable
	}
	if room.IsParticipant(observerID) {
		return nil, ErrParticipantCannotSpectate
	}

	// 觀戰集合以連線編號為鍵：同一位觀眾開多條連線互不覆蓋，
	// 任何一條斷開也只清掉自己那一筆
	value := strconv.FormatUint(uint64(observerID), 10)
	if err := m.store.SetField(ctx, spectatorsKey(roomID), connID, value, roomTTL); err != nil {
		return nil, err
	}
	conn, err := json.Marshal(spectConn{UserID: observerID, RoomID: roomID})
	if err != nil {
		return nil, err
	}
	if err := m.store.Set(ctx, spectConnKey(connID), string(conn), roomTTL); err != nil {
		return nil, err
	}

	count, err := m.spectatorCount(ctx, roomID)
	if err != nil {
		return nil, err
	}

	return &SpectateSnapshot{
		RoomID:         roomID,
		Status:         room.Status,
		Participants:   room.Participants,
		Index:          room.CurrentQuestion,
		TotalQuestions: len(room.Questions),
		Scores:         room.Scores,
		SpectatorCount: count,
	}, nil
}

// LeaveSpectate 以連線編號移除觀眾
// 觀眾清空時順手把觀戰索引整個刪掉；這和房間本身的生命週期無關
func (m *Manager) LeaveSpectate(ctx context.Context, connID string) error {
	value, err := m.store.Get(ctx, spectConnKey(connID))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var conn spectConn
	if err := json.Unmarshal([]byte(value), &conn); err != nil {
		return err
	}

	if err := m.store.Delete(ctx, spectConnKey(connID)); err != nil {
		return err
	}
	if err := m.store.DeleteField(ctx, spectatorsKey(conn.RoomID), connID); err != nil {
		return err
	}

	count, err := m.spectatorCount(ctx, conn.RoomID)
	if err == nil && count == 0 {
		if err := m.store.Delete(ctx, spectatorsKey(conn.RoomID)); err != nil {
			m.logger.Warn("清除觀戰索引失敗", zap.String("room_id", conn.RoomID), zap.Error(err))
		}
	}
	return nil
}

func (m *Manager) spectatorCount(ctx context.Context, roomID string) (int, error) {
	fields, err := m.store.GetFields(ctx, spectatorsKey(roomID))
	if err != nil {
		return 0, err
	}
	return len(fields), nil
}

// notifySpectators 每回合結算後推給觀眾的增量更新
// 只帶分數與進度，不揭露尚未作答的題目內容
func (m *Manager) notifySpectators(ctx context.Context, room *Room) {
	count, err := m.spectatorCount(ctx, room.ID)
	if err != nil {
		m.logger.Warn("讀取觀眾數失敗", zap.String("room_id", room.ID), zap.Error(err))
		return
	}
	m.publishToRoom(ctx, room.ID, Event{
		Type: EventSpectateUpdate,
		Payload: SpectateUpdatePayload{
			Index:          room.CurrentQuestion,
			TotalQuestions: len(room.Questions),
			Scores:         room.Scores,
			SpectatorCount: count,
			Status:         room.Status,
		},
	})
}
