package duel

import (
	"context"
	"strconv"

	"go.uber.org/zap"
)

// rematchConsumed 再戰旗標被接受後的標記值
// 用戶編號是純數字，不會與這個值混淆
const rematchConsumed = "consumed"

// RequestRematch 已結束房間的玩家提出再戰
// 邀請是一次性的：旗標以 SetNX 建立並帶過期時間，
// 重複提出回 Conflict，逾時沒人接受就自動失效
func (m *Manager) RequestRematch(ctx context.Context, userID uint, roomID string) error {
	room, err := m.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Status != RoomStatusCompleted {
		return ErrRematchUnavailable
	}
	if !room.IsParticipant(userID) {
		return ErrNotParticipant
	}

	ok, err := m.store.SetNX(ctx, rematchKey(roomID), strconv.FormatUint(uint64(userID), 10), rematchTTL)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRematchPending
	}

	opponentID := room.OpponentOf(userID)
	m.publishToUser(ctx, opponentID, Event{
		Type:    EventRematchOffered,
		RoomID:  roomID,
		Payload: RematchOfferedPayload{RoomID: roomID, RequesterID: userID},
	})
	m.notifier.Notify(opponentID, "對手想再來一場", "rematch_offer",
		map[string]interface{}{"room_id": roomID})
	return nil
}

// AcceptRematch 接受再戰，生出一個全新的房間
// 新房間：新代碼、歸零的分數與答案、相同的設定、重抽的題目快照
func (m *Manager) AcceptRematch(ctx context.Context, userID uint, roomID string) (*Room, error) {
	room, err := m.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsParticipant(userID) {
		return nil, ErrNotParticipant
	}

	// 驗證與消耗在同一次原子更新內完成：
	// 兩個同時到達的接受只有一個能把旗標改成已消耗，另一個在這裡出局
	var requesterID uint
	err = m.store.Update(ctx, rematchKey(roomID), rematchTTL, func(current string, exists bool) (string, error) {
		if !exists || current == rematchConsumed {
			return "", ErrNoRematchOffer
		}
		id64, err := strconv.ParseUint(current, 10, 32)
		if err != nil {
			return "", ErrNoRematchOffer
		}
		rid := uint(id64)
		if rid == userID || !room.IsParticipant(rid) {
			return "", ErrNoRematchOffer
		}
		requesterID = rid
		return rematchConsumed, nil
	})
	if err != nil {
		return nil, err
	}
	// 旗標已消耗，收掉鍵讓之後的再戰邀請可以重新建立
	if err := m.store.Delete(ctx, rematchKey(roomID)); err != nil {
		m.logger.Warn("清除再戰旗標失敗", zap.String("room_id", roomID), zap.Error(err))
	}

	if err := m.ensureNotInRoom(ctx, requesterID); err != nil {
		return nil, err
	}
	if err := m.ensureNotInRoom(ctx, userID); err != nil {
		return nil, err
	}

	questions, err := m.questions.Snapshot(room.Settings)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, ErrNotEnoughQuestions
	}

	duelID, err := m.duels.CreateDuel(requesterID, userID, room.Settings, questions)
	if err != nil {
		m.logger.Error("建立再戰紀錄失敗", zap.String("room_id", roomID), zap.Error(err))
		duelID = 0
	}

	participants, err := m.resolveParticipants(
		participantSpec{RoleChallenger, requesterID},
		participantSpec{RoleOpponent, userID},
	)
	if err != nil {
		return nil, err
	}

	newRoom, err := m.createStartingRoom(ctx, duelID, room.Settings, questions, participants)
	if err != nil {
		return nil, err
	}

	if duelID != 0 {
		if err := m.duels.AttachRoomCode(duelID, newRoom.ID); err != nil {
			m.logger.Warn("回寫房間代碼失敗", zap.Uint("duel_id", duelID), zap.Error(err))
		}
		if err := m.duels.MarkActive(duelID); err != nil {
			m.logger.Warn("更新對戰紀錄狀態失敗", zap.Uint("duel_id", duelID), zap.Error(err))
		}
	}

	payload := RematchStartedPayload{OldRoomID: roomID, NewRoomID: newRoom.ID}
	for _, p := range newRoom.Participants {
		m.publishToUser(ctx, p.UserID, Event{
			Type:    EventRematchStarted,
			RoomID:  newRoom.ID,
			Payload: payload,
		})
	}

	m.beginSession(ctx, newRoom)
	return newRoom, nil
}
