package duel

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// HandleDisconnect 連線斷開時的清理入口
// 觀戰索引先清（以連線編號），再依玩家索引處理進行中的對戰
func (m *Manager) HandleDisconnect(ctx context.Context, userID uint, connID string) {
	if err := m.LeaveSpectate(ctx, connID); err != nil {
		m.logger.Warn("清理觀戰連線失敗", zap.String("conn_id", connID), zap.Error(err))
	}

	if err := m.Leave(ctx, userID); err != nil && !errors.Is(err, ErrRoomNotFound) {
		m.logger.Error("處理玩家斷線失敗", zap.Uint("user_id", userID), zap.Error(err))
	}
}

// Leave 玩家離開目前所在的房間
// 進行中的對戰立刻終止並把留下的一方判為勝方；
// 尚未開打的房間只移除該玩家，沒人了就整間刪掉
func (m *Manager) Leave(ctx context.Context, userID uint) error {
	roomID, err := m.RoomOf(ctx, userID)
	if err != nil {
		return err
	}

	room, err := m.loadRoom(ctx, roomID)
	if errors.Is(err, ErrRoomNotFound) {
		// 房間已被回收，索引跟著清掉即可
		m.clearUserRoom(ctx, userID, roomID)
		return nil
	}
	if err != nil {
		return err
	}

	switch room.Status {
	case RoomStatusActive:
		winnerID := room.OpponentOf(userID)
		m.publishToRoom(ctx, roomID, Event{
			Type:    EventPlayerLeft,
			Payload: PlayerLeftPayload{UserID: userID},
		})
		m.completeSession(ctx, roomID, winnerID, "player_left", true)
		if winnerID != 0 {
			m.notifier.Notify(winnerID, "對手已離開，你獲得勝利", "opponent_left",
				map[string]interface{}{"room_id": roomID})
		}
		return nil

	case RoomStatusWaiting, RoomStatusStarting:
		m.sched.CancelRoom(roomID)
		var orphanDuelID uint
		updated, err := m.updateRoom(ctx, roomID, func(room *Room) error {
			remaining := room.Participants[:0]
			for _, p := range room.Participants {
				if p.UserID != userID {
					remaining = append(remaining, p)
				}
			}
			room.Participants = remaining
			delete(room.Scores, userID)
			room.Status = RoomStatusWaiting
			// 倒數被打斷，這筆對戰不會開打；補位的對手會拿到新的紀錄
			orphanDuelID = room.DuelID
			room.DuelID = 0
			return nil
		})
		if err != nil {
			return err
		}
		m.clearUserRoom(ctx, userID, roomID)

		if orphanDuelID != 0 {
			if err := m.duels.FinishDuel(orphanDuelID, 0, updated.Scores, true); err != nil {
				m.logger.Warn("作廢對戰紀錄失敗", zap.Uint("duel_id", orphanDuelID), zap.Error(err))
			}
		}

		if len(updated.Participants) == 0 {
			return m.DeleteRoom(ctx, roomID)
		}
		m.publishToRoom(ctx, roomID, Event{
			Type:    EventPlayerLeft,
			Payload: PlayerLeftPayload{UserID: userID},
		})
		return nil

	default: // completed：終態房間不再變動，清掉索引就好
		m.clearUserRoom(ctx, userID, roomID)
		return nil
	}
}
