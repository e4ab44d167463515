package duel

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// CreateChallenge 發起直接邀請
// 先持久化挑戰紀錄與題目快照，再把邀請發到受邀方的用戶頻道；
// 受邀方的連線掛在哪個行程上都收得到
func (m *Manager) CreateChallenge(ctx context.Context, challengerID, opponentID uint, settings Settings) (uint, error) {
	settings = normalizeSettings(settings)
	questions, err := m.questions.Snapshot(settings)
	if err != nil {
		return 0, err
	}
	if len(questions) == 0 {
		return 0, ErrNotEnoughQuestions
	}

	profile, err := m.directory.Profile(challengerID)
	if err != nil {
		return 0, err
	}

	duelID, err := m.duels.CreateDuel(challengerID, opponentID, settings, questions)
	if err != nil {
		return 0, err
	}

	m.publishToUser(ctx, opponentID, Event{
		Type: EventDuelInvited,
		Payload: DuelInvitedPayload{
			DuelID:     duelID,
			Challenger: profile,
			Settings:   settings,
		},
	})
	m.notifier.Notify(opponentID,
		fmt.Sprintf("%s 向你發起了對戰挑戰", profile.DisplayName),
		"duel_invite",
		map[string]interface{}{"duel_id": duelID},
	)
	return duelID, nil
}

// AcceptChallenge 受邀方接受挑戰，把持久化的挑戰轉成一個活的房間
// 雙方直接到齊，房間從 starting 起步，與代碼制加入走同一套開賽流程
func (m *Manager) AcceptChallenge(ctx context.Context, inviteeID uint, duelID uint) (*Room, error) {
	record, err := m.duels.FindDuel(duelID)
	if err != nil {
		return nil, ErrDuelNotFound
	}
	if record.OpponentID != inviteeID {
		return nil, ErrNotInvitee
	}
	if !record.Pending {
		return nil, ErrChallengeNotPending
	}

	if err := m.ensureNotInRoom(ctx, record.ChallengerID); err != nil {
		return nil, err
	}
	if err := m.ensureNotInRoom(ctx, inviteeID); err != nil {
		return nil, err
	}

	participants, err := m.resolveParticipants(
		participantSpec{RoleChallenger, record.ChallengerID},
		participantSpec{RoleOpponent, inviteeID},
	)
	if err != nil {
		return nil, err
	}

	room, err := m.createStartingRoom(ctx, duelID, record.Settings, record.Questions, participants)
	if err != nil {
		return nil, err
	}

	if err := m.duels.AttachRoomCode(duelID, room.ID); err != nil {
		m.logger.Warn("回寫房間代碼失敗", zap.Uint("duel_id", duelID), zap.Error(err))
	}
	if err := m.duels.MarkActive(duelID); err != nil {
		m.logger.Warn("更新對戰紀錄狀態失敗", zap.Uint("duel_id", duelID), zap.Error(err))
	}

	m.beginSession(ctx, room)
	return room, nil
}

// DeclineChallenge 受邀方拒絕挑戰
func (m *Manager) DeclineChallenge(ctx context.Context, inviteeID uint, duelID uint) error {
	record, err := m.duels.FindDuel(duelID)
	if err != nil {
		return ErrDuelNotFound
	}
	if record.OpponentID != inviteeID {
		return ErrNotInvitee
	}
	if !record.Pending {
		return ErrChallengeNotPending
	}

	if err := m.duels.MarkDeclined(duelID); err != nil {
		return err
	}
	m.publishToUser(ctx, record.ChallengerID, Event{
		Type:    EventDuelDeclined,
		Payload: DuelDeclinedPayload{DuelID: duelID, DeclinerID: inviteeID},
	})
	return nil
}

type participantSpec struct {
	role   Role
	userID uint
}

// resolveParticipants 查詢用戶目錄，組出房間的玩家名單
func (m *Manager) resolveParticipants(specs ...participantSpec) ([]Participant, error) {
	participants := make([]Participant, 0, len(specs))
	for _, spec := range specs {
		profile, err := m.directory.Profile(spec.userID)
		if err != nil {
			return nil, err
		}
		participants = append(participants, Participant{
			Role:        spec.role,
			UserID:      spec.userID,
			DisplayName: profile.DisplayName,
			Level:       profile.Level,
		})
	}
	return participants, nil
}

// createStartingRoom 建立一個雙方都已到齊、直接進入開賽倒數的房間
// 邀請制與再戰都走這裡
func (m *Manager) createStartingRoom(ctx context.Context, duelID uint, settings Settings, questions []Question, participants []Participant) (*Room, error) {
	scores := make(map[uint]int, len(participants))
	for _, p := range participants {
		scores[p.UserID] = 0
	}

	room := &Room{
		DuelID:       duelID,
		Status:       RoomStatusStarting,
		Settings:     settings,
		Participants: participants,
		Questions:    questions,
		Scores:       scores,
		Answers:      make(map[uint]map[int]Answer),
		CreatedAt:    m.clock.Now(),
	}

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
			// 按固定順序認領雙方索引，輸掉任何一個就整間回收
			// 兩個行程同時替同一對玩家建房時只有一個能成立
			for i, p := range participants {
				if err := m.claimUserRoom(ctx, p.UserID, room.ID); err != nil {
					for _, prev := range participants[:i] {
						m.clearUserRoom(ctx, prev.UserID, room.ID)
					}
					if derr := m.store.Delete(ctx, roomKey(room.ID)); derr != nil {
						m.logger.Warn("回收未認領的房間失敗", zap.String("room_id", room.ID), zap.Error(derr))
					}
					return nil, err
				}
			}
			return room, nil
		}
	}
	return nil, ErrRoomIDExhausted
}
