package duel

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
)

// errStaleTransition 狀態機轉移撞上過期的前置條件
// 例如計時器觸發時房間已經被別的事件推進，此時安靜放棄即可
var errStaleTransition = errors.New("房間狀態已被其他事件推進")

// 計分參數：答對得基本分，剩餘時間越多加成越高
const (
	basePoints    = 100
	speedBonusMax = 100
)

// scorePoints 計算單題得分
// 答錯或跳過得零分；答對的加成隨作答延遲單調遞減
func scorePoints(correct bool, latencyMS int64, timeLimitSec int) int {
	if !correct {
		return 0
	}
	limitMS := int64(timeLimitSec) * 1000
	remaining := limitMS - latencyMS
	if remaining < 0 {
		remaining = 0
	}
	return basePoints + int(int64(speedBonusMax)*remaining/limitMS)
}

// beginSession 雙方到齊後的開賽流程
// 完整題目列表（去除答案）只在這裡送一次，發到雙方的用戶頻道，
// 確保連線掛在別的行程上的玩家也收得到；之後排程進入 active
func (m *Manager) beginSession(ctx context.Context, room *Room) {
	payload := SessionStartedPayload{
		RoomID:       room.ID,
		DuelID:       room.DuelID,
		Participants: room.Participants,
		Settings:     room.Settings,
		Questions:    sanitizeQuestions(room.Questions),
		StartsInMS:   startDelay.Milliseconds(),
	}
	for _, p := range room.Participants {
		m.publishToUser(ctx, p.UserID, Event{
			Type:    EventSessionStarted,
			RoomID:  room.ID,
			Payload: payload,
		})
	}

	roomID := room.ID
	m.sched.Schedule(roomID, taskActivate, startDelay, func() {
		m.activateSession(context.Background(), roomID)
	})
}

// activateSession starting -> active，送出第零題的推進訊號
func (m *Manager) activateSession(ctx context.Context, roomID string) {
	room, err := m.updateRoom(ctx, roomID, func(room *Room) error {
		if room.Status != RoomStatusStarting {
			return errStaleTransition
		}
		room.Status = RoomStatusActive
		room.StartedAt = m.clock.Now()
		room.CurrentQuestion = 0
		room.QuestionAt = m.clock.Now()
		return nil
	})
	if err != nil {
		if !errors.Is(err, errStaleTransition) && !errors.Is(err, ErrRoomNotFound) {
			m.logger.Error("開賽轉移失敗", zap.String("room_id", roomID), zap.Error(err))
		}
		return
	}
	m.publishQuestion(ctx, room, 0)
}

// publishQuestion 推進題目指標並排下回合超時
// 題目內容開賽時已經送過，這裡只廣播序號與時限
func (m *Manager) publishQuestion(ctx context.Context, room *Room, index int) {
	m.publishToRoom(ctx, room.ID, Event{
		Type: EventQuestionAdvance,
		Payload: QuestionAdvancePayload{
			Index:     index,
			TimeLimit: room.Settings.TimeLimit,
		},
	})

	// 沒有人可以永遠卡住一個回合：時限加寬限一到就強制結算
	roomID := room.ID
	timeout := time.Duration(room.Settings.TimeLimit)*time.Second + roundGrace
	m.sched.Schedule(roomID, taskRound, timeout, func() {
		m.forceCloseRound(context.Background(), roomID, index)
	})
}

// SubmitAnswer 收下一名玩家的作答
// 答案以雜湊欄位原子落地，兩個行程同時寫同一回合也不會互相覆蓋；
// 落地後檢查屏障：所有玩家都到了就結算，否則提示對手已作答
func (m *Manager) SubmitAnswer(ctx context.Context, userID uint, index int, choice int) error {
	roomID, err := m.RoomOf(ctx, userID)
	if err != nil {
		return err
	}
	room, err := m.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}

	if !room.IsParticipant(userID) {
		return ErrNotParticipant
	}
	if room.Status != RoomStatusActive {
		return ErrRoomNotActive
	}
	if index != room.CurrentQuestion {
		return ErrWrongQuestion
	}
	if choice < 0 || choice >= len(room.Questions[index].Options) {
		choice = ChoiceSkip
	}

	now := m.clock.Now()
	answer := Answer{
		Choice:      choice,
		LatencyMS:   now.Sub(room.QuestionAt).Milliseconds(),
		SubmittedAt: now,
	}
	encoded, err := json.Marshal(answer)
	if err != nil {
		return err
	}

	ok, err := m.store.SetFieldNX(ctx, answersKey(roomID), answerField(userID, index), string(encoded), roomTTL)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyAnswered
	}

	fields, err := m.store.GetFields(ctx, answersKey(roomID))
	if err != nil {
		return err
	}
	answered := 0
	for _, p := range room.Participants {
		if _, ok := fields[answerField(p.UserID, index)]; ok {
			answered++
		}
	}
	if answered < len(room.Participants) {
		m.publishToRoom(ctx, roomID, Event{
			Type:    EventOpponentAnswered,
			Payload: OpponentAnsweredPayload{UserID: userID, Index: index},
		})
		return nil
	}

	return m.closeRound(ctx, roomID, index)
}

// forceCloseRound 回合超時的入口，缺席的玩家以跳過計
func (m *Manager) forceCloseRound(ctx context.Context, roomID string, index int) {
	if err := m.closeRound(ctx, roomID, index); err != nil {
		m.logger.Error("強制結算回合失敗",
			zap.String("room_id", roomID), zap.Int("index", index), zap.Error(err))
	}
}

// closeRound 結算一個回合
// 先用一次性旗標認領，確保多行程競爭下只有一個行程執行計分；
// 計分與推進全部在一次原子更新內完成
func (m *Manager) closeRound(ctx context.Context, roomID string, index int) error {
	claimed, err := m.store.SetNX(ctx, roundClaimKey(roomID, index), "1", roomTTL)
	if err != nil {
		return err
	}
	if !claimed {
		return nil // 另一個行程正在結算這個回合
	}
	m.sched.Cancel(roomID, taskRound)

	fields, err := m.store.GetFields(ctx, answersKey(roomID))
	if err != nil {
		return err
	}

	var outcomes []RoundOutcome
	room, err := m.updateRoom(ctx, roomID, func(room *Room) error {
		if room.Status != RoomStatusActive || room.CurrentQuestion != index {
			return errStaleTransition
		}
		question := room.Questions[index]
		outcomes = outcomes[:0]
		for _, p := range room.Participants {
			answer := Answer{Choice: ChoiceSkip, SubmittedAt: m.clock.Now()}
			if raw, ok := fields[answerField(p.UserID, index)]; ok {
				if err := json.Unmarshal([]byte(raw), &answer); err != nil {
					answer = Answer{Choice: ChoiceSkip, SubmittedAt: m.clock.Now()}
				}
			}
			correct := answer.Choice != ChoiceSkip && answer.Choice == question.CorrectIndex
			points := scorePoints(correct, answer.LatencyMS, room.Settings.TimeLimit)
			room.Scores[p.UserID] += points
			room.recordAnswer(p.UserID, index, answer)
			outcomes = append(outcomes, RoundOutcome{
				UserID:    p.UserID,
				Choice:    answer.Choice,
				Correct:   correct,
				Points:    points,
				LatencyMS: answer.LatencyMS,
			})
		}
		return nil
	})
	if errors.Is(err, errStaleTransition) || errors.Is(err, ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	last := index+1 >= len(room.Questions)
	m.publishToRoom(ctx, roomID, Event{
		Type: EventRoundResult,
		Payload: RoundResultPayload{
			Index:        index,
			CorrectIndex: room.Questions[index].CorrectIndex,
			Outcomes:     outcomes,
			Scores:       room.Scores,
			LastRound:    last,
		},
	})
	m.notifySpectators(ctx, room)

	// 結果展示一段時間再推進或收尾
	m.sched.Schedule(roomID, taskAdvance, displayDelay, func() {
		if last {
			m.completeSession(context.Background(), roomID, 0, "finished", false)
		} else {
			m.advanceQuestion(context.Background(), roomID, index)
		}
	})
	return nil
}

// advanceQuestion 推進到下一題
// 指標只會前進，且永遠不會超出題目數量
func (m *Manager) advanceQuestion(ctx context.Context, roomID string, lastIndex int) {
	room, err := m.updateRoom(ctx, roomID, func(room *Room) error {
		if room.Status != RoomStatusActive || room.CurrentQuestion != lastIndex {
			return errStaleTransition
		}
		room.CurrentQuestion = lastIndex + 1
		room.QuestionAt = m.clock.Now()
		return nil
	})
	if err != nil {
		if !errors.Is(err, errStaleTransition) && !errors.Is(err, ErrRoomNotFound) {
			m.logger.Error("推進題目失敗", zap.String("room_id", roomID), zap.Error(err))
		}
		return
	}
	m.publishQuestion(ctx, room, lastIndex+1)
}

// completeSession 把房間收進終態
// forcedWinner 非零時直接採用（斷線判勝），否則比總分，平手為零；
// 終態之後 scores 與 answers 不再接受任何寫入
func (m *Manager) completeSession(ctx context.Context, roomID string, forcedWinner uint, reason string, abandoned bool) {
	room, err := m.updateRoom(ctx, roomID, func(room *Room) error {
		if room.Status == RoomStatusCompleted {
			return errStaleTransition
		}
		room.Status = RoomStatusCompleted
		room.EndedAt = m.clock.Now()
		return nil
	})
	if err != nil {
		if !errors.Is(err, errStaleTransition) && !errors.Is(err, ErrRoomNotFound) {
			m.logger.Error("結束對戰失敗", zap.String("room_id", roomID), zap.Error(err))
		}
		return
	}

	m.sched.CancelRoom(roomID)

	winnerID := forcedWinner
	if winnerID == 0 {
		winnerID = decideWinner(room)
	}

	m.publishToRoom(ctx, roomID, Event{
		Type: EventSessionCompleted,
		Payload: SessionCompletedPayload{
			RoomID:   roomID,
			Scores:   room.Scores,
			WinnerID: winnerID,
			Reason:   reason,
		},
	})
	m.notifySpectators(ctx, room)

	if room.DuelID != 0 {
		if err := m.duels.FinishDuel(room.DuelID, winnerID, room.Scores, abandoned); err != nil {
			m.logger.Error("回寫對戰結果失敗", zap.Uint("duel_id", room.DuelID), zap.Error(err))
		}
	}
	for _, p := range room.Participants {
		m.notifier.Notify(p.UserID, "對戰已結束", "duel_completed", map[string]interface{}{
			"room_id": roomID,
			"duel_id": room.DuelID,
			"winner":  winnerID,
		})
		m.clearUserRoom(ctx, p.UserID, roomID)
	}

	// 房間本體再保留一段時間，讓遲到的結果查詢與再戰協商有東西可讀
	m.sched.Schedule(roomID, taskCleanup, retention, func() {
		if err := m.DeleteRoom(context.Background(), roomID); err != nil {
			m.logger.Warn("清理房間失敗", zap.String("room_id", roomID), zap.Error(err))
		}
	})
}

// decideWinner 比總分決定勝方，平手回傳 0
func decideWinner(room *Room) uint {
	var winnerID uint
	best := -1
	tie := false
	for _, p := range room.Participants {
		score := room.Scores[p.UserID]
		switch {
		case score > best:
			best, winnerID, tie = score, p.UserID, false
		case score == best:
			tie = true
		}
	}
	if tie {
		return 0
	}
	return winnerID
}
