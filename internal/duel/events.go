package duel

import "encoding/json"

// 伺服器發出的事件名稱
const (
	EventRoomCreated      = "room_created"
	EventSessionStarted   = "session_started"
	EventQuestionAdvance  = "question_advance"
	EventOpponentAnswered = "opponent_answered"
	EventRoundResult      = "round_result"
	EventSessionCompleted = "session_completed"
	EventPlayerLeft       = "player_left"
	EventDuelInvited      = "duel_invited"
	EventDuelDeclined     = "duel_declined"
	EventRematchOffered   = "rematch_offered"
	EventRematchStarted   = "rematch_started"
	EventSpectateUpdate   = "spectate_update"
	EventError            = "error"
)

// Event 發佈到用戶或房間頻道的事件外殼
type Event struct {
	Type    string      `json:"type"`
	RoomID  string      `json:"room_id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// Encode 序列化事件，發佈前呼叫
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// QuestionView 對客戶端揭露的題目內容，不含正確答案
type QuestionView struct {
	ID      uint     `json:"id"`
	Content string   `json:"content"`
	Options []string `json:"options"`
}

// sanitizeQuestions 去除題目中的答案資訊
func sanitizeQuestions(questions []Question) []QuestionView {
	views := make([]QuestionView, len(questions))
	for i, q := range questions {
		views[i] = QuestionView{ID: q.ID, Content: q.Content, Options: q.Options}
	}
	return views
}

// SessionStartedPayload 開賽事件：完整題目列表只在這裡送一次，
// 之後的 question_advance 只推進指標，不再重送內容
type SessionStartedPayload struct {
	RoomID       string         `json:"room_id"`
	DuelID       uint           `json:"duel_id"`
	Participants []Participant  `json:"participants"`
	Settings     Settings       `json:"settings"`
	Questions    []QuestionView `json:"questions"`
	StartsInMS   int64          `json:"starts_in_ms"`
}

// QuestionAdvancePayload 推進到下一題的訊號
type QuestionAdvancePayload struct {
	Index     int `json:"index"`
	TimeLimit int `json:"time_limit"`
}

// OpponentAnsweredPayload 對手已作答的提示，不含答案內容
type OpponentAnsweredPayload struct {
	UserID uint `json:"user_id"`
	Index  int  `json:"index"`
}

// RoundOutcome 單一玩家在一個回合的結果
type RoundOutcome struct {
	UserID    uint  `json:"user_id"`
	Choice    int   `json:"choice"`
	Correct   bool  `json:"correct"`
	Points    int   `json:"points"`
	LatencyMS int64 `json:"latency_ms"`
}

// RoundResultPayload 回合結算：所有玩家的結果與累計分數
type RoundResultPayload struct {
	Index        int            `json:"index"`
	CorrectIndex int            `json:"correct_index"`
	Outcomes     []RoundOutcome `json:"outcomes"`
	Scores       map[uint]int   `json:"scores"`
	LastRound    bool           `json:"last_round"`
}

// SessionCompletedPayload 對戰結束事件
type SessionCompletedPayload struct {
	RoomID   string       `json:"room_id"`
	Scores   map[uint]int `json:"scores"`
	WinnerID uint         `json:"winner_id"` // 0 表示平手
	Reason   string       `json:"reason"`    // finished / player_left
}

// PlayerLeftPayload 玩家離開事件
type PlayerLeftPayload struct {
	UserID uint `json:"user_id"`
}

// DuelInvitedPayload 對戰邀請事件，發到受邀方的用戶頻道
type DuelInvitedPayload struct {
	DuelID     uint     `json:"duel_id"`
	Challenger Profile  `json:"challenger"`
	Settings   Settings `json:"settings"`
}

// DuelDeclinedPayload 拒絕邀請事件，發回挑戰方
type DuelDeclinedPayload struct {
	DuelID     uint `json:"duel_id"`
	DeclinerID uint `json:"decliner_id"`
}

// RematchOfferedPayload 再戰邀請事件
type RematchOfferedPayload struct {
	RoomID      string `json:"room_id"`
	RequesterID uint   `json:"requester_id"`
}

// RematchStartedPayload 再戰成立事件，帶新房間代碼
type RematchStartedPayload struct {
	OldRoomID string `json:"old_room_id"`
	NewRoomID string `json:"new_room_id"`
}

// SpectateUpdatePayload 每回合結算後推給觀眾的增量更新
// 只有進度與分數，不揭露尚未作答的題目內容
type SpectateUpdatePayload struct {
	Index          int          `json:"index"`
	TotalQuestions int          `json:"total_questions"`
	Scores         map[uint]int `json:"scores"`
	SpectatorCount int          `json:"spectator_count"`
	Status         RoomStatus   `json:"status"`
}

// SpectateSnapshot 觀眾加入時回傳的即時快照
type SpectateSnapshot struct {
	RoomID         string        `json:"room_id"`
	Status         RoomStatus    `json:"status"`
	Participants   []Participant `json:"participants"`
	Index          int           `json:"index"`
	TotalQuestions int           `json:"total_questions"`
	Scores         map[uint]int  `json:"scores"`
	SpectatorCount int           `json:"spectator_count"`
}

// ErrorPayload 所有被拒絕操作的統一回報格式
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
