package duel

import "errors"

// 核心操作的錯誤定義
// 這些錯誤都會以結構化事件同步回報給觸發的連線，不會讓行程崩潰
var (
	ErrRoomNotFound    = errors.New("房間不存在")
	ErrRoomNotJoinable = errors.New("房間不開放加入")
	ErrRoomFull        = errors.New("房間人數已滿")
	ErrRoomIDExhausted = errors.New("無法產生不重複的房間代碼")
	ErrAlreadyInRoom   = errors.New("用戶已在其他房間中")
	ErrNotParticipant  = errors.New("用戶不是房間玩家")

	ErrRoomNotActive   = errors.New("對戰尚未開始或已結束")
	ErrWrongQuestion   = errors.New("題目序號與當前進度不符")
	ErrAlreadyAnswered = errors.New("這道題目已經作答過")

	ErrDuelNotFound        = errors.New("對戰紀錄不存在")
	ErrNotInvitee          = errors.New("用戶不是被邀請的一方")
	ErrChallengeNotPending = errors.New("挑戰已失效或已被處理")
	ErrNotEnoughQuestions  = errors.New("題庫中符合條件的題目不足")

	ErrRematchUnavailable = errors.New("對戰結束後才能提出再戰")
	ErrRematchPending     = errors.New("已有再戰邀請等待回應")
	ErrNoRematchOffer     = errors.New("沒有可接受的再戰邀請")

	ErrNotSpectatable            = errors.New("這場對戰目前無法觀戰")
	ErrParticipantCannotSpectate = errors.New("玩家不能觀戰自己的對戰")
)

// 錯誤分類代碼，對應到回報給客戶端的 error 事件
const (
	CodeNotFound     = "not_found"
	CodeInvalidState = "invalid_state"
	CodeCapacity     = "capacity"
	CodeUnauthorized = "unauthorized"
	CodeConflict     = "conflict"
	CodeTransient    = "transient"
	CodeInternal     = "internal"
)

// ErrorCode 將錯誤歸入分類代碼
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound),
		errors.Is(err, ErrDuelNotFound),
		errors.Is(err, ErrNoRematchOffer),
		errors.Is(err, ErrNotEnoughQuestions):
		return CodeNotFound
	case errors.Is(err, ErrRoomNotJoinable),
		errors.Is(err, ErrRoomNotActive),
		errors.Is(err, ErrWrongQuestion),
		errors.Is(err, ErrChallengeNotPending),
		errors.Is(err, ErrRematchUnavailable),
		errors.Is(err, ErrNotSpectatable):
		return CodeInvalidState
	case errors.Is(err, ErrRoomFull):
		return CodeCapacity
	case errors.Is(err, ErrNotParticipant),
		errors.Is(err, ErrNotInvitee),
		errors.Is(err, ErrParticipantCannotSpectate):
		return CodeUnauthorized
	case errors.Is(err, ErrAlreadyInRoom),
		errors.Is(err, ErrAlreadyAnswered),
		errors.Is(err, ErrRematchPending),
		errors.Is(err, ErrRoomIDExhausted):
		return CodeConflict
	default:
		return CodeInternal
	}
}
