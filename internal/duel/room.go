// Package duel 實作即時對戰的核心：房間生命週期、對戰狀態機、
// 答案同步屏障、再戰協商、觀戰與斷線清理。
//
// 房間是唯一會被多個連線（可能分散在多個伺服器行程）同時改寫的資料，
// 所有改寫一律走共享儲存的原子操作：整筆狀態用樂觀鎖更新，
// 答案用雜湊欄位逐筆落地，回合結算用一次性旗標確保只有一個行程執行。
package duel

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RoomStatus 定義房間生命週期狀態
type RoomStatus string

const (
	RoomStatusWaiting   RoomStatus = "waiting"   // 房間開放中，人數未滿
	RoomStatusStarting  RoomStatus = "starting"  // 雙方到齊，開賽倒數
	RoomStatusActive    RoomStatus = "active"    // 出題作答中
	RoomStatusCompleted RoomStatus = "completed" // 終態，不再接受任何寫入
)

// Role 參與者在房間中的角色
type Role string

const (
	RoleChallenger Role = "challenger" // 邀請制對戰的發起方
	RoleOpponent   Role = "opponent"   // 邀請制對戰的受邀方
	RoleHost       Role = "host"       // 房間代碼制的開房方
	RoleGuest      Role = "guest"      // 房間代碼制的加入方
)

// Participant 房間中的一名玩家
// 所有參與者統一用這個結構表示，角色只是標記，
// 屏障與計分邏輯一律遍歷 Participants 切片，不分角色處理
type Participant struct {
	Role        Role   `json:"role"`
	UserID      uint   `json:"user_id"`
	DisplayName string `json:"display_name"`
	Level       int    `json:"level"`
}

// Settings 對戰設定，從挑戰或開房請求原樣帶入
type Settings struct {
	Category      int `json:"category"`
	Difficulty    int `json:"difficulty"`
	QuestionCount int `json:"question_count"`
	TimeLimit     int `json:"time_limit"` // 每題作答秒數
}

// Question 開賽時固定下來的題目快照
// 快照之後題庫再怎麼修改都不影響進行中的對戰
type Question struct {
	ID           uint     `json:"id"`
	Content      string   `json:"content"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
}

// Answer 一名玩家對一道題目的作答
type Answer struct {
	Choice      int       `json:"choice"` // -1 表示跳過或超時未答
	LatencyMS   int64     `json:"latency_ms"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ChoiceSkip 跳過題目時的選項值
const ChoiceSkip = -1

// Room 一場進行中（或剛結束）對戰的權威狀態
// 整筆以 JSON 存在共享儲存，改寫只能透過樂觀鎖更新；
// 進行中的答案記在獨立的雜湊鍵，回合結算時才併回這裡
type Room struct {
	ID              string                  `json:"id"`
	DuelID          uint                    `json:"duel_id"`
	Status          RoomStatus              `json:"status"`
	Settings        Settings                `json:"settings"`
	Participants    []Participant           `json:"participants"`
	Questions       []Question              `json:"questions"`
	CurrentQuestion int                     `json:"current_question"`
	QuestionAt      time.Time               `json:"question_at"` // 當前題目送出的時間，計算作答延遲用
	Scores          map[uint]int            `json:"scores"`
	Answers         map[uint]map[int]Answer `json:"answers"`
	CreatedAt       time.Time               `json:"created_at"`
	StartedAt       time.Time               `json:"started_at"`
	EndedAt         time.Time               `json:"ended_at"`
}

// IsParticipant 判斷用戶是否為房間玩家
func (r *Room) IsParticipant(userID uint) bool {
	for _, p := range r.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// OpponentOf 取得用戶的對手，找不到時回傳 0
func (r *Room) OpponentOf(userID uint) uint {
	for _, p := range r.Participants {
		if p.UserID != userID {
			return p.UserID
		}
	}
	return 0
}

// recordAnswer 將答案併入房間狀態，只在回合結算的原子更新內呼叫
func (r *Room) recordAnswer(userID uint, index int, answer Answer) {
	if r.Answers == nil {
		r.Answers = make(map[uint]map[int]Answer)
	}
	if r.Answers[userID] == nil {
		r.Answers[userID] = make(map[int]Answer)
	}
	r.Answers[userID][index] = answer
}

// 時間界線
const (
	roomTTL      = time.Hour        // 共享儲存中所有房間資料的存活上限
	startDelay   = 3 * time.Second  // 開賽前的緩衝，讓雙方客戶端完成頻道訂閱
	displayDelay = 3 * time.Second  // 回合結果的展示時間
	roundGrace   = 5 * time.Second  // 作答時限之外的寬限，超過就強制結算
	retention    = 5 * time.Minute  // 終態房間保留時間，供遲到的結果查詢
	rematchTTL   = 60 * time.Second // 再戰邀請的有效時間
)

const (
	defaultTimeLimit     = 15 // 預設每題作答秒數
	defaultQuestionCount = 5
)

// 房間代碼使用的字元集，排除容易混淆的 0/O/1/I
const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	roomCodeLength   = 6
	roomCodeAttempts = 5
)

// 共享儲存的鍵與頻道命名

func roomKey(roomID string) string {
	return "duel:room:" + roomID
}

func answersKey(roomID string) string {
	return "duel:room:" + roomID + ":answers"
}

func roundClaimKey(roomID string, index int) string {
	return fmt.Sprintf("duel:room:%s:round:%d:closed", roomID, index)
}

func rematchKey(roomID string) string {
	return "duel:room:" + roomID + ":rematch"
}

func userRoomKey(userID uint) string {
	return fmt.Sprintf("duel:user:%d", userID)
}

func spectatorsKey(roomID string) string {
	return "duel:spectators:" + roomID
}

func spectConnKey(connID string) string {
	return "duel:spectconn:" + connID
}

// answerField 答案雜湊的欄位名稱，每位玩家每道題一個欄位
func answerField(userID uint, index int) string {
	return fmt.Sprintf("%d:%d", userID, index)
}

// parseAnswerField 還原答案欄位名稱中的玩家與題目序號
func parseAnswerField(field string) (uint, int, error) {
	parts := strings.SplitN(field, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed answer field: %q", field)
	}
	userID, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, err
	}
	index, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return uint(userID), index, nil
}

// ChannelUser 某個用戶的事件頻道
// 用戶的連線掛在哪個行程上都能透過這個頻道送達
func ChannelUser(userID uint) string {
	return fmt.Sprintf("duel:events:user:%d", userID)
}

// ChannelRoom 某個房間的事件頻道，玩家與觀眾共用
func ChannelRoom(roomID string) string {
	return "duel:events:room:" + roomID
}
