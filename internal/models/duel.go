package models

import (
	"gorm.io/gorm"
)

// Duel 一場對戰的持久化紀錄
// 從挑戰建立開始寫入，對戰結束時回填勝負與分數
type Duel struct {
	gorm.Model
	ChallengerID    uint       `gorm:"index;not null" json:"challenger_id"`
	OpponentID      uint       `gorm:"index;not null" json:"opponent_id"`
	Category        int        `json:"category"`
	Difficulty      int        `json:"difficulty"`
	QuestionCount   int        `json:"question_count"`
	TimeLimit       int        `json:"time_limit"` // 每題作答秒數
	QuestionsJSON   string     `gorm:"type:jsonb" json:"-"` // 開戰時固定下來的題目快照
	RoomCode        string     `gorm:"index" json:"room_code"`
	Status          DuelStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`
	WinnerID        uint       `json:"winner_id"`
	ChallengerScore int        `json:"challenger_score"`
	OpponentScore   int        `json:"opponent_score"`
}

// DuelStatus 定義對戰紀錄狀態的類型
type DuelStatus string

const (
	DuelStatusPending   DuelStatus = "pending"   // 挑戰已建立，等待對方接受
	DuelStatusDeclined  DuelStatus = "declined"  // 對方拒絕挑戰
	DuelStatusActive    DuelStatus = "active"    // 對戰進行中
	DuelStatusFinished  DuelStatus = "finished"  // 對戰正常結束
	DuelStatusAbandoned DuelStatus = "abandoned" // 有一方中途離開
)
