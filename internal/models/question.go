package models

import (
	"gorm.io/gorm"
)

// Question 題庫中的一道選擇題
type Question struct {
	gorm.Model
	Content      string   `gorm:"type:text;not null" json:"content"`
	Options      []string `gorm:"serializer:json" json:"options"` // 選項列表，固定四個
	CorrectIndex int      `json:"-"`                              // 正確選項的索引，不對外序列化
	Category     int      `gorm:"index" json:"category"`
	Difficulty   int      `gorm:"index" json:"difficulty"`
}
