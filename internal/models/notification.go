package models

import (
	"gorm.io/gorm"
)

// Notification 站內通知
// 通知屬於旁路功能，建立失敗不影響對戰流程
type Notification struct {
	gorm.Model
	UserID   uint   `gorm:"index;not null" json:"user_id"`
	Message  string `gorm:"type:text" json:"message"`
	Type     string `gorm:"type:varchar(50)" json:"type"`
	Metadata string `gorm:"type:jsonb" json:"metadata,omitempty"`
	Read     bool   `gorm:"default:false" json:"read"`
}
