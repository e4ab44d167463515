package service

import (
	"encoding/json"

	"go.uber.org/zap"

	"quiz_duel/internal/models"
	"quiz_duel/internal/repository"
)

// NotificationService 站內通知
// 通知是旁路功能：建立失敗只記 log，絕不讓對戰流程跟著失敗
type NotificationService struct {
	notificationRepo repository.NotificationRepository
	logger           *zap.Logger
}

func NewNotificationService(notificationRepo repository.NotificationRepository, logger *zap.Logger) *NotificationService {
	return &NotificationService{notificationRepo: notificationRepo, logger: logger}
}

// Notify 建立一則通知，失敗時記錄後吞掉
func (s *NotificationService) Notify(userID uint, message, notifType string, metadata map[string]interface{}) {
	encoded, err := json.Marshal(metadata)
	if err != nil {
		s.logger.Warn("通知附加資料序列化失敗", zap.Error(err))
		encoded = []byte("{}")
	}

	notification := &models.Notification{
		UserID:   userID,
		Message:  message,
		Type:     notifType,
		Metadata: string(encoded),
	}
	if err := s.notificationRepo.Create(notification); err != nil {
		s.logger.Warn("建立通知失敗",
			zap.Uint("user_id", userID), zap.String("type", notifType), zap.Error(err))
	}
}

// ListForUser 查詢用戶的通知
func (s *NotificationService) ListForUser(userID uint) ([]models.Notification, error) {
	return s.notificationRepo.FindByUser(userID)
}
