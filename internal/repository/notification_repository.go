package repository

import (
	"quiz_duel/internal/models"
	"quiz_duel/internal/storage"
)

type NotificationRepository interface {
	Create(notification *models.Notification) error
	FindByUser(userID uint) ([]models.Notification, error)
}

type notificationRepository struct {
	db *storage.PostgresDB
}

func NewNotificationRepository(db *storage.PostgresDB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(notification *models.Notification) error {
	return r.db.Create(notification).Error
}

func (r *notificationRepository) FindByUser(userID uint) ([]models.Notification, error) {
	var notifications []models.Notification
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&notifications).Error
	return notifications, err
}
