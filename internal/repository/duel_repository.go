package repository

import (
	"quiz_duel/internal/models"
	"quiz_duel/internal/storage"
)

type DuelRepository interface {
	Create(duel *models.Duel) error
	FindByID(id uint) (*models.Duel, error)
	Update(duel *models.Duel) error
	// FindByUser 查詢某個用戶參與過的對戰，新的在前
	FindByUser(userID uint) ([]models.Duel, error)
}

type duelRepository struct {
	db *storage.PostgresDB
}

func NewDuelRepository(db *storage.PostgresDB) DuelRepository {
	return &duelRepository{db: db}
}

func (r *duelRepository) Create(duel *models.Duel) error {
	return r.db.Create(duel).Error
}

func (r *duelRepository) FindByID(id uint) (*models.Duel, error) {
	var duel models.Duel
	err := r.db.First(&duel, id).Error
	if err != nil {
		return nil, err
	}
	return &duel, nil
}

func (r *duelRepository) Update(duel *models.Duel) error {
	return r.db.Save(duel).Error
}

func (r *duelRepository) FindByUser(userID uint) ([]models.Duel, error) {
	var duels []models.Duel
	err := r.db.
		Where("challenger_id = ? OR opponent_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&duels).Error
	return duels, err
}
