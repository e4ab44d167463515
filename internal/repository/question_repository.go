package repository

import (
	"quiz_duel/internal/models"
	"quiz_duel/internal/storage"
)

type QuestionRepository interface {
	Create(question *models.Question) error
	// FindRandom 依分類與難度隨機抽出指定數量的題目
	FindRandom(category, difficulty, count int) ([]models.Question, error)
}

type questionRepository struct {
	db *storage.PostgresDB
}

func NewQuestionRepository(db *storage.PostgresDB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) Create(question *models.Question) error {
	return r.db.Create(question).Error
}

func (r *questionRepository) FindRandom(category, difficulty, count int) ([]models.Question, error) {
	var questions []models.Question
	err := r.db.
		Where("category = ? AND difficulty = ?", category, difficulty).
		Order("RANDOM()").
		Limit(count).
		Find(&questions).Error
	return questions, err
}
