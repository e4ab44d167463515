package repository

import "quiz_duel/internal/storage"

type Repositories struct {
	User         UserRepository
	Question     QuestionRepository
	Duel         DuelRepository
	Notification NotificationRepository
}

func NewRepositories(db *storage.PostgresDB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Question:     NewQuestionRepository(db),
		Duel:         NewDuelRepository(db),
		Notification: NewNotificationRepository(db),
	}
}
