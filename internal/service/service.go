package service

import (
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"quiz_duel/internal/duel"
	"quiz_duel/internal/pubsub"
	"quiz_duel/internal/repository"
	"quiz_duel/internal/store"
)

type Services struct {
	User         *UserService
	Notification *NotificationService
	Duel         *duel.Manager
	Hub          *Hub

	Duels repository.DuelRepository // 對戰歷史查詢直接走 repository
}

func NewServices(
	repos *repository.Repositories,
	st store.Store,
	bus pubsub.PubSub,
	clock clockwork.Clock,
	logger *zap.Logger,
) *Services {
	userService := NewUserService(repos.User)
	notificationService := NewNotificationService(repos.Notification, logger)

	manager := duel.NewManager(
		st,
		bus,
		clock,
		newDuelRecorder(repos.Duel),
		newQuestionSource(repos.Question),
		notificationService,
		userService,
		logger,
	)

	return &Services{
		User:         userService,
		Notification: notificationService,
		Duel:         manager,
		Hub:          NewHub(bus, logger),
		Duels:        repos.Duel,
	}
}
