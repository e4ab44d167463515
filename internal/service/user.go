package service

import (
	"quiz_duel/internal/models"
	"quiz_duel/internal/repository"

	"quiz_duel/internal/duel"
)

type UserService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

func (s *UserService) CreateUser(user *models.User) error {
	return s.userRepo.Create(user)
}

func (s *UserService) GetUserByUsername(username string) (*models.User, error) {
	return s.userRepo.FindByUsername(username)
}

func (s *UserService) GetUserByID(id uint) (*models.User, error) {
	return s.userRepo.FindByID(id)
}

// Profile 提供對戰核心需要的最小公開資料
func (s *UserService) Profile(userID uint) (duel.Profile, error) {
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		return duel.Profile{}, err
	}
	return duel.Profile{
		ID:          user.ID,
		DisplayName: user.Username,
		Level:       user.Level,
	}, nil
}
