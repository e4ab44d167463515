package service

import (
	"encoding/json"

	"quiz_duel/internal/duel"
	"quiz_duel/internal/models"
	"quiz_duel/internal/repository"
)

// 這個檔案把 gorm repository 接上對戰核心的協作者介面：
// 核心只認識 duel 套件的型別，資料庫模型的轉換都收在這裡

// duelRecorder 實作 duel.DuelRecorder
type duelRecorder struct {
	duelRepo repository.DuelRepository
}

func newDuelRecorder(duelRepo repository.DuelRepository) *duelRecorder {
	return &duelRecorder{duelRepo: duelRepo}
}

func (r *duelRecorder) CreateDuel(challengerID, opponentID uint, settings duel.Settings, questions []duel.Question) (uint, error) {
	encoded, err := json.Marshal(questions)
	if err != nil {
		return 0, err
	}

	record := &models.Duel{
		ChallengerID:  challengerID,
		OpponentID:    opponentID,
		Category:      settings.Category,
		Difficulty:    settings.Difficulty,
		QuestionCount: settings.QuestionCount,
		TimeLimit:     settings.TimeLimit,
		QuestionsJSON: string(encoded),
		Status:        models.DuelStatusPending,
	}
	if err := r.duelRepo.Create(record); err != nil {
		return 0, err
	}
	return record.ID, nil
}

func (r *duelRecorder) FindDuel(duelID uint) (*duel.DuelRecord, error) {
	record, err := r.duelRepo.FindByID(duelID)
	if err != nil {
		return nil, err
	}

	var questions []duel.Question
	if err := json.Unmarshal([]byte(record.QuestionsJSON), &questions); err != nil {
		return nil, err
	}

	return &duel.DuelRecord{
		ID:           record.ID,
		ChallengerID: record.ChallengerID,
		OpponentID:   record.OpponentID,
		Settings: duel.Settings{
			Category:      record.Category,
			Difficulty:    record.Difficulty,
			QuestionCount: record.QuestionCount,
			TimeLimit:     record.TimeLimit,
		},
		Questions: questions,
		Pending:   record.Status == models.DuelStatusPending,
	}, nil
}

func (r *duelRecorder) AttachRoomCode(duelID uint, roomID string) error {
	record, err := r.duelRepo.FindByID(duelID)
	if err != nil {
		return err
	}
	record.RoomCode = roomID
	return r.duelRepo.Update(record)
}

func (r *duelRecorder) MarkActive(duelID uint) error {
	return r.setStatus(duelID, models.DuelStatusActive)
}

func (r *duelRecorder) MarkDeclined(duelID uint) error {
	return r.setStatus(duelID, models.DuelStatusDeclined)
}

func (r *duelRecorder) setStatus(duelID uint, status models.DuelStatus) error {
	record, err := r.duelRepo.FindByID(duelID)
	if err != nil {
		return err
	}
	record.Status = status
	return r.duelRepo.Update(record)
}

func (r *duelRecorder) FinishDuel(duelID uint, winnerID uint, scores map[uint]int, abandoned bool) error {
	record, err := r.duelRepo.FindByID(duelID)
	if err != nil {
		return err
	}
	record.WinnerID = winnerID
	record.ChallengerScore = scores[record.ChallengerID]
	record.OpponentScore = scores[record.OpponentID]
	if abandoned {
		record.Status = models.DuelStatusAbandoned
	} else {
		record.Status = models.DuelStatusFinished
	}
	return r.duelRepo.Update(record)
}

// questionSource 實作 duel.QuestionSource
type questionSource struct {
	questionRepo repository.QuestionRepository
}

func newQuestionSource(questionRepo repository.QuestionRepository) *questionSource {
	return &questionSource{questionRepo: questionRepo}
}

func (s *questionSource) Snapshot(settings duel.Settings) ([]duel.Question, error) {
	records, err := s.questionRepo.FindRandom(settings.Category, settings.Difficulty, settings.QuestionCount)
	if err != nil {
		return nil, err
	}

	questions := make([]duel.Question, len(records))
	for i, q := range records {
		questions[i] = duel.Question{
			ID:           q.ID,
			Content:      q.Content,
			Options:      q.Options,
			CorrectIndex: q.CorrectIndex,
		}
	}
	return questions, nil
}
