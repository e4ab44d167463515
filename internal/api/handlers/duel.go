package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"quiz_duel/internal/duel"
	"quiz_duel/internal/repository"
)

// DuelHandler 處理對戰相關的 REST 請求
// 即時互動走 WebSocket，這裡只提供建立與查詢
type DuelHandler struct {
	manager  *duel.Manager
	duelRepo repository.DuelRepository
}

func NewDuelHandler(manager *duel.Manager, duelRepo repository.DuelRepository) *DuelHandler {
	return &DuelHandler{manager: manager, duelRepo: duelRepo}
}

// duelErrorStatus 把核心的錯誤分類映射到 HTTP 狀態碼
func duelErrorStatus(err error) int {
	switch duel.ErrorCode(err) {
	case duel.CodeNotFound:
		return http.StatusNotFound
	case duel.CodeInvalidState, duel.CodeCapacity:
		return http.StatusBadRequest
	case duel.CodeUnauthorized:
		return http.StatusForbidden
	case duel.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// CreateChallenge 發起直接邀請對戰
func (h *DuelHandler) CreateChallenge(c *gin.Context) {
	var input struct {
		OpponentID    uint `json:"opponent_id" binding:"required"`
		Category      int  `json:"category"`
		Difficulty    int  `json:"difficulty"`
		QuestionCount int  `json:"question_count"`
		TimeLimit     int  `json:"time_limit"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, _ := c.Get("userID")
	duelID, err := h.manager.CreateChallenge(c.Request.Context(), userID.(uint), input.OpponentID, duel.Settings{
		Category:      input.Category,
		Difficulty:    input.Difficulty,
		QuestionCount: input.QuestionCount,
		TimeLimit:     input.TimeLimit,
	})
	if err != nil {
		c.JSON(duelErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"duel_id": duelID})
}

// CreateRoom 建立代碼制房間，回傳房間代碼供對手加入
func (h *DuelHandler) CreateRoom(c *gin.Context) {
	var input struct {
		Category      int `json:"category"`
		Difficulty    int `json:"difficulty"`
		QuestionCount int `json:"question_count"`
		TimeLimit     int `json:"time_limit"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, _ := c.Get("userID")
	room, err := h.manager.CreateRoom(c.Request.Context(), userID.(uint), duel.Settings{
		Category:      input.Category,
		Difficulty:    input.Difficulty,
		QuestionCount: input.QuestionCount,
		TimeLimit:     input.TimeLimit,
	})
	if err != nil {
		c.JSON(duelErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, roomView(room))
}

// GetRoom 查詢房間目前的狀態
func (h *DuelHandler) GetRoom(c *gin.Context) {
	room, err := h.manager.GetRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(duelErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, roomView(room))
}

// ListDuels 查詢自己的對戰歷史
func (h *DuelHandler) ListDuels(c *gin.Context) {
	userID, _ := c.Get("userID")
	duels, err := h.duelRepo.FindByUser(userID.(uint))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "無法查詢對戰紀錄"})
		return
	}

	c.JSON(http.StatusOK, duels)
}

// GetDuel 查詢單筆對戰紀錄
func (h *DuelHandler) GetDuel(c *gin.Context) {
	duelID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "無效的對戰 ID"})
		return
	}

	record, err := h.duelRepo.FindByID(uint(duelID))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "對戰紀錄不存在"})
		return
	}

	c.JSON(http.StatusOK, record)
}

// roomView 房間的對外視圖，不含題目答案
func roomView(room *duel.Room) gin.H {
	return gin.H{
		"id":               room.ID,
		"duel_id":          room.DuelID,
		"status":           room.Status,
		"settings":         room.Settings,
		"participants":     room.Participants,
		"current_question": room.CurrentQuestion,
		"total_questions":  len(room.Questions),
		"scores":           room.Scores,
		"created_at":       room.CreatedAt.Format(time.RFC3339),
	}
}
