package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"quiz_duel/internal/duel"
	"quiz_duel/internal/service"
)

// 定義 WebSocket 升級器
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // 注意：在生產環境中，應該檢查 origin
	},
}

// WebSocketHandler 處理 WebSocket 連線與訊息分派
type WebSocketHandler struct {
	hub     *service.Hub
	manager *duel.Manager
}

func NewWebSocketHandler(hub *service.Hub, manager *duel.Manager) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, manager: manager}
}

// clientMessage 客戶端發上來的訊息，依 type 分派
type clientMessage struct {
	Type          string `json:"type"`
	RoomID        string `json:"room_id,omitempty"`
	DuelID        uint   `json:"duel_id,omitempty"`
	OpponentID    uint   `json:"opponent_id,omitempty"`
	QuestionIndex int    `json:"question_index"`
	Choice        *int   `json:"choice,omitempty"` // 缺省或負數表示跳過
	Category      int    `json:"category,omitempty"`
	Difficulty    int    `json:"difficulty,omitempty"`
	QuestionCount int    `json:"question_count,omitempty"`
	TimeLimit     int    `json:"time_limit,omitempty"`
}

// HandleWebSocket 升級連線並接手整段生命週期
// 連線結束時交給清理監督流程：觀戰索引先清，
// 進行中的對戰強制終止並通知另一方
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	userIDUint := userID.(uint)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "升級WebSocket失敗"})
		return
	}

	client := h.hub.NewClient(conn, userIDUint)
	h.hub.Serve(client, h.dispatch)
	h.manager.HandleDisconnect(context.Background(), userIDUint, client.ConnID)
}

// dispatch 分派單一訊息，所有被拒絕的操作都回結構化 error 事件
func (h *WebSocketHandler) dispatch(client *service.Client, raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.sendError(client, "", duel.CodeInvalidState, "訊息格式錯誤")
		return
	}

	ctx := context.Background()
	var err error

	switch msg.Type {
	case "create_room":
		_, err = h.manager.CreateRoom(ctx, client.UserID, duel.Settings{
			Category:      msg.Category,
			Difficulty:    msg.Difficulty,
			QuestionCount: msg.QuestionCount,
			TimeLimit:     msg.TimeLimit,
		})

	case "join_room":
		_, err = h.manager.JoinRoom(ctx, msg.RoomID, client.UserID)
		if err == nil {
			h.hub.BindRoom(client, msg.RoomID)
		}

	case "duel_invite":
		_, err = h.manager.CreateChallenge(ctx, client.UserID, msg.OpponentID, duel.Settings{
			Category:      msg.Category,
			Difficulty:    msg.Difficulty,
			QuestionCount: msg.QuestionCount,
			TimeLimit:     msg.TimeLimit,
		})

	case "duel_accept":
		var room *duel.Room
		room, err = h.manager.AcceptChallenge(ctx, client.UserID, msg.DuelID)
		if err == nil {
			h.hub.BindRoom(client, room.ID)
		}

	case "duel_decline":
		err = h.manager.DeclineChallenge(ctx, client.UserID, msg.DuelID)

	case "submit_answer":
		choice := duel.ChoiceSkip
		if msg.Choice != nil {
			choice = *msg.Choice
		}
		err = h.manager.SubmitAnswer(ctx, client.UserID, msg.QuestionIndex, choice)

	case "leave_room":
		err = h.manager.Leave(ctx, client.UserID)

	case "rematch_request":
		err = h.manager.RequestRematch(ctx, client.UserID, msg.RoomID)

	case "rematch_accept":
		var room *duel.Room
		room, err = h.manager.AcceptRematch(ctx, client.UserID, msg.RoomID)
		if err == nil {
			h.hub.BindRoom(client, room.ID)
		}

	case "spectate_join":
		var snapshot *duel.SpectateSnapshot
		snapshot, err = h.manager.JoinSpectate(ctx, msg.RoomID, client.UserID, client.ConnID)
		if err == nil {
			h.hub.BindRoom(client, msg.RoomID)
			h.hub.SendTo(client, duel.Event{
				Type:    "spectate_snapshot",
				RoomID:  msg.RoomID,
				Payload: snapshot,
			})
		}

	case "spectate_leave":
		err = h.manager.LeaveSpectate(ctx, client.ConnID)

	default:
		h.sendError(client, msg.RoomID, duel.CodeInvalidState, "不支援的訊息類型")
		return
	}

	if err != nil {
		h.sendError(client, msg.RoomID, duel.ErrorCode(err), err.Error())
	}
}

func (h *WebSocketHandler) sendError(client *service.Client, roomID, code, message string) {
	h.hub.SendTo(client, duel.Event{
		Type:   duel.EventError,
		RoomID: roomID,
		Payload: duel.ErrorPayload{
			Code:    code,
			Message: message,
		},
	})
}
