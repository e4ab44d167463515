package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quiz_duel/internal/duel"
	"quiz_duel/internal/pubsub"
)

// Client 代表一條 WebSocket 連線
type Client struct {
	Conn     *websocket.Conn
	ConnID   string
	UserID   uint
	SendChan chan []byte // 出站訊息通道，寫入端是 Hub

	roomID string // 目前綁定的房間頻道，由 Hub 的鎖保護
}

// Hub 管理本行程上的所有 WebSocket 連線
//
// 事件不直接在行程內派發：核心把事件發佈到用戶或房間的邏輯頻道，
// Hub 為本地連線訂閱這些頻道再轉送。同一套路徑同時涵蓋
// 單行程（LocalPubSub）與多行程（RedisPubSub）部署
type Hub struct {
	bus    pubsub.PubSub
	logger *zap.Logger

	mu          sync.Mutex
	userClients map[uint]map[*Client]bool
	roomClients map[string]map[*Client]bool
	userSubs    map[uint]pubsub.Subscription
	roomSubs    map[string]pubsub.Subscription
}

func NewHub(bus pubsub.PubSub, logger *zap.Logger) *Hub {
	return &Hub{
		bus:         bus,
		logger:      logger,
		userClients: make(map[uint]map[*Client]bool),
		roomClients: make(map[string]map[*Client]bool),
		userSubs:    make(map[uint]pubsub.Subscription),
		roomSubs:    make(map[string]pubsub.Subscription),
	}
}

// NewClient 為一條已升級的連線建立客戶端
func (h *Hub) NewClient(conn *websocket.Conn, userID uint) *Client {
	return &Client{
		Conn:     conn,
		ConnID:   uuid.NewString(),
		UserID:   userID,
		SendChan: make(chan []byte, 256),
	}
}

// Serve 接手一條連線，阻塞直到連線結束
// onMessage 處理每一則入站訊息；回傳後連線的所有本地資源都已釋放
func (h *Hub) Serve(client *Client, onMessage func(*Client, []byte)) {
	h.register(client)
	defer func() {
		h.unregister(client)
		client.Conn.Close()
	}()

	go h.writePump(client)
	h.readPump(client, onMessage)
}

// SendTo 直接回覆單一連線，用於同步回報操作結果與錯誤
func (h *Hub) SendTo(client *Client, event duel.Event) {
	encoded, err := event.Encode()
	if err != nil {
		h.logger.Error("事件序列化失敗", zap.String("type", event.Type), zap.Error(err))
		return
	}
	select {
	case client.SendChan <- encoded:
	default:
		// 出站通道積壓，斷開讓客戶端重連
		client.Conn.Close()
	}
}

// BindRoom 把連線綁到房間頻道，開始接收該房間的廣播
func (h *Hub) BindRoom(client *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bindRoomLocked(client, roomID)
}

func (h *Hub) bindRoomLocked(client *Client, roomID string) {
	if client.roomID == roomID {
		return
	}
	h.unbindRoomLocked(client)
	client.roomID = roomID

	if h.roomClients[roomID] == nil {
		h.roomClients[roomID] = make(map[*Client]bool)
	}
	h.roomClients[roomID][client] = true

	// 本行程第一條綁進這個房間的連線負責建立訂閱
	if _, ok := h.roomSubs[roomID]; !ok {
		sub, err := h.bus.Subscribe(context.Background(), duel.ChannelRoom(roomID))
		if err != nil {
			h.logger.Error("訂閱房間頻道失敗", zap.String("room_id", roomID), zap.Error(err))
			return
		}
		h.roomSubs[roomID] = sub
		go h.pumpRoom(roomID, sub)
	}
}

func (h *Hub) unbindRoomLocked(client *Client) {
	roomID := client.roomID
	if roomID == "" {
		return
	}
	client.roomID = ""

	clients := h.roomClients[roomID]
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.roomClients, roomID)
		if sub, ok := h.roomSubs[roomID]; ok {
			sub.Close()
			delete(h.roomSubs, roomID)
		}
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.userClients[client.UserID] == nil {
		h.userClients[client.UserID] = make(map[*Client]bool)
	}
	h.userClients[client.UserID][client] = true

	if _, ok := h.userSubs[client.UserID]; !ok {
		sub, err := h.bus.Subscribe(context.Background(), duel.ChannelUser(client.UserID))
		if err != nil {
			h.logger.Error("訂閱用戶頻道失敗", zap.Uint("user_id", client.UserID), zap.Error(err))
			return
		}
		h.userSubs[client.UserID] = sub
		go h.pumpUser(client.UserID, sub)
	}
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.userClients[client.UserID]
	if !clients[client] {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.userClients, client.UserID)
		if sub, ok := h.userSubs[client.UserID]; ok {
			sub.Close()
			delete(h.userSubs, client.UserID)
		}
	}
	h.unbindRoomLocked(client)
	close(client.SendChan)
}

// eventHeader 只解事件外殼，決定是否需要自動綁定房間頻道
type eventHeader struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// pumpUser 把用戶頻道的事件轉送給該用戶的本地連線
// 開賽與再戰事件帶有房間代碼，收到時順手把連線綁進房間頻道，
// 這樣連線掛在別的行程上的玩家也能接上房間廣播
func (h *Hub) pumpUser(userID uint, sub pubsub.Subscription) {
	for message := range sub.Messages() {
		var header eventHeader
		if err := json.Unmarshal(message, &header); err != nil {
			h.logger.Warn("事件解析失敗", zap.Error(err))
			continue
		}

		h.mu.Lock()
		if header.RoomID != "" && shouldBindRoom(header.Type) {
			for client := range h.userClients[userID] {
				h.bindRoomLocked(client, header.RoomID)
			}
		}
		h.deliverLocked(h.userClients[userID], message)
		h.mu.Unlock()
	}
}

// pumpRoom 把房間頻道的事件轉送給綁定中的本地連線
func (h *Hub) pumpRoom(roomID string, sub pubsub.Subscription) {
	for message := range sub.Messages() {
		h.mu.Lock()
		h.deliverLocked(h.roomClients[roomID], message)
		h.mu.Unlock()
	}
}

func shouldBindRoom(eventType string) bool {
	switch eventType {
	case duel.EventRoomCreated, duel.EventSessionStarted, duel.EventRematchStarted:
		return true
	}
	return false
}

func (h *Hub) deliverLocked(clients map[*Client]bool, message []byte) {
	for client := range clients {
		select {
		case client.SendChan <- message:
		default:
			// 客戶端消化不及，斷開連線由讀取端走正常清理
			client.Conn.Close()
		}
	}
}

// readPump 持續讀取入站訊息並交給 onMessage 處理
func (h *Hub) readPump(client *Client, onMessage func(*Client, []byte)) {
	client.Conn.SetReadLimit(4096)
	client.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket 非預期關閉", zap.Error(err))
			}
			break
		}
		onMessage(client, message)
	}
}

// writePump 處理出站訊息與心跳
func (h *Hub) writePump(client *Client) {
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-client.SendChan:
			client.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
