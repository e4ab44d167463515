// Package api 處理 HTTP 請求路由和處理。
//
// 這個包包含了所有的 HTTP 處理器（handlers）。
// 它負責將 HTTP 請求轉換為適當的服務調用，並將結果轉換回 HTTP 響應，
// 也負責把 WebSocket 連線上的訊息分派給對戰核心。
package api
