package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quiz_duel/internal/api/handlers"
	"quiz_duel/internal/middleware"
	"quiz_duel/internal/service"
)

func SetupRoutes(r *gin.Engine, services *service.Services) {
	// 初始化 handlers
	authHandler := handlers.NewAuthHandler(services.User)
	duelHandler := handlers.NewDuelHandler(services.Duel, services.Duels)
	wsHandler := handlers.NewWebSocketHandler(services.Hub, services.Duel)

	// API 路由群組
	api := r.Group("/api")

	// 處理 404 錯誤
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "找不到該路徑",
		})
	})

	// 公開路由
	{
		// 用戶認證相關
		api.POST("/register", authHandler.Register)
		api.POST("/login", authHandler.Login)

		// 基本的健康檢查
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status": "ok",
			})
		})
	}

	// 需要驗證的路由
	authorized := api.Group("/")
	authorized.Use(middleware.AuthMiddleware())
	{
		// 對戰挑戰與歷史
		duels := authorized.Group("/duels")
		{
			duels.POST("", duelHandler.CreateChallenge) // 發起直接邀請
			duels.GET("", duelHandler.ListDuels)        // 查詢自己的對戰歷史
			duels.GET("/:id", duelHandler.GetDuel)      // 查詢單筆對戰紀錄
		}

		// 對戰房間
		rooms := authorized.Group("/rooms")
		{
			rooms.POST("", duelHandler.CreateRoom) // 建立代碼制房間
			rooms.GET("/:id", duelHandler.GetRoom) // 查詢房間狀態
		}

		// WebSocket 連接點：建立後的所有即時互動都走這條連線
		authorized.GET("/ws", wsHandler.HandleWebSocket)
	}
}
