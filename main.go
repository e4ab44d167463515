package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"quiz_duel/internal/api"
	"quiz_duel/internal/config"
	"quiz_duel/internal/models"
	"quiz_duel/internal/pubsub"
	"quiz_duel/internal/repository"
	"quiz_duel/internal/service"
	"quiz_duel/internal/storage"
	"quiz_duel/internal/store"
)

func main() {
	// 載入應用程式配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 初始化資料庫連接
	db, err := storage.NewPostgresDB(cfg.DB.Host, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.Port)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// 自動遷移資料庫結構
	if err := db.AutoMigrate(&models.User{}, &models.Question{}, &models.Duel{}, &models.Notification{}); err != nil {
		logger.Fatal("Failed to auto migrate database", zap.Error(err))
	}

	// 選擇共享狀態儲存與廣播實作：
	// 設定了 Redis 就走多行程模式，否則退回行程內記憶體的單機模式
	var st store.Store
	var bus pubsub.PubSub
	if cfg.Redis.Addr != "" {
		client, err := storage.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		st = store.NewRedisStore(client)
		bus = pubsub.NewRedisPubSub(client)
		logger.Info("共享狀態儲存使用 Redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		st = store.NewLocalStore()
		bus = pubsub.NewLocalPubSub()
		logger.Warn("未設定 Redis，改用行程內記憶體儲存（多行程部署下狀態不共享）")
	}
	defer st.Close()
	defer bus.Close()

	// 初始化 repositories 與 services
	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, st, bus, clockwork.NewRealClock(), logger)

	// 設置 Gin 路由
	r := gin.Default()
	api.SetupRoutes(r, services)

	// 啟動伺服器
	if err := r.Run(cfg.Server.Address); err != nil {
		logger.Fatal("Failed to run server", zap.Error(err))
	}
}
