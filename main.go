package main

import (
	"context"
	"log"

	"quizdeck/config"
	"quizdeck/handlers"
	"quizdeck/logger"
	"quizdeck/models"
	"quizdeck/routes"
	"quizdeck/services"
	"quizdeck/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zapLog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zapLog.Sync()

	db, err := config.InitDB(cfg.DB)
	if err != nil {
		zapLog.Fatal("failed to connect database", zap.Error(err))
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Quiz{},
		&models.Question{},
		&models.QuizSession{},
		&models.Participant{},
		&models.QuestionResponse{},
	)
	if err != nil {
		zapLog.Fatal("failed to migrate database", zap.Error(err))
	}

	rdb := config.InitRedis(cfg.Redis)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		zapLog.Fatal("failed to connect redis", zap.Error(err))
	}

	sessionStore := store.NewGormStore(db, rdb, zapLog)
	go sessionStore.Listen(context.Background())

	authService := services.NewAuthService(db, cfg.JWT.Secret, cfg.JWT.TokenTTL)
	quizService := services.NewQuizService(db)
	sessionService := services.NewSessionService(sessionStore, zapLog)

	hub := services.NewHub(sessionService, zapLog)
	go hub.Run()

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())

	routes.Setup(router,
		authService,
		handlers.NewAuthHandler(authService),
		handlers.NewQuizHandler(quizService),
		handlers.NewSessionHandler(sessionService, hub, zapLog),
		cfg.CORS.AllowedOrigin,
	)

	zapLog.Info("server starting", zap.String("port", cfg.Server.Port))
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		zapLog.Fatal("server exited", zap.Error(err))
	}
}
