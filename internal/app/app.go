package app

import (
	"database/sql"
	"fmt"
	"log"

	"chatrelay/internal/config"
	"chatrelay/internal/handlers"
	"chatrelay/internal/llm"
	"chatrelay/internal/middleware"
	"chatrelay/internal/pdf"
	"chatrelay/internal/repositories"
	"chatrelay/internal/routes"
	"chatrelay/internal/services"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
)

func Run() {
	cfg := config.LoadConfig()

	if cfg.JWT.Secret != "" {
		middleware.JWTKey = []byte(cfg.JWT.Secret)
	}

	// === DB ===
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("Ошибка подключения к БД: ", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Ошибка закрытия БД: %v", err)
		}
	}()

	// === Repos ===
	userRepo := repositories.NewUserRepository(db)
	verificationRepo := repositories.NewVerificationRepository(db)
	attemptRepo := repositories.NewSendAttemptRepository(db)
	conversationRepo := repositories.NewConversationRepository(db)

	// === Services ===
	authService := services.NewAuthService()
	emailService := services.NewEmailService(
		cfg.Email.SMTPHost,
		cfg.Email.SMTPPort,
		cfg.Email.SMTPUser,
		cfg.Email.SMTPPassword,
		cfg.Email.FromEmail,
	)

	userService := services.NewUserService(userRepo, authService)
	otpService := services.NewOTPService(verificationRepo, attemptRepo, userRepo, emailService)

	modelClient := llm.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model)
	conversationService := services.NewConversationService(conversationRepo, modelClient)

	pdfGen := pdf.NewTranscriptGenerator("chatrelay")

	// === Handlers ===
	authHandler := handlers.NewAuthHandler(userService, authService)
	verifyHandler := handlers.NewVerifyHandler(otpService)
	conversationHandler := handlers.NewConversationHandler(conversationService, pdfGen)

	// === Gin ===
	router := gin.Default()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/healthz", func(c *gin.Context) { c.String(200, "ok") })

	routes.SetupRoutes(router, authHandler, verifyHandler, conversationHandler, userService)

	// === Run ===
	listenAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Сервер запущен на %s", listenAddr)
	if err := router.Run(listenAddr); err != nil {
		log.Fatal("Ошибка запуска сервера: ", err)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
