package routes

import (
	"github.com/gin-gonic/gin"

	"chatrelay/internal/handlers"
	"chatrelay/internal/middleware"
	"chatrelay/internal/services"
)

func SetupRoutes(
	r *gin.Engine,
	authHandler *handlers.AuthHandler,
	verifyHandler *handlers.VerifyHandler,
	conversationHandler *handlers.ConversationHandler,
	userService services.UserService,
) *gin.Engine {

	// ---- public
	r.POST("/login", authHandler.Login)
	r.POST("/refresh", authHandler.RefreshToken)
	r.POST("/register", authHandler.Register)
	r.POST("/verify/request", verifyHandler.RequestCode)
	r.POST("/verify/confirm", verifyHandler.ConfirmCode)

	// ---- protected
	r.Use(middleware.AuthMiddleware())

	// CONVERSATIONS (только с подтверждённым email)
	conversations := r.Group("/conversations", middleware.RequireVerified(userService))
	{
		conversations.POST("/", conversationHandler.Create)
		conversations.GET("/", conversationHandler.List)
		conversations.GET("/:id/messages", conversationHandler.ListMessages)
		conversations.POST("/:id/messages", conversationHandler.SendMessage)
		conversations.GET("/:id/export", conversationHandler.Export)
	}

	return r
}
