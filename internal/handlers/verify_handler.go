package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/services"
)

type VerifyHandler struct {
	OTP *services.OTPService
}

func NewVerifyHandler(s *services.OTPService) *VerifyHandler { return &VerifyHandler{OTP: s} }

// @Summary      Запрос кода подтверждения
// @Tags         Verify
// @Router       /verify/request [post]
func (h *VerifyHandler) RequestCode(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.OTP.RequestCode(req.Email, c.ClientIP())
	if err != nil {
		var rl *services.RateLimitedError
		switch {
		case errors.As(err, &rl):
			resp := gin.H{"error": "too many requests, try later", "reason": rl.Reason}
			if rl.RetryAfterSeconds > 0 {
				resp["retry_after"] = rl.RetryAfterSeconds
			}
			c.JSON(http.StatusTooManyRequests, resp)
		case errors.Is(err, services.ErrUnknownDestination):
			// не различаем "нет пользователя" и прочие причины
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to send code"})
		case errors.Is(err, services.ErrSendFailed):
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to send verification email"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to request code"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Code sent"})
}

// @Summary      Подтверждение кода
// @Tags         Verify
// @Router       /verify/confirm [post]
func (h *VerifyHandler) ConfirmCode(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
		Code  string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.OTP.VerifyCode(req.Email, req.Code); err != nil {
		if errors.Is(err, services.ErrCodeInvalidOrExpired) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired code"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "confirmation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Email verified"})
}
