package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatrelay/internal/pdf"
	"chatrelay/internal/services"
)

type ConversationHandler struct {
	service *services.ConversationService
	pdfGen  pdf.Generator
}

type createConversationRequest struct {
	Title string `json:"title" binding:"required"`
}

type sendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

func NewConversationHandler(service *services.ConversationService, pdfGen pdf.Generator) *ConversationHandler {
	return &ConversationHandler{service: service, pdfGen: pdfGen}
}

func (h *ConversationHandler) Create(c *gin.Context) {
	userID := getUserID(c)
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	conv, err := h.service.CreateConversation(userID, req.Title)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (h *ConversationHandler) List(c *gin.Context) {
	userID := getUserID(c)
	conversations, err := h.service.ListConversations(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, conversations)
}

func (h *ConversationHandler) ListMessages(c *gin.Context) {
	userID := getUserID(c)
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}
	turns, err := h.service.ListTurns(convID, userID)
	if err != nil {
		h.writeOwnershipError(c, err)
		return
	}
	c.JSON(http.StatusOK, turns)
}

// SendMessage — ответ модели уходит клиенту chunked-текстом по мере генерации;
// заголовки ошибок возможны только до первого фрагмента.
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	userID := getUserID(c)
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.EnsureOwner(convID, userID); err != nil {
		h.writeOwnershipError(c, err)
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	// статус уходит клиенту вместе с первым фрагментом; до него ещё можно
	// отдать нормальный код ошибки
	sink := &flushWriter{w: c.Writer}
	if err := h.service.Reply(c.Request.Context(), convID, req.Content, sink); err != nil {
		if sink.written == 0 {
			status := http.StatusInternalServerError
			if errors.Is(err, services.ErrUpstream) {
				status = http.StatusBadGateway
			}
			c.Header("Content-Type", "application/json; charset=utf-8")
			c.JSON(status, gin.H{"error": "failed to stream reply"})
			return
		}
		// статус уже ушёл; частичный ответ сохранён сервисом
		log.Printf("[chat][send] conv=%s: %v", convID, err)
	}
}

// @Summary      Экспорт стенограммы диалога в PDF
// @Tags         Conversations
// @Produce      application/pdf
// @Router       /conversations/{id}/export [get]
func (h *ConversationHandler) Export(c *gin.Context) {
	userID := getUserID(c)
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}
	turns, err := h.service.ListTurns(convID, userID)
	if err != nil {
		h.writeOwnershipError(c, err)
		return
	}

	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", `attachment; filename="transcript_`+convID.String()+`.pdf"`)
	if err := h.pdfGen.WriteTranscript(c.Writer, convID.String(), turns); err != nil {
		log.Printf("[chat][export] conv=%s: %v", convID, err)
	}
}

func (h *ConversationHandler) writeOwnershipError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
	case errors.Is(err, services.ErrNotConversationOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "not the conversation owner"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// flushWriter — проталкивает каждый фрагмент клиенту сразу, не дожидаясь
// закрытия тела. Первая запись коммитит статус 200, поэтому счётчик written
// говорит, можно ли ещё менять код ответа.
type flushWriter struct {
	w       gin.ResponseWriter
	written int
}

func (f *flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	f.written += n
	if err == nil {
		f.w.Flush()
	}
	return n, err
}
