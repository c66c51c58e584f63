package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/llm"
	"chatrelay/internal/models"
	"chatrelay/internal/pdf"
	"chatrelay/internal/services"
)

type memConversationRepo struct {
	conversations map[uuid.UUID]*models.Conversation
	turns         []*models.Turn
	nextID        int64
}

func newMemConversationRepo() *memConversationRepo {
	return &memConversationRepo{conversations: map[uuid.UUID]*models.Conversation{}}
}

func (f *memConversationRepo) CreateConversation(userID int, title string) (*models.Conversation, error) {
	conv := &models.Conversation{ID: uuid.New(), UserID: userID, Title: title, CreatedAt: time.Now()}
	f.conversations[conv.ID] = conv
	return conv, nil
}

func (f *memConversationRepo) GetConversation(id uuid.UUID) (*models.Conversation, error) {
	return f.conversations[id], nil
}

func (f *memConversationRepo) ListByUser(userID int) ([]*models.Conversation, error) {
	var out []*models.Conversation
	for _, c := range f.conversations {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *memConversationRepo) CreateTurn(conversationID uuid.UUID, role, content string) (*models.Turn, error) {
	f.nextID++
	t := &models.Turn{ID: f.nextID, ConversationID: conversationID, Role: role, Content: content, CreatedAt: time.Now()}
	f.turns = append(f.turns, t)
	return t, nil
}

func (f *memConversationRepo) ListTurns(conversationID uuid.UUID) ([]*models.Turn, error) {
	var out []*models.Turn
	for _, t := range f.turns {
		if t.ConversationID == conversationID {
			out = append(out, t)
		}
	}
	return out, nil
}

type scriptedStream struct {
	fragments []string
	err       error // после фрагментов вместо io.EOF
	pos       int
}

func (s *scriptedStream) Recv() (string, error) {
	if s.pos < len(s.fragments) {
		frag := s.fragments[s.pos]
		s.pos++
		return frag, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *scriptedStream) Close() error { return nil }

type scriptedLLM struct {
	fragments []string
	streamErr error // после фрагментов
	startErr  error // до первого фрагмента
}

func (f *scriptedLLM) StreamChat(ctx context.Context, history []llm.Message) (llm.Stream, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &scriptedStream{fragments: f.fragments, err: f.streamErr}, nil
}

func newChatRouter(repo *memConversationRepo, model llm.Client, userID int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := services.NewConversationService(repo, model)
	h := NewConversationHandler(svc, pdf.NewTranscriptGenerator("test"))

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("user_id", userID) })
	r.POST("/conversations/:id/messages", h.SendMessage)
	r.GET("/conversations/:id/messages", h.ListMessages)
	r.GET("/conversations/:id/export", h.Export)
	return r
}

func TestSendMessageStreamsBody(t *testing.T) {
	repo := newMemConversationRepo()
	conv, _ := repo.CreateConversation(7, "test")
	r := newChatRouter(repo, &scriptedLLM{fragments: []string{"one ", "two ", "three"}}, 7)

	body := bytes.NewBufferString(`{"content":"count to three"}`)
	req := httptest.NewRequest(http.MethodPost, "/conversations/"+conv.ID.String()+"/messages", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Equal(t, "one two three", w.Body.String())

	// стрим сохранён одним assistant-ходом
	turns, _ := repo.ListTurns(conv.ID)
	require.Len(t, turns, 2)
	assert.Equal(t, models.RoleAssistant, turns[1].Role)
	assert.Equal(t, "one two three", turns[1].Content)
}

func TestSendMessageProviderDownBeforeFirstFragment(t *testing.T) {
	repo := newMemConversationRepo()
	conv, _ := repo.CreateConversation(7, "test")
	r := newChatRouter(repo, &scriptedLLM{startErr: errors.New("upstream 503")}, 7)

	body := bytes.NewBufferString(`{"content":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/conversations/"+conv.ID.String()+"/messages", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	// ни одного фрагмента не ушло — отказ провайдера виден клиенту как 502
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.Contains(t, w.Body.String(), "error")

	// пустой assistant-ход всё равно сохранён
	turns, _ := repo.ListTurns(conv.ID)
	require.Len(t, turns, 2)
	assert.Equal(t, models.RoleAssistant, turns[1].Role)
	assert.Equal(t, "", turns[1].Content)
}

func TestSendMessageMidStreamFailureKeepsPartialBody(t *testing.T) {
	repo := newMemConversationRepo()
	conv, _ := repo.CreateConversation(7, "test")
	r := newChatRouter(repo, &scriptedLLM{
		fragments: []string{"f1", "f2"},
		streamErr: errors.New("connection reset"),
	}, 7)

	body := bytes.NewBufferString(`{"content":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/conversations/"+conv.ID.String()+"/messages", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	// статус уже закоммичен первым фрагментом; частичный вывод не теряется
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "f1f2", w.Body.String())

	turns, _ := repo.ListTurns(conv.ID)
	require.Len(t, turns, 2)
	assert.Equal(t, "f1f2", turns[1].Content)
}

func TestSendMessageOwnership(t *testing.T) {
	repo := newMemConversationRepo()
	conv, _ := repo.CreateConversation(7, "test")
	r := newChatRouter(repo, &scriptedLLM{}, 8) // чужой пользователь

	body := bytes.NewBufferString(`{"content":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/conversations/"+conv.ID.String()+"/messages", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	// ни user-ход, ни assistant-ход не записаны
	assert.Empty(t, repo.turns)
}

func TestSendMessageUnknownConversation(t *testing.T) {
	repo := newMemConversationRepo()
	r := newChatRouter(repo, &scriptedLLM{}, 7)

	body := bytes.NewBufferString(`{"content":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/conversations/"+uuid.NewString()+"/messages", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSendMessageBadID(t *testing.T) {
	r := newChatRouter(newMemConversationRepo(), &scriptedLLM{}, 7)

	body := bytes.NewBufferString(`{"content":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/conversations/not-a-uuid/messages", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportTranscriptPDF(t *testing.T) {
	repo := newMemConversationRepo()
	conv, _ := repo.CreateConversation(7, "test")
	repo.CreateTurn(conv.ID, models.RoleUser, "question")
	repo.CreateTurn(conv.ID, models.RoleAssistant, "answer")
	r := newChatRouter(repo, &scriptedLLM{}, 7)

	req := httptest.NewRequest(http.MethodGet, "/conversations/"+conv.ID.String()+"/export", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
}
