package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"

	"chatrelay/internal/llm"
	"chatrelay/internal/models"
	"chatrelay/internal/repositories"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotConversationOwner = errors.New("user does not own this conversation")
	ErrUpstream             = errors.New("model stream failed")
)

// ConversationService — диалоги и стриминговый ответ модели.
type ConversationService struct {
	repo  repositories.ConversationRepository
	model llm.Client
}

func NewConversationService(repo repositories.ConversationRepository, model llm.Client) *ConversationService {
	return &ConversationService{repo: repo, model: model}
}

func (s *ConversationService) CreateConversation(userID int, title string) (*models.Conversation, error) {
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	return s.repo.CreateConversation(userID, title)
}

func (s *ConversationService) ListConversations(userID int) ([]*models.Conversation, error) {
	return s.repo.ListByUser(userID)
}

// EnsureOwner — проверка владения до начала стриминга, чтобы хендлер успел
// отдать нормальный статус до первого байта тела.
func (s *ConversationService) EnsureOwner(conversationID uuid.UUID, userID int) error {
	conv, err := s.repo.GetConversation(conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return ErrConversationNotFound
	}
	if conv.UserID != userID {
		return ErrNotConversationOwner
	}
	return nil
}

func (s *ConversationService) ListTurns(conversationID uuid.UUID, userID int) ([]*models.Turn, error) {
	if err := s.EnsureOwner(conversationID, userID); err != nil {
		return nil, err
	}
	return s.repo.ListTurns(conversationID)
}

// Reply — добавляет user-ход, скармливает модели всю историю и ретранслирует
// фрагменты в sink по мере прихода. Накопленный ответ сохраняется assistant-ходом
// ровно один раз после конца потока — даже пустой, даже после обрыва: частичный
// вывод не откатывается. Владение диалогом проверяет вызывающая сторона
// (EnsureOwner).
func (s *ConversationService) Reply(ctx context.Context, conversationID uuid.UUID, content string, sink io.Writer) error {
	if content == "" {
		return fmt.Errorf("message content is required")
	}

	// user-ход пишется синхронно до вызова модели: параллельное чтение истории
	// всегда видит собственное последнее сообщение
	if _, err := s.repo.CreateTurn(conversationID, models.RoleUser, content); err != nil {
		return err
	}

	turns, err := s.repo.ListTurns(conversationID)
	if err != nil {
		return err
	}
	history := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		history = append(history, llm.Message{Role: t.Role, Content: t.Content})
	}

	cw := newCaptureWriter(sink)
	var streamErr error

	stream, err := s.model.StreamChat(ctx, history)
	if err != nil {
		streamErr = err
	} else {
		for {
			fragment, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				streamErr = err
				break
			}
			if fragment == "" {
				continue
			}
			if _, err := cw.Write([]byte(fragment)); err != nil {
				// клиент отвалился — поток считается законченным,
				// накопленное всё равно сохраняем
				log.Printf("[chat][reply] sink write failed conv=%s: %v", conversationID, err)
				break
			}
		}
		_ = stream.Close()
	}

	// сохранение безусловное: и при пустом накопителе, и после ошибки апстрима
	if _, err := s.repo.CreateTurn(conversationID, models.RoleAssistant, cw.String()); err != nil {
		log.Printf("[chat][reply] persist assistant turn failed conv=%s: %v", conversationID, err)
		if streamErr == nil {
			return err
		}
	}

	if streamErr != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, streamErr)
	}
	return nil
}
