package repositories

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"chatrelay/internal/models"
)

type ConversationRepository interface {
	CreateConversation(userID int, title string) (*models.Conversation, error)
	GetConversation(id uuid.UUID) (*models.Conversation, error)
	ListByUser(userID int) ([]*models.Conversation, error)
	CreateTurn(conversationID uuid.UUID, role, content string) (*models.Turn, error)
	ListTurns(conversationID uuid.UUID) ([]*models.Turn, error)
}

type conversationRepository struct {
	DB *sql.DB
}

func NewConversationRepository(db *sql.DB) ConversationRepository {
	return &conversationRepository{DB: db}
}

func (r *conversationRepository) CreateConversation(userID int, title string) (*models.Conversation, error) {
	const q = `
		INSERT INTO conversations (id, user_id, title)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`
	conv := &models.Conversation{
		ID:     uuid.New(),
		UserID: userID,
		Title:  title,
	}
	if err := r.DB.QueryRow(q, conv.ID, userID, title).Scan(&conv.CreatedAt); err != nil {
		return nil, fmt.Errorf("conversation create: %w", err)
	}
	return conv, nil
}

func (r *conversationRepository) GetConversation(id uuid.UUID) (*models.Conversation, error) {
	const q = `
		SELECT id, user_id, title, created_at
		FROM conversations
		WHERE id = $1
	`
	row := r.DB.QueryRow(q, id)
	var conv models.Conversation
	if err := row.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("conversation get: %w", err)
	}
	return &conv, nil
}

func (r *conversationRepository) ListByUser(userID int) ([]*models.Conversation, error) {
	const q = `
		SELECT id, user_id, title, created_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.DB.Query(q, userID)
	if err != nil {
		return nil, fmt.Errorf("conversation list: %w", err)
	}
	defer rows.Close()

	var conversations []*models.Conversation
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation scan: %w", err)
		}
		conversations = append(conversations, &conv)
	}
	return conversations, rows.Err()
}

func (r *conversationRepository) CreateTurn(conversationID uuid.UUID, role, content string) (*models.Turn, error) {
	const q = `
		INSERT INTO turns (conversation_id, role, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	turn := &models.Turn{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}
	if err := r.DB.QueryRow(q, conversationID, role, content).Scan(&turn.ID, &turn.CreatedAt); err != nil {
		return nil, fmt.Errorf("turn create: %w", err)
	}
	return turn, nil
}

// ListTurns — полная история диалога в порядке создания; именно она
// уходит модели как контекст.
func (r *conversationRepository) ListTurns(conversationID uuid.UUID) ([]*models.Turn, error) {
	const q = `
		SELECT id, conversation_id, role, content, created_at
		FROM turns
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.DB.Query(q, conversationID)
	if err != nil {
		return nil, fmt.Errorf("turn list: %w", err)
	}
	defer rows.Close()

	var turns []*models.Turn
	for rows.Next() {
		var t models.Turn
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("turn scan: %w", err)
		}
		turns = append(turns, &t)
	}
	return turns, rows.Err()
}
