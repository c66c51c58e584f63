package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/llm"
	"chatrelay/internal/models"
)

type fakeConversationRepo struct {
	conversations map[uuid.UUID]*models.Conversation
	turns         []*models.Turn
	nextID        int64
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{conversations: map[uuid.UUID]*models.Conversation{}}
}

func (f *fakeConversationRepo) CreateConversation(userID int, title string) (*models.Conversation, error) {
	conv := &models.Conversation{ID: uuid.New(), UserID: userID, Title: title, CreatedAt: time.Now()}
	f.conversations[conv.ID] = conv
	return conv, nil
}

func (f *fakeConversationRepo) GetConversation(id uuid.UUID) (*models.Conversation, error) {
	return f.conversations[id], nil
}

func (f *fakeConversationRepo) ListByUser(userID int) ([]*models.Conversation, error) {
	var out []*models.Conversation
	for _, c := range f.conversations {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeConversationRepo) CreateTurn(conversationID uuid.UUID, role, content string) (*models.Turn, error) {
	f.nextID++
	t := &models.Turn{
		ID:             f.nextID,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	f.turns = append(f.turns, t)
	return t, nil
}

func (f *fakeConversationRepo) ListTurns(conversationID uuid.UUID) ([]*models.Turn, error) {
	var out []*models.Turn
	for _, t := range f.turns {
		if t.ConversationID == conversationID {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeStream struct {
	fragments []string
	err       error // возвращается после фрагментов вместо io.EOF
	pos       int
	closed    bool
}

func (s *fakeStream) Recv() (string, error) {
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

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeLLM struct {
	stream   *fakeStream
	startErr error
	history  []llm.Message
}

func (f *fakeLLM) StreamChat(ctx context.Context, history []llm.Message) (llm.Stream, error) {
	f.history = history
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.stream, nil
}

func lastTurn(t *testing.T, repo *fakeConversationRepo) *models.Turn {
	t.Helper()
	require.NotEmpty(t, repo.turns)
	return repo.turns[len(repo.turns)-1]
}

func TestReplyStreamsAndPersists(t *testing.T) {
	repo := newFakeConversationRepo()
	conv, _ := repo.CreateConversation(1, "test")
	model := &fakeLLM{stream: &fakeStream{fragments: []string{"Hel", "lo", ", world"}}}
	svc := NewConversationService(repo, model)

	var sink bytes.Buffer
	require.NoError(t, svc.Reply(context.Background(), conv.ID, "hi", &sink))

	// клиент видит ровно конкатенацию фрагментов в порядке прихода
	assert.Equal(t, "Hello, world", sink.String())

	// и ровно она же сохранена одним assistant-ходом
	last := lastTurn(t, repo)
	assert.Equal(t, models.RoleAssistant, last.Role)
	assert.Equal(t, "Hello, world", last.Content)

	turns, _ := repo.ListTurns(conv.ID)
	require.Len(t, turns, 2)
	assert.Equal(t, models.RoleUser, turns[0].Role)
	assert.Equal(t, "hi", turns[0].Content)

	assert.True(t, model.stream.closed)
}

func TestReplyUserTurnPrecedesModelCall(t *testing.T) {
	repo := newFakeConversationRepo()
	conv, _ := repo.CreateConversation(1, "test")
	repo.CreateTurn(conv.ID, models.RoleUser, "earlier question")
	repo.CreateTurn(conv.ID, models.RoleAssistant, "earlier answer")
	model := &fakeLLM{stream: &fakeStream{}}
	svc := NewConversationService(repo, model)

	require.NoError(t, svc.Reply(context.Background(), conv.ID, "new question", io.Discard))

	// модель получает всю историю, включая только что записанный user-ход
	require.Len(t, model.history, 3)
	assert.Equal(t, llm.Message{Role: models.RoleUser, Content: "new question"}, model.history[2])
}

func TestReplyPartialOutputPersistedOnUpstreamError(t *testing.T) {
	repo := newFakeConversationRepo()
	conv, _ := repo.CreateConversation(1, "test")
	model := &fakeLLM{stream: &fakeStream{
		fragments: []string{"f1", "f2"},
		err:       errors.New("connection reset"),
	}}
	svc := NewConversationService(repo, model)

	var sink bytes.Buffer
	err := svc.Reply(context.Background(), conv.ID, "hi", &sink)
	assert.ErrorIs(t, err, ErrUpstream)

	// частичный вывод не откатывается
	assert.Equal(t, "f1f2", sink.String())
	last := lastTurn(t, repo)
	assert.Equal(t, models.RoleAssistant, last.Role)
	assert.Equal(t, "f1f2", last.Content)
}

func TestReplyEmptyStreamPersistsEmptyTurn(t *testing.T) {
	repo := newFakeConversationRepo()
	conv, _ := repo.CreateConversation(1, "test")
	model := &fakeLLM{stream: &fakeStream{}}
	svc := NewConversationService(repo, model)

	require.NoError(t, svc.Reply(context.Background(), conv.ID, "hi", io.Discard))

	// пустой assistant-ход — валидный наблюдаемый исход
	last := lastTurn(t, repo)
	assert.Equal(t, models.RoleAssistant, last.Role)
	assert.Equal(t, "", last.Content)
}

func TestReplyStreamStartFailureStillPersists(t *testing.T) {
	repo := newFakeConversationRepo()
	conv, _ := repo.CreateConversation(1, "test")
	model := &fakeLLM{startErr: errors.New("upstream 503")}
	svc := NewConversationService(repo, model)

	err := svc.Reply(context.Background(), conv.ID, "hi", io.Discard)
	assert.ErrorIs(t, err, ErrUpstream)

	last := lastTurn(t, repo)
	assert.Equal(t, models.RoleAssistant, last.Role)
	assert.Equal(t, "", last.Content)
}

// errAfterWriter имитирует обрыв клиента после первого фрагмента.
type errAfterWriter struct {
	accepted int
	writes   int
	buf      bytes.Buffer
}

func (w *errAfterWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.writes > w.accepted {
		return 0, errors.New("client disconnected")
	}
	return w.buf.Write(p)
}

func TestReplyClientDisconnectPersistsAccumulated(t *testing.T) {
	repo := newFakeConversationRepo()
	conv, _ := repo.CreateConversation(1, "test")
	model := &fakeLLM{stream: &fakeStream{fragments: []string{"f1", "f2", "f3"}}}
	svc := NewConversationService(repo, model)

	sink := &errAfterWriter{accepted: 1}
	require.NoError(t, svc.Reply(context.Background(), conv.ID, "hi", sink))

	// в накопитель попало только то, что реально ушло клиенту
	last := lastTurn(t, repo)
	assert.Equal(t, "f1", last.Content)
}

func TestReplyEnsureOwner(t *testing.T) {
	repo := newFakeConversationRepo()
	conv, _ := repo.CreateConversation(1, "mine")
	svc := NewConversationService(repo, &fakeLLM{stream: &fakeStream{}})

	assert.NoError(t, svc.EnsureOwner(conv.ID, 1))
	assert.ErrorIs(t, svc.EnsureOwner(conv.ID, 2), ErrNotConversationOwner)
	assert.ErrorIs(t, svc.EnsureOwner(uuid.New(), 1), ErrConversationNotFound)
}

// shortWriter принимает только первые limit байт каждой записи.
type shortWriter struct {
	limit int
	buf   bytes.Buffer
}

func (w *shortWriter) Write(p []byte) (int, error) {
	if len(p) > w.limit {
		n, _ := w.buf.Write(p[:w.limit])
		return n, errors.New("short write")
	}
	return w.buf.Write(p)
}

func TestCaptureWriterCapturesOnlyWritten(t *testing.T) {
	dst := &shortWriter{limit: 2}
	cw := newCaptureWriter(dst)

	n, err := cw.Write([]byte("hello"))
	assert.Error(t, err)
	assert.Equal(t, 2, n)

	// захвачено ровно то, что реально записано
	assert.Equal(t, "he", cw.String())
	assert.Equal(t, "he", dst.buf.String())
}
