package llm

import "context"

type Message struct {
	Role    string
	Content string
}

// Stream — ленивая конечная последовательность текстовых фрагментов.
// Recv возвращает io.EOF после последнего фрагмента; поток не перезапускается.
type Stream interface {
	Recv() (string, error)
	Close() error
}

type Client interface {
	StreamChat(ctx context.Context, history []Message) (Stream, error)
}
