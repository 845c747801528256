package memory

import (
	"sync"
	"time"

	"github.com/w-h-a/docqa/generator"
)

type Turn struct {
	Question   string
	Answer     string
	WebResults string
	CreatedAt  time.Time
}

type Message = generator.Message

// Memory is the ordered dialogue of one session. It is safe for concurrent use.
type Memory struct {
	options Options
	turns   []Turn
	pending *string
	mtx     sync.RWMutex
}

func (m *Memory) Append(turn Turn) {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.turns = append(m.turns, turn)
	m.pending = nil
}

// AppendMessage records one side of a turn. A user message waits for the next
// assistant message; an assistant message without a pending question is
// recorded with an empty question.
func (m *Memory) AppendMessage(role, content string) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	switch role {
	case generator.RoleUser:
		m.pending = &content
	case generator.RoleAssistant:
		var question string
		if m.pending != nil {
			question = *m.pending
		}
		m.turns = append(m.turns, Turn{
			Question:  question,
			Answer:    content,
			CreatedAt: time.Now().UTC(),
		})
		m.pending = nil
	}
}

func (m *Memory) History() []Turn {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	out := make([]Turn, len(m.turns))
	copy(out, m.turns)

	return out
}

// Messages returns the role-tagged view of the most recent turns, bounded by
// the window when one is set.
func (m *Memory) Messages() []Message {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	turns := m.turns
	if m.options.Window > 0 && len(turns) > m.options.Window {
		turns = turns[len(turns)-m.options.Window:]
	}

	msgs := make([]Message, 0, 2*len(turns))
	for _, t := range turns {
		if len(t.Question) > 0 {
			msgs = append(msgs, Message{Role: generator.RoleUser, Content: t.Question})
		}
		msgs = append(msgs, Message{Role: generator.RoleAssistant, Content: t.Answer})
	}

	return msgs
}

func (m *Memory) Len() int {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return len(m.turns)
}

func (m *Memory) Clear() {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.turns = nil
	m.pending = nil
}

func New(opts ...Option) *Memory {
	options := NewOptions(opts...)

	return &Memory{
		options: options,
	}
}
