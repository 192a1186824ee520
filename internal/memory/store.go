package memory

import "sync"

// Chat roles used throughout the pipeline.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message in a conversation, tagged with its speaker role.
// Immutable once appended.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Store keeps a bounded, per-sender conversation history in process memory.
// There is no persistence: a restart wipes all history.
type Store interface {
	// History returns a snapshot of the sender's turns, oldest first.
	// The returned slice is a copy; later appends do not mutate it.
	History(senderID string) []Turn
	// Append adds one turn and truncates the oldest entries so the
	// history never exceeds 2*maxHistory turns.
	Append(senderID, role, content string)
}

type conversation struct {
	mu    sync.Mutex
	turns []Turn
}

// InMemoryStore implements Store with a per-sender mutex so concurrent
// messages from different senders never block each other, while two
// messages from the same sender cannot interleave appends.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
	maxHistory    int
}

// NewInMemoryStore creates a store retaining at most maxHistory
// user/assistant pairs per sender. Non-positive caps are clamped to 1.
func NewInMemoryStore(maxHistory int) *InMemoryStore {
	if maxHistory <= 0 {
		maxHistory = 1
	}
	return &InMemoryStore{
		conversations: make(map[string]*conversation),
		maxHistory:    maxHistory,
	}
}

var _ Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) History(senderID string) []Turn {
	s.mu.RLock()
	conv, ok := s.conversations[senderID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()
	snapshot := make([]Turn, len(conv.turns))
	copy(snapshot, conv.turns)
	return snapshot
}

func (s *InMemoryStore) Append(senderID, role, content string) {
	conv := s.conversation(senderID)

	conv.mu.Lock()
	defer conv.mu.Unlock()
	conv.turns = append(conv.turns, Turn{Role: role, Content: content})
	if limit := 2 * s.maxHistory; len(conv.turns) > limit {
		// FIFO truncation: drop the oldest entries first.
		conv.turns = append(conv.turns[:0:0], conv.turns[len(conv.turns)-limit:]...)
	}
}

// conversation returns the sender's entry, creating it lazily on first use.
func (s *InMemoryStore) conversation(senderID string) *conversation {
	s.mu.RLock()
	conv, ok := s.conversations[senderID]
	s.mu.RUnlock()
	if ok {
		return conv
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok = s.conversations[senderID]; ok {
		return conv
	}
	conv = &conversation{}
	s.conversations[senderID] = conv
	return conv
}
