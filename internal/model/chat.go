package model

import "time"

// Chat types. The type is fixed at creation and decides whether the
// orchestration flow calls the LLM or returns retrieved context verbatim.
const (
	ChatWithLLM = "with_llm"
	ChatOnlyRAG = "only_rag"
)

// Message roles used by the chat flow.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Chat represents a conversation thread owned by exactly one user.
// FirstMessage and LastMessageAt are derived from the loaded message list,
// not stored columns.
type Chat struct {
	ID            int64      `json:"id"`
	UserID        int64      `json:"user_id"`
	Type          string     `json:"type"`
	FirstMessage  string     `json:"first_message"`
	LastMessageAt *time.Time `json:"last_message_timestamp"`
}

// Message represents a single utterance within a chat. Immutable once
// created; the timestamp is assigned by the store at insertion time.
type Message struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chat_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageData is the role/content pair exchanged with the LLM service,
// stripped of persistence metadata.
type MessageData struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CreateChatRequest represents a chat creation request.
type CreateChatRequest struct {
	Type string `json:"type"`
}

// ConverseRequest represents one user turn sent to the chat endpoint.
type ConverseRequest struct {
	Message string `json:"message"`
}

// ConverseResponse carries the assistant reply content.
type ConverseResponse struct {
	Content string `json:"content"`
}
