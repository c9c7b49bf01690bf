package service

import (
	"context"
	"errors"

	"github.com/chatledger/chatledger-go/internal/model"
	"github.com/chatledger/chatledger-go/internal/rag"
	"github.com/chatledger/chatledger-go/internal/repository"
)

var (
	ErrEmptyMessage      = errors.New("message must not be empty")
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrInvalidChatType   = errors.New("invalid chat type")
	ErrChatNotFound      = errors.New("chat not found")
	ErrNotChatOwner      = errors.New("chat belongs to another user")
)

// ChatStore is the persistence capability the chat service depends on.
type ChatStore interface {
	CreateChat(ctx context.Context, userID int64, chatType string) (model.Chat, error)
	GetChat(ctx context.Context, chatID int64) (model.Chat, error)
	DeleteChat(ctx context.Context, chatID, userID int64) error
	ListChats(ctx context.Context, userID int64) ([]model.Chat, error)
	AppendMessage(ctx context.Context, chatID, userID int64, data model.MessageData) error
	ListMessages(ctx context.Context, chatID, userID int64) ([]model.Message, error)
	AppendUserMessageAndDebit(ctx context.Context, chatID, userID int64, content string, cost float64) (bool, error)
}

// LLMClient is the slice of the gateway the orchestration flow needs.
type LLMClient interface {
	GetAnswer(ctx context.Context, history []model.MessageData) (model.MessageData, error)
	GetContext(ctx context.Context, history []model.MessageData, maxTokens int) ([]model.MessageData, error)
}

// ChatService handles chat threads and the balance-gated conversation flow.
type ChatService struct {
	chats     ChatStore
	ledger    LedgerStore
	retriever rag.Retriever
	llm       LLMClient

	nDocs       int
	maxTokens   int
	messageCost float64
}

// NewChatService creates a new ChatService.
func NewChatService(chats ChatStore, ledger LedgerStore, retriever rag.Retriever, llm LLMClient, nDocs, maxTokens int, messageCost float64) *ChatService {
	return &ChatService{
		chats:       chats,
		ledger:      ledger,
		retriever:   retriever,
		llm:         llm,
		nDocs:       nDocs,
		maxTokens:   maxTokens,
		messageCost: messageCost,
	}
}

// CreateChat creates a chat of the given type for the user.
func (s *ChatService) CreateChat(ctx context.Context, userID int64, chatType string) (model.Chat, error) {
	if chatType != model.ChatWithLLM && chatType != model.ChatOnlyRAG {
		return model.Chat{}, ErrInvalidChatType
	}
	return s.chats.CreateChat(ctx, userID, chatType)
}

// ListChats returns all chats owned by the user.
func (s *ChatService) ListChats(ctx context.Context, userID int64) ([]model.Chat, error) {
	return s.chats.ListChats(ctx, userID)
}

// DeleteChat removes a chat after the store verifies ownership.
func (s *ChatService) DeleteChat(ctx context.Context, chatID, userID int64) error {
	return translateChatErr(s.chats.DeleteChat(ctx, chatID, userID))
}

// Messages returns a chat's messages in insertion order, ownership-checked.
func (s *ChatService) Messages(ctx context.Context, chatID, userID int64) ([]model.Message, error) {
	messages, err := s.chats.ListMessages(ctx, chatID, userID)
	if err != nil {
		return nil, translateChatErr(err)
	}
	return messages, nil
}

// Converse runs one balance-gated turn of the conversation:
// reject blank input, debit the message cost and persist the user message
// atomically, obtain a reply (LLM-backed or retrieval-only depending on the
// chat type), persist it, and return its content. A gateway failure after
// the debit leaves the user message and the expense committed.
func (s *ChatService) Converse(ctx context.Context, chatID, userID int64, message string) (string, error) {
	if message == "" {
		return "", ErrEmptyMessage
	}

	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return "", err
	}
	if balance < s.messageCost {
		return "", ErrInsufficientFunds
	}

	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return "", translateChatErr(err)
	}

	// The balance re-check inside the store is what actually gates the
	// debit; the early check above only provides a fast path. Losing the
	// race here still cannot overdraw the account.
	ok, err := s.chats.AppendUserMessageAndDebit(ctx, chatID, userID, message, s.messageCost)
	if err != nil {
		return "", translateChatErr(err)
	}
	if !ok {
		return "", ErrInsufficientFunds
	}

	var reply model.MessageData
	if chat.Type == model.ChatWithLLM {
		reply, err = s.modelAnswer(ctx, chatID, userID, message)
	} else {
		reply, err = s.retrievalAnswer(ctx, message)
	}
	if err != nil {
		return "", err
	}

	if err := s.chats.AppendMessage(ctx, chatID, userID, reply); err != nil {
		return "", translateChatErr(err)
	}

	return reply.Content, nil
}

// modelAnswer builds the RAG-augmented prompt, appends it to the loaded
// history as a synthetic user turn, trims the history to the model's token
// budget, and asks the model for a reply.
func (s *ChatService) modelAnswer(ctx context.Context, chatID, userID int64, query string) (model.MessageData, error) {
	context, err := s.retriever.RelevantContext(ctx, query, s.nDocs)
	if err != nil {
		return model.MessageData{}, err
	}

	messages, err := s.chats.ListMessages(ctx, chatID, userID)
	if err != nil {
		return model.MessageData{}, translateChatErr(err)
	}

	history := make([]model.MessageData, 0, len(messages)+1)
	for _, m := range messages {
		history = append(history, model.MessageData{Role: m.Role, Content: m.Content})
	}
	history = append(history, model.MessageData{
		Role:    model.RoleUser,
		Content: rag.AugmentedPrompt(query, context),
	})

	trimmed, err := s.llm.GetContext(ctx, history, s.maxTokens)
	if err != nil {
		return model.MessageData{}, err
	}

	return s.llm.GetAnswer(ctx, trimmed)
}

// retrievalAnswer returns retrieved context verbatim as an assistant turn,
// with no LLM call.
func (s *ChatService) retrievalAnswer(ctx context.Context, query string) (model.MessageData, error) {
	context, err := s.retriever.RelevantContext(ctx, query, s.nDocs)
	if err != nil {
		return model.MessageData{}, err
	}
	return model.MessageData{Role: model.RoleAssistant, Content: context}, nil
}

func translateChatErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrChatNotFound):
		return ErrChatNotFound
	case errors.Is(err, repository.ErrNotChatOwner):
		return ErrNotChatOwner
	default:
		return err
	}
}
