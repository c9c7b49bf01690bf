package repository

import (
	"context"
	"sync"
	"time"

	"github.com/chatledger/chatledger-go/internal/model"
)

// MemoryStore is an in-memory adapter implementing the same capability set
// as the MySQL repositories. The services depend only on the interfaces, so
// the two backends are interchangeable; this one backs tests and local runs
// without a database.
type MemoryStore struct {
	mu sync.Mutex

	users      map[int64]*model.User
	emailIndex map[string]int64
	nextUserID int64

	transactions []model.Transaction
	nextTxID     int64

	chats      map[int64]*model.Chat
	nextChatID int64

	messages  map[int64][]model.Message
	nextMsgID int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[int64]*model.User),
		emailIndex: make(map[string]int64),
		chats:      make(map[int64]*model.Chat),
		messages:   make(map[int64][]model.Message),
	}
}

// Create inserts a new user and sets the generated ID on the user struct.
func (s *MemoryStore) Create(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.emailIndex[user.Email]; taken {
		return ErrDuplicateEmail
	}

	s.nextUserID++
	user.ID = s.nextUserID
	user.CreatedAt = time.Now().UTC()

	stored := *user
	s.users[user.ID] = &stored
	s.emailIndex[user.Email] = user.ID
	return nil
}

// GetByEmail retrieves a user by email address.
func (s *MemoryStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.emailIndex[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	user := *s.users[id]
	return &user, nil
}

// GetByID retrieves a user by ID.
func (s *MemoryStore) GetByID(_ context.Context, id int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	user := *stored
	return &user, nil
}

// Delete removes a user and cascades to chats, messages, and transactions.
func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	delete(s.emailIndex, user.Email)
	delete(s.users, id)

	kept := s.transactions[:0]
	for _, t := range s.transactions {
		if t.UserID != id {
			kept = append(kept, t)
		}
	}
	s.transactions = kept

	for chatID, chat := range s.chats {
		if chat.UserID == id {
			delete(s.chats, chatID)
			delete(s.messages, chatID)
		}
	}
	return nil
}

// Balance returns the derived balance: income minus expense, zero when the
// user has no transactions.
func (s *MemoryStore) Balance(_ context.Context, userID int64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balanceLocked(userID), nil
}

func (s *MemoryStore) balanceLocked(userID int64) float64 {
	var balance float64
	for _, t := range s.transactions {
		if t.UserID != userID {
			continue
		}
		if t.TransactionType == model.TransactionIncome {
			balance += t.Amount
		} else {
			balance -= t.Amount
		}
	}
	return balance
}

// AddTransaction appends one immutable transaction row.
func (s *MemoryStore) AddTransaction(_ context.Context, userID int64, amount float64, transactionType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return ErrUserNotFound
	}
	s.appendTransactionLocked(userID, amount, transactionType)
	return nil
}

func (s *MemoryStore) appendTransactionLocked(userID int64, amount float64, transactionType string) {
	s.nextTxID++
	s.transactions = append(s.transactions, model.Transaction{
		ID:              s.nextTxID,
		UserID:          userID,
		Amount:          amount,
		TransactionType: transactionType,
		CreatedAt:       time.Now().UTC(),
	})
}

// ListTransactions returns a user's transactions in insertion order.
func (s *MemoryStore) ListTransactions(_ context.Context, userID int64) ([]model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var transactions []model.Transaction
	for _, t := range s.transactions {
		if t.UserID == userID {
			transactions = append(transactions, t)
		}
	}
	return transactions, nil
}

// CreateChat inserts a new chat for the user.
func (s *MemoryStore) CreateChat(_ context.Context, userID int64, chatType string) (model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return model.Chat{}, ErrUserNotFound
	}

	s.nextChatID++
	chat := model.Chat{
		ID:           s.nextChatID,
		UserID:       userID,
		Type:         chatType,
		FirstMessage: "Empty chat",
	}
	stored := chat
	s.chats[chat.ID] = &stored
	return chat, nil
}

// GetChat retrieves a chat with its derived message fields.
func (s *MemoryStore) GetChat(_ context.Context, chatID int64) (model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.chats[chatID]
	if !ok {
		return model.Chat{}, ErrChatNotFound
	}
	return s.withDerivedLocked(*stored), nil
}

// DeleteChat removes a chat after verifying ownership.
func (s *MemoryStore) DeleteChat(_ context.Context, chatID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOwnerLocked(chatID, userID); err != nil {
		return err
	}
	delete(s.chats, chatID)
	delete(s.messages, chatID)
	return nil
}

// ListChats returns all chats owned by the user with derived fields.
func (s *MemoryStore) ListChats(_ context.Context, userID int64) ([]model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var chats []model.Chat
	for id := int64(1); id <= s.nextChatID; id++ {
		stored, ok := s.chats[id]
		if !ok || stored.UserID != userID {
			continue
		}
		chats = append(chats, s.withDerivedLocked(*stored))
	}
	return chats, nil
}

// AppendMessage inserts a message, re-verifying ownership when userID is
// positive. Timestamps are assigned here, monotonic per chat.
func (s *MemoryStore) AppendMessage(_ context.Context, chatID, userID int64, data model.MessageData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if userID > 0 {
		if err := s.checkOwnerLocked(chatID, userID); err != nil {
			return err
		}
	} else if _, ok := s.chats[chatID]; !ok {
		return ErrChatNotFound
	}

	s.appendMessageLocked(chatID, data)
	return nil
}

func (s *MemoryStore) appendMessageLocked(chatID int64, data model.MessageData) {
	s.nextMsgID++
	s.messages[chatID] = append(s.messages[chatID], model.Message{
		ID:        s.nextMsgID,
		ChatID:    chatID,
		Role:      data.Role,
		Content:   data.Content,
		Timestamp: time.Now().UTC(),
	})
}

// ListMessages returns a chat's messages in insertion order, ownership-checked.
func (s *MemoryStore) ListMessages(_ context.Context, chatID, userID int64) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOwnerLocked(chatID, userID); err != nil {
		return nil, err
	}

	messages := make([]model.Message, len(s.messages[chatID]))
	copy(messages, s.messages[chatID])
	return messages, nil
}

// AppendUserMessageAndDebit persists the user's message and the expense as
// one atomic step under the store lock: both happen or neither does.
func (s *MemoryStore) AppendUserMessageAndDebit(_ context.Context, chatID, userID int64, content string, cost float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOwnerLocked(chatID, userID); err != nil {
		return false, err
	}
	if s.balanceLocked(userID) < cost {
		return false, nil
	}

	s.appendTransactionLocked(userID, cost, model.TransactionExpense)
	s.appendMessageLocked(chatID, model.MessageData{Role: model.RoleUser, Content: content})
	return true, nil
}

func (s *MemoryStore) checkOwnerLocked(chatID, userID int64) error {
	chat, ok := s.chats[chatID]
	if !ok {
		return ErrChatNotFound
	}
	if chat.UserID != userID {
		return ErrNotChatOwner
	}
	return nil
}

func (s *MemoryStore) withDerivedLocked(chat model.Chat) model.Chat {
	messages := s.messages[chat.ID]
	if len(messages) == 0 {
		chat.FirstMessage = "Empty chat"
		chat.LastMessageAt = nil
		return chat
	}
	chat.FirstMessage = messages[0].Content
	last := messages[len(messages)-1].Timestamp
	chat.LastMessageAt = &last
	return chat
}
