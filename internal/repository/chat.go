package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/chatledger/chatledger-go/internal/model"
)

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrNotChatOwner = errors.New("chat belongs to another user")
)

// ChatRepository handles chat and message persistence operations.
type ChatRepository struct {
	db *sql.DB
}

// NewChatRepository creates a new ChatRepository.
func NewChatRepository(db *sql.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// chatColumns selects a chat row together with its derived fields: the
// first message content and the timestamp of the last message. Both are
// computed from the messages relation at read time, never stored.
const chatColumns = `c.id, c.user_id, c.type,
	COALESCE((SELECT m.content FROM messages m WHERE m.chat_id = c.id ORDER BY m.id ASC LIMIT 1), 'Empty chat'),
	(SELECT MAX(m.timestamp) FROM messages m WHERE m.chat_id = c.id)`

// CreateChat inserts a new chat for the user. The type is fixed at creation.
func (r *ChatRepository) CreateChat(ctx context.Context, userID int64, chatType string) (model.Chat, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO chats (user_id, type) VALUES (?, ?)`, userID, chatType)
	if err != nil {
		if isForeignKeyError(err) {
			return model.Chat{}, ErrUserNotFound
		}
		return model.Chat{}, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return model.Chat{}, err
	}

	return model.Chat{
		ID:           id,
		UserID:       userID,
		Type:         chatType,
		FirstMessage: "Empty chat",
	}, nil
}

// GetChat retrieves a chat by ID with its derived message fields.
func (r *ChatRepository) GetChat(ctx context.Context, chatID int64) (model.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats c WHERE c.id = ?`

	var chat model.Chat
	err := r.db.QueryRowContext(ctx, query, chatID).Scan(
		&chat.ID, &chat.UserID, &chat.Type, &chat.FirstMessage, &chat.LastMessageAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Chat{}, ErrChatNotFound
		}
		return model.Chat{}, err
	}

	return chat, nil
}

// DeleteChat removes a chat after verifying ownership. A missing chat is
// ErrChatNotFound; an existing chat owned by someone else is ErrNotChatOwner.
// The two are never conflated.
func (r *ChatRepository) DeleteChat(ctx context.Context, chatID, userID int64) error {
	if err := r.checkOwner(ctx, r.db, chatID, userID); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, chatID)
	return err
}

// ListChats returns all chats owned by the user with derived message fields.
func (r *ChatRepository) ListChats(ctx context.Context, userID int64) ([]model.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats c WHERE c.user_id = ? ORDER BY c.id ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []model.Chat
	for rows.Next() {
		var chat model.Chat
		if err := rows.Scan(&chat.ID, &chat.UserID, &chat.Type, &chat.FirstMessage, &chat.LastMessageAt); err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}

	return chats, rows.Err()
}

// AppendMessage inserts a message into a chat. When userID is positive,
// ownership is re-verified first. The timestamp is assigned by the database
// at insertion, so messages are totally ordered per chat.
func (r *ChatRepository) AppendMessage(ctx context.Context, chatID, userID int64, data model.MessageData) error {
	if err := r.checkOwnerOptional(ctx, r.db, chatID, userID); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (chat_id, role, content) VALUES (?, ?, ?)`,
		chatID, data.Role, data.Content)
	return err
}

// ListMessages returns a chat's messages in insertion order after verifying
// ownership.
func (r *ChatRepository) ListMessages(ctx context.Context, chatID, userID int64) ([]model.Message, error) {
	if err := r.checkOwner(ctx, r.db, chatID, userID); err != nil {
		return nil, err
	}

	query := `SELECT id, chat_id, role, content, timestamp
		FROM messages WHERE chat_id = ? ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// balanceForUpdateQuery sums the ledger with a locking read. A locking read
// always sees the latest committed rows, unlike a consistent read pinned to
// the transaction's snapshot, so the sum is current once the user lock is
// held.
const balanceForUpdateQuery = `
	SELECT COALESCE(SUM(CASE WHEN transaction_type = 'income' THEN amount ELSE -amount END), 0)
	FROM transactions WHERE user_id = ? FOR UPDATE`

// AppendUserMessageAndDebit persists the user's message and debits cost as
// one transaction: both happen or neither does. Returns false without
// persisting anything when the balance is below cost.
//
// Concurrent debits for the same user are serialized on the users row. The
// lock must be taken before the balance is read: locking only the ledger
// rows would not block a competing debit when the user has no rows yet, and
// a non-locking sum could evaluate against a snapshot taken before a
// competing debit committed, letting both pass the gate.
func (r *ChatRepository) AppendUserMessageAndDebit(ctx context.Context, chatID, userID int64, content string, cost float64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if err := r.checkOwner(ctx, tx, chatID, userID); err != nil {
		return false, err
	}

	var lockedID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM users WHERE id = ? FOR UPDATE`, userID).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrUserNotFound
		}
		return false, err
	}

	var balance float64
	if err := tx.QueryRowContext(ctx, balanceForUpdateQuery, userID).Scan(&balance); err != nil {
		return false, err
	}
	if balance < cost {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transactions (user_id, amount, transaction_type) VALUES (?, ?, ?)`,
		userID, cost, model.TransactionExpense)
	if err != nil {
		return false, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (chat_id, role, content) VALUES (?, ?, ?)`,
		chatID, model.RoleUser, content)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// checkOwner verifies that the chat exists and belongs to userID. Absence
// is reported before ownership so the two error kinds stay distinct.
func (r *ChatRepository) checkOwner(ctx context.Context, q querier, chatID, userID int64) error {
	var ownerID int64
	err := q.QueryRowContext(ctx, `SELECT user_id FROM chats WHERE id = ?`, chatID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrChatNotFound
		}
		return err
	}
	if ownerID != userID {
		return ErrNotChatOwner
	}
	return nil
}

// checkOwnerOptional skips the ownership comparison when userID is not
// positive, but still reports a missing chat.
func (r *ChatRepository) checkOwnerOptional(ctx context.Context, q querier, chatID, userID int64) error {
	if userID > 0 {
		return r.checkOwner(ctx, q, chatID, userID)
	}

	var exists int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM chats WHERE id = ?`, chatID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrChatNotFound
		}
		return err
	}
	return nil
}
