package repository

import (
	"context"

	"github.com/hireloop/chat-relay/internal/database"
	"github.com/hireloop/chat-relay/internal/model"
)

type MessageRepository interface {
	FindByID(ctx context.Context, id int64) (*model.Message, error)
	// ListByConversation returns the transcript in creation order ascending.
	ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error)
	CountByConversation(ctx context.Context, conversationID int64) (int, error)
	// Create inserts a message. Text messages are guarded against the
	// conversation's status in the same statement and return nil when the
	// conversation is already closed; system messages insert regardless so
	// close notes can land on the conversation they close.
	Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error)
}

type messageRepo struct {
	db database.DBTX
}

func NewMessageRepository(db database.DBTX) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) FindByID(ctx context.Context, id int64) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `SELECT * FROM messages WHERE id = $1`, id)
	return HandleNotFound(&msg, err)
}

func (r *messageRepo) ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error) {
	var msgs []model.Message
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`, conversationID)
	return msgs, err
}

func (r *messageRepo) CountByConversation(ctx context.Context, conversationID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM messages WHERE conversation_id = $1
	`, conversationID)
	return count, err
}

func (r *messageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `
		INSERT INTO messages
			(conversation_id, sender_id, sender_name, sender_role, content, type)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE EXISTS (
			SELECT 1 FROM conversations
			WHERE id = $1 AND (status != 'closed' OR $6 = 'system')
		)
		RETURNING *
	`, params.ConversationID, params.SenderID, params.SenderName,
		params.SenderRole, params.Content, params.Type)
	return HandleNotFound(&msg, err)
}
