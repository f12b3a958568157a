package repository

import (
	"context"
	"time"

	"github.com/hireloop/chat-relay/internal/database"
	"github.com/hireloop/chat-relay/internal/model"
)

type ConversationRepository interface {
	FindByID(ctx context.Context, id int64) (*model.Conversation, error)
	FindActiveByCandidate(ctx context.Context, candidateID int64) (*model.Conversation, error)
	Create(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error)
	// ClaimUnassigned atomically assigns an admin to a conversation that is
	// still unassigned. Returns nil when the guard did not match (already
	// assigned, closed, or missing); the caller inspects the row to tell
	// those apart.
	ClaimUnassigned(ctx context.Context, id, adminID int64) (*model.Conversation, error)
	// CloseIfOpen atomically closes a non-closed conversation. Returns nil
	// when the conversation was already closed or does not exist.
	CloseIfOpen(ctx context.Context, id int64) (*model.Conversation, error)
	ListUnassigned(ctx context.Context) ([]model.Conversation, error)
	ListActiveByAdmin(ctx context.Context, adminID int64) ([]model.Conversation, error)
	DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountByStatus(ctx context.Context, status model.ConversationStatus) (int, error)
}

type conversationRepo struct {
	db database.DBTX
}

func NewConversationRepository(db database.DBTX) ConversationRepository {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) FindByID(ctx context.Context, id int64) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, `
		SELECT * FROM conversations WHERE id = $1
	`, id)
	return HandleNotFound(&conv, err)
}

func (r *conversationRepo) FindActiveByCandidate(ctx context.Context, candidateID int64) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, `
		SELECT * FROM conversations
		WHERE candidate_id = $1 AND status != 'closed'
		ORDER BY created_at DESC
		LIMIT 1
	`, candidateID)
	return HandleNotFound(&conv, err)
}

func (r *conversationRepo) Create(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, `
		INSERT INTO conversations (candidate_id, status)
		VALUES ($1, 'unassigned')
		RETURNING *
	`, params.CandidateID)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepo) ClaimUnassigned(ctx context.Context, id, adminID int64) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, `
		UPDATE conversations SET
			status = 'assigned',
			admin_id = $2,
			updated_at = NOW()
		WHERE id = $1 AND status = 'unassigned'
		RETURNING *
	`, id, adminID)
	return HandleNotFound(&conv, err)
}

func (r *conversationRepo) CloseIfOpen(ctx context.Context, id int64) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, `
		UPDATE conversations SET
			status = 'closed',
			updated_at = NOW()
		WHERE id = $1 AND status != 'closed'
		RETURNING *
	`, id)
	return HandleNotFound(&conv, err)
}

func (r *conversationRepo) ListUnassigned(ctx context.Context) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := r.db.SelectContext(ctx, &convs, `
		SELECT * FROM conversations
		WHERE status = 'unassigned'
		ORDER BY created_at ASC
	`)
	return convs, err
}

func (r *conversationRepo) ListActiveByAdmin(ctx context.Context, adminID int64) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := r.db.SelectContext(ctx, &convs, `
		SELECT * FROM conversations
		WHERE admin_id = $1 AND status != 'closed'
		ORDER BY created_at ASC
	`, adminID)
	return convs, err
}

func (r *conversationRepo) DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM conversations
		WHERE status = 'closed' AND updated_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *conversationRepo) CountByStatus(ctx context.Context, status model.ConversationStatus) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM conversations WHERE status = $1
	`, status)
	return count, err
}
