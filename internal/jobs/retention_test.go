package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hireloop/chat-relay/internal/model"
)

type mockConversationRepo struct {
	mu           sync.Mutex
	deletedCount int64
	calls        int
	lastCutoff   time.Time
}

func (m *mockConversationRepo) FindByID(ctx context.Context, id int64) (*model.Conversation, error) {
	return nil, nil
}

func (m *mockConversationRepo) FindActiveByCandidate(ctx context.Context, candidateID int64) (*model.Conversation, error) {
	return nil, nil
}

func (m *mockConversationRepo) Create(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error) {
	return nil, nil
}

func (m *mockConversationRepo) ClaimUnassigned(ctx context.Context, id, adminID int64) (*model.Conversation, error) {
	return nil, nil
}

func (m *mockConversationRepo) CloseIfOpen(ctx context.Context, id int64) (*model.Conversation, error) {
	return nil, nil
}

func (m *mockConversationRepo) ListUnassigned(ctx context.Context) ([]model.Conversation, error) {
	return nil, nil
}

func (m *mockConversationRepo) ListActiveByAdmin(ctx context.Context, adminID int64) ([]model.Conversation, error) {
	return nil, nil
}

func (m *mockConversationRepo) DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastCutoff = cutoff
	return m.deletedCount, nil
}

func (m *mockConversationRepo) CountByStatus(ctx context.Context, status model.ConversationStatus) (int, error) {
	return 0, nil
}

func (m *mockConversationRepo) purgeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockConversationRepo) cutoff() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCutoff
}

func TestRetentionJob(t *testing.T) {
	t.Run("creates job with correct settings", func(t *testing.T) {
		job := NewRetentionJob(nil, 90*24*time.Hour, time.Hour)

		require.NotNil(t, job)
		assert.Equal(t, 90*24*time.Hour, job.retention)
		assert.Equal(t, time.Hour, job.interval)
	})

	t.Run("purges on start with retention cutoff", func(t *testing.T) {
		repo := &mockConversationRepo{deletedCount: 3}
		job := NewRetentionJob(repo, 90*24*time.Hour, time.Hour)

		job.Start()
		time.Sleep(20 * time.Millisecond)
		job.Stop()

		assert.Equal(t, 1, repo.purgeCalls())

		wantCutoff := time.Now().Add(-90 * 24 * time.Hour)
		assert.WithinDuration(t, wantCutoff, repo.cutoff(), time.Minute)
	})

	t.Run("purges again on each tick", func(t *testing.T) {
		repo := &mockConversationRepo{}
		job := NewRetentionJob(repo, time.Hour, 10*time.Millisecond)

		job.Start()
		time.Sleep(35 * time.Millisecond)
		job.Stop()

		assert.GreaterOrEqual(t, repo.purgeCalls(), 2)
	})
}
