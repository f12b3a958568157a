package handler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hireloop/chat-relay/internal/model"
	"github.com/hireloop/chat-relay/internal/sse"
)

// fakeConversationRepo is an in-memory stand-in with the same guarded-update
// semantics as the SQL implementation.
type fakeConversationRepo struct {
	mu    sync.Mutex
	seq   int64
	convs map[int64]*model.Conversation
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{convs: make(map[int64]*model.Conversation)}
}

func (f *fakeConversationRepo) FindByID(ctx context.Context, id int64) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conv, ok := f.convs[id]; ok {
		copied := *conv
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeConversationRepo) FindActiveByCandidate(ctx context.Context, candidateID int64) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conv := range f.convs {
		if conv.CandidateID == candidateID && conv.Status != model.ConversationStatusClosed {
			copied := *conv
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeConversationRepo) Create(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	conv := &model.Conversation{
		ID:          f.seq,
		CandidateID: params.CandidateID,
		Status:      model.ConversationStatusUnassigned,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	f.convs[conv.ID] = conv
	copied := *conv
	return &copied, nil
}

func (f *fakeConversationRepo) ClaimUnassigned(ctx context.Context, id, adminID int64) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[id]
	if !ok || conv.Status != model.ConversationStatusUnassigned {
		return nil, nil
	}
	conv.Status = model.ConversationStatusAssigned
	conv.AdminID = &adminID
	conv.UpdatedAt = time.Now()
	copied := *conv
	return &copied, nil
}

func (f *fakeConversationRepo) CloseIfOpen(ctx context.Context, id int64) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[id]
	if !ok || conv.Status == model.ConversationStatusClosed {
		return nil, nil
	}
	conv.Status = model.ConversationStatusClosed
	conv.UpdatedAt = time.Now()
	copied := *conv
	return &copied, nil
}

func (f *fakeConversationRepo) ListUnassigned(ctx context.Context) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Conversation
	for _, conv := range f.convs {
		if conv.Status == model.ConversationStatusUnassigned {
			out = append(out, *conv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeConversationRepo) ListActiveByAdmin(ctx context.Context, adminID int64) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Conversation
	for _, conv := range f.convs {
		if conv.Status == model.ConversationStatusAssigned && conv.AdminID != nil && *conv.AdminID == adminID {
			out = append(out, *conv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeConversationRepo) DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for id, conv := range f.convs {
		if conv.Status == model.ConversationStatusClosed && conv.UpdatedAt.Before(cutoff) {
			delete(f.convs, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeConversationRepo) CountByStatus(ctx context.Context, status model.ConversationStatus) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, conv := range f.convs {
		if conv.Status == status {
			count++
		}
	}
	return count, nil
}

type fakeMessageRepo struct {
	mu    sync.Mutex
	seq   int64
	msgs  []model.Message
	convs *fakeConversationRepo
}

func newFakeMessageRepo(convs *fakeConversationRepo) *fakeMessageRepo {
	return &fakeMessageRepo{convs: convs}
}

func (f *fakeMessageRepo) FindByID(ctx context.Context, id int64) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.msgs {
		if f.msgs[i].ID == id {
			copied := f.msgs[i]
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeMessageRepo) ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Message
	for _, msg := range f.msgs {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (f *fakeMessageRepo) CountByConversation(ctx context.Context, conversationID int64) (int, error) {
	msgs, _ := f.ListByConversation(ctx, conversationID)
	return len(msgs), nil
}

func (f *fakeMessageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	// mirror the SQL guard: text messages miss when the conversation is
	// closed, system notes always insert
	if params.Type != model.MessageTypeSystem {
		conv, _ := f.convs.FindByID(ctx, params.ConversationID)
		if conv == nil || conv.Status == model.ConversationStatusClosed {
			return nil, nil
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	msg := model.Message{
		ID:             f.seq,
		ConversationID: params.ConversationID,
		SenderID:       params.SenderID,
		SenderName:     params.SenderName,
		SenderRole:     params.SenderRole,
		Content:        params.Content,
		Type:           params.Type,
		CreatedAt:      time.Now(),
	}
	f.msgs = append(f.msgs, msg)
	copied := msg
	return &copied, nil
}

type fakeUserRepo struct {
	users map[int64]*model.User
}

func newFakeUserRepo(users ...*model.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[int64]*model.User)}
	for _, user := range users {
		repo.users[user.ID] = user
	}
	return repo
}

func (f *fakeUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	if user, ok := f.users[id]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, nil
}

type publishedEvent struct {
	Channel string
	Event   sse.Event
}

// fakeBroadcaster records membership changes and published events instead of
// going through Redis.
type fakeBroadcaster struct {
	mu        sync.Mutex
	clients   map[string]*sse.Client
	joined    map[string]map[string]bool // connectionID -> channels
	published []publishedEvent
	connected chan *sse.Client
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{
		clients:   make(map[string]*sse.Client),
		joined:    make(map[string]map[string]bool),
		connected: make(chan *sse.Client, 10),
	}
}

func (f *fakeBroadcaster) Connect(connectionID string) *sse.Client {
	client := &sse.Client{
		ConnectionID: connectionID,
		Events:       make(chan sse.Event, 100),
		Done:         make(chan struct{}),
	}
	f.mu.Lock()
	f.clients[connectionID] = client
	f.mu.Unlock()
	f.connected <- client
	return client
}

func (f *fakeBroadcaster) Disconnect(client *sse.Client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.clients, client.ConnectionID)
	delete(f.joined, client.ConnectionID)
}

func (f *fakeBroadcaster) Join(connectionID, channel string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joined[connectionID] == nil {
		f.joined[connectionID] = make(map[string]bool)
	}
	f.joined[connectionID][channel] = true
}

func (f *fakeBroadcaster) Leave(connectionID, channel string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.joined[connectionID], channel)
}

func (f *fakeBroadcaster) Publish(ctx context.Context, channel string, event sse.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedEvent{Channel: channel, Event: event})
	return nil
}

func (f *fakeBroadcaster) publishedOn(channel string) []sse.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sse.Event
	for _, p := range f.published {
		if p.Channel == channel {
			out = append(out, p.Event)
		}
	}
	return out
}

func (f *fakeBroadcaster) isJoined(connectionID, channel string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joined[connectionID][channel]
}
