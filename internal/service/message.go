package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hireloop/chat-relay/internal/config"
	apperrors "github.com/hireloop/chat-relay/internal/errors"
	"github.com/hireloop/chat-relay/internal/model"
	"github.com/hireloop/chat-relay/internal/repository"
)

// MessageService validates, persists, and shapes chat messages for
// broadcast. Fan-out belongs to the transport layer, not here.
type MessageService struct {
	msgRepo  repository.MessageRepository
	convRepo repository.ConversationRepository
	userRepo repository.UserRepository
}

func NewMessageService(
	msgRepo repository.MessageRepository,
	convRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
) *MessageService {
	return &MessageService{
		msgRepo:  msgRepo,
		convRepo: convRepo,
		userRepo: userRepo,
	}
}

// Send persists one chat message. Sender display name and role are resolved
// at send time so profile changes show up immediately; timestamps are
// server-side, client clocks are never trusted.
func (s *MessageService) Send(ctx context.Context, conversationID, senderID int64, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.InvalidInput("content", "must not be blank")
	}
	if len(content) > config.MaxMessageLength {
		return nil, apperrors.InvalidInput("content", fmt.Sprintf("must be at most %d characters", config.MaxMessageLength))
	}

	conv, err := s.convRepo.FindByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	if conv == nil {
		return nil, apperrors.NotFound("Conversation")
	}
	if conv.IsClosed() {
		return nil, apperrors.ConversationClosed()
	}

	sender, err := s.userRepo.FindByID(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("resolve sender: %w", err)
	}
	if sender == nil {
		return nil, apperrors.NotFound("User")
	}

	msg, err := s.msgRepo.Create(ctx, model.CreateMessageParams{
		ConversationID: conversationID,
		SenderID:       sender.ID,
		SenderName:     sender.DisplayName,
		SenderRole:     sender.Role,
		Content:        content,
		Type:           model.MessageTypeText,
	})
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if msg == nil {
		// the insert is guarded against the conversation status, so a nil
		// row means a close landed after the check above
		return nil, apperrors.ConversationClosed()
	}

	log.Info().
		Int64("messageId", msg.ID).
		Int64("conversationId", conversationID).
		Int64("senderId", senderID).
		Msg("message relayed")

	return msg, nil
}

// Transcript returns a conversation's messages in creation order ascending.
func (s *MessageService) Transcript(ctx context.Context, conversationID int64) ([]model.Message, error) {
	return s.msgRepo.ListByConversation(ctx, conversationID)
}
