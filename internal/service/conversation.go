package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	apperrors "github.com/hireloop/chat-relay/internal/errors"
	"github.com/hireloop/chat-relay/internal/model"
	"github.com/hireloop/chat-relay/internal/repository"
)

// ClosedNote is the terminal system message appended to a transcript when a
// conversation ends. The gateway echoes it in the conversation_closed
// broadcast.
const ClosedNote = "Conversation has been closed and cannot be reopened."

// JoinResult is what a candidate gets back from joining chat.
// IsNewlyCreated gates the new_unassigned_conversation broadcast: admins are
// notified once per genuinely new conversation, not on every returning join.
type JoinResult struct {
	Conversation   *model.Conversation
	Transcript     []model.Message
	IsNewlyCreated bool
}

// CloseResult reports a close transition. AlreadyClosed means the
// conversation was terminal before the call; callers must not broadcast
// conversation_closed again in that case.
type CloseResult struct {
	Conversation  *model.Conversation
	AlreadyClosed bool
}

// ConversationService is the single authority for conversation state
// transitions. It returns data and never touches the transport.
type ConversationService struct {
	convRepo repository.ConversationRepository
	msgRepo  repository.MessageRepository
	userRepo repository.UserRepository
}

func NewConversationService(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	userRepo repository.UserRepository,
) *ConversationService {
	return &ConversationService{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		userRepo: userRepo,
	}
}

// JoinAsCandidate finds the candidate's active conversation, or creates a new
// unassigned one. An existing conversation comes back with its full
// transcript in creation order.
func (s *ConversationService) JoinAsCandidate(ctx context.Context, candidateID int64) (*JoinResult, error) {
	conv, err := s.convRepo.FindActiveByCandidate(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("find active conversation: %w", err)
	}

	if conv != nil {
		transcript, err := s.msgRepo.ListByConversation(ctx, conv.ID)
		if err != nil {
			return nil, fmt.Errorf("load transcript: %w", err)
		}
		return &JoinResult{
			Conversation:   conv,
			Transcript:     transcript,
			IsNewlyCreated: false,
		}, nil
	}

	conv, err = s.convRepo.Create(ctx, model.CreateConversationParams{CandidateID: candidateID})
	if err != nil {
		// A concurrent join may have hit the one-active-per-candidate unique
		// index first; that conversation is the one to return.
		if existing, findErr := s.convRepo.FindActiveByCandidate(ctx, candidateID); findErr == nil && existing != nil {
			transcript, tErr := s.msgRepo.ListByConversation(ctx, existing.ID)
			if tErr != nil {
				return nil, fmt.Errorf("load transcript: %w", tErr)
			}
			return &JoinResult{Conversation: existing, Transcript: transcript}, nil
		}
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	log.Info().
		Int64("conversationId", conv.ID).
		Int64("candidateId", candidateID).
		Msg("conversation created")

	return &JoinResult{
		Conversation:   conv,
		Transcript:     []model.Message{},
		IsNewlyCreated: true,
	}, nil
}

// Claim transitions a conversation from unassigned to assigned. The
// check-and-set is one guarded UPDATE, so of two racing admins exactly one
// wins; the loser gets a claim conflict and should re-fetch the unassigned
// list.
func (s *ConversationService) Claim(ctx context.Context, adminID, conversationID int64) (*model.Conversation, error) {
	claimed, err := s.convRepo.ClaimUnassigned(ctx, conversationID, adminID)
	if err != nil {
		return nil, fmt.Errorf("claim conversation: %w", err)
	}

	if claimed == nil {
		// Guard did not match; inspect the row to report why.
		conv, err := s.convRepo.FindByID(ctx, conversationID)
		if err != nil {
			return nil, fmt.Errorf("find conversation: %w", err)
		}
		switch {
		case conv == nil:
			return nil, apperrors.NotFound("Conversation")
		case conv.IsClosed():
			return nil, apperrors.ConversationClosed()
		case conv.AssignedTo(adminID):
			// Duplicate claim from the winner; treat as success.
			return conv, nil
		default:
			return nil, apperrors.ClaimConflict(conversationID)
		}
	}

	log.Info().
		Int64("conversationId", conversationID).
		Int64("adminId", adminID).
		Msg("conversation claimed")

	return claimed, nil
}

// Close transitions a conversation to closed. Closing an already-closed
// conversation returns it unchanged; disconnect races can trigger duplicate
// close attempts and they must not error. The transcript gets a system
// message recording who ended the chat.
func (s *ConversationService) Close(ctx context.Context, conversationID, closedBy int64) (*CloseResult, error) {
	closed, err := s.convRepo.CloseIfOpen(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("close conversation: %w", err)
	}

	if closed == nil {
		conv, err := s.convRepo.FindByID(ctx, conversationID)
		if err != nil {
			return nil, fmt.Errorf("find conversation: %w", err)
		}
		if conv == nil {
			return nil, apperrors.NotFound("Conversation")
		}
		return &CloseResult{Conversation: conv, AlreadyClosed: true}, nil
	}

	s.recordCloseNote(ctx, conversationID, closedBy)

	log.Info().
		Int64("conversationId", conversationID).
		Int64("closedBy", closedBy).
		Msg("conversation closed")

	return &CloseResult{Conversation: closed}, nil
}

// CloseAllForAdmin closes every non-closed conversation assigned to the
// admin. Used when an admin's session ends. Returns only the conversations
// actually transitioned; one that raced to closed in the meantime is skipped.
func (s *ConversationService) CloseAllForAdmin(ctx context.Context, adminID int64) ([]model.Conversation, error) {
	active, err := s.convRepo.ListActiveByAdmin(ctx, adminID)
	if err != nil {
		return nil, fmt.Errorf("list active conversations: %w", err)
	}

	closed := make([]model.Conversation, 0, len(active))
	for _, conv := range active {
		done, err := s.convRepo.CloseIfOpen(ctx, conv.ID)
		if err != nil {
			return nil, fmt.Errorf("close conversation %d: %w", conv.ID, err)
		}
		if done == nil {
			continue
		}
		s.recordCloseNote(ctx, done.ID, adminID)
		closed = append(closed, *done)
	}

	if len(closed) > 0 {
		log.Info().
			Int64("adminId", adminID).
			Int("count", len(closed)).
			Msg("closed all admin conversations")
	}

	return closed, nil
}

// ListUnassigned returns open conversations waiting for an admin, oldest
// first.
func (s *ConversationService) ListUnassigned(ctx context.Context) ([]model.Conversation, error) {
	return s.convRepo.ListUnassigned(ctx)
}

// FindByID returns a conversation by id, nil when absent.
func (s *ConversationService) FindByID(ctx context.Context, id int64) (*model.Conversation, error) {
	return s.convRepo.FindByID(ctx, id)
}

// recordCloseNote appends the terminal system message to the transcript.
// Best effort: the close has already committed and stands either way.
func (s *ConversationService) recordCloseNote(ctx context.Context, conversationID, closedBy int64) {
	user, err := s.userRepo.FindByID(ctx, closedBy)
	if err != nil || user == nil {
		log.Warn().Err(err).
			Int64("conversationId", conversationID).
			Int64("closedBy", closedBy).
			Msg("failed to resolve closing user for close note")
		return
	}

	_, err = s.msgRepo.Create(ctx, model.CreateMessageParams{
		ConversationID: conversationID,
		SenderID:       user.ID,
		SenderName:     user.DisplayName,
		SenderRole:     user.Role,
		Content:        ClosedNote,
		Type:           model.MessageTypeSystem,
	})
	if err != nil {
		log.Warn().Err(err).
			Int64("conversationId", conversationID).
			Msg("failed to record close note")
	}
}
