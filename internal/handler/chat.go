package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/hireloop/chat-relay/internal/chat"
	apperrors "github.com/hireloop/chat-relay/internal/errors"
	"github.com/hireloop/chat-relay/internal/model"
	redisclient "github.com/hireloop/chat-relay/internal/redis"
	"github.com/hireloop/chat-relay/internal/registry"
	"github.com/hireloop/chat-relay/internal/service"
	"github.com/hireloop/chat-relay/internal/sse"
)

// Broadcaster is the transport fan-out surface the handlers need. Satisfied
// by *sse.Broker.
type Broadcaster interface {
	Connect(connectionID string) *sse.Client
	Disconnect(client *sse.Client)
	Join(connectionID, channel string)
	Leave(connectionID, channel string)
	Publish(ctx context.Context, channel string, event sse.Event) error
}

// ChatHandler is the gateway for inbound chat events. It decodes envelopes,
// dispatches to the lifecycle and relay services, keeps the connection
// registry and broker membership in step, and publishes the resulting
// broadcasts.
type ChatHandler struct {
	registry      *registry.Registry
	broker        Broadcaster
	conversations *service.ConversationService
	messages      *service.MessageService
	users         *service.UserService
}

func NewChatHandler(
	reg *registry.Registry,
	broker Broadcaster,
	conversations *service.ConversationService,
	messages *service.MessageService,
	users *service.UserService,
) *ChatHandler {
	return &ChatHandler{
		registry:      reg,
		broker:        broker,
		conversations: conversations,
		messages:      messages,
		users:         users,
	}
}

func (h *ChatHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var env chat.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(ctx, w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	event, err := chat.Decode(env)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	connID := env.ConnectionID

	switch event := event.(type) {
	case chat.JoinChat:
		h.handleJoin(ctx, w, connID, event)
	case chat.AdminTakeConversation:
		h.handleTake(ctx, w, connID, event)
	case chat.SendMessage:
		h.handleSend(ctx, w, connID, event)
	case chat.CloseConversation:
		h.handleClose(ctx, w, connID)
	case chat.GetUnassignedConversations:
		h.handleListUnassigned(ctx, w)
	case chat.CloseAllAdminConversations:
		h.handleCloseAll(ctx, w, event)
	default:
		writeError(ctx, w, apperrors.InvalidInput("type", "unhandled event type"))
	}
}

func (h *ChatHandler) handleJoin(ctx context.Context, w http.ResponseWriter, connID string, event chat.JoinChat) {
	user, err := h.users.Resolve(ctx, event.UserID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	// Admins join the global queue, not a room; they enter rooms by taking
	// conversations.
	if user.Role == model.UserRoleAdmin {
		h.registry.Bind(connID, user.ID, user.Role, 0)
		h.broker.Join(connID, redisclient.AdminChannel())
		writeAck(w, map[string]any{"conversation": nil})
		return
	}

	result, err := h.conversations.JoinAsCandidate(ctx, user.ID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	h.bindRoom(connID, user, result.Conversation.ID)

	if result.IsNewlyCreated {
		h.publish(ctx, redisclient.AdminChannel(), chat.TypeNewUnassignedConversation, map[string]any{
			"conversation": result.Conversation,
		}, false)
	}

	writeAck(w, map[string]any{
		"conversation": result.Conversation,
		"messages":     result.Transcript,
	})
}

func (h *ChatHandler) handleTake(ctx context.Context, w http.ResponseWriter, connID string, event chat.AdminTakeConversation) {
	user, err := h.users.Resolve(ctx, event.AdminID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if user.Role != model.UserRoleAdmin {
		writeError(ctx, w, apperrors.InvalidInput("adminId", "user is not an admin"))
		return
	}

	conv, err := h.conversations.Claim(ctx, event.AdminID, event.ConversationID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	h.bindRoom(connID, user, conv.ID)

	h.publish(ctx, redisclient.RoomChannel(conv.ID), chat.TypeAdminAssigned, map[string]any{
		"conversation": conv,
		"adminName":    user.DisplayName,
	}, false)
	h.publish(ctx, redisclient.AdminChannel(), chat.TypeConversationTaken, map[string]any{
		"conversationId": conv.ID,
		"adminId":        event.AdminID,
	}, false)

	writeAck(w, map[string]any{"conversation": conv})
}

func (h *ChatHandler) handleSend(ctx context.Context, w http.ResponseWriter, connID string, event chat.SendMessage) {
	binding, ok := h.registry.Lookup(connID)
	if !ok || binding.ConversationID == 0 {
		writeError(ctx, w, apperrors.Unbound())
		return
	}

	msg, err := h.messages.Send(ctx, binding.ConversationID, binding.UserID, event.Content)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	h.publish(ctx, redisclient.RoomChannel(binding.ConversationID), chat.TypeNewMessage, msg, false)

	writeAck(w, map[string]any{"message": msg})
}

func (h *ChatHandler) handleClose(ctx context.Context, w http.ResponseWriter, connID string) {
	binding, ok := h.registry.Lookup(connID)
	if !ok || binding.ConversationID == 0 {
		writeError(ctx, w, apperrors.Unbound())
		return
	}

	result, err := h.conversations.Close(ctx, binding.ConversationID, binding.UserID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	// A duplicate close acks fine but must not broadcast a second
	// conversation_closed.
	if !result.AlreadyClosed {
		h.publish(ctx, redisclient.RoomChannel(result.Conversation.ID), chat.TypeConversationClosed, map[string]any{
			"conversation": result.Conversation,
			"closedBy":     binding.UserID,
			"message":      service.ClosedNote,
		}, true)
	}

	h.registry.CloseRoom(result.Conversation.ID)

	writeAck(w, map[string]any{"conversation": result.Conversation})
}

func (h *ChatHandler) handleListUnassigned(ctx context.Context, w http.ResponseWriter) {
	conversations, err := h.conversations.ListUnassigned(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeAck(w, map[string]any{"conversations": conversations})
}

func (h *ChatHandler) handleCloseAll(ctx context.Context, w http.ResponseWriter, event chat.CloseAllAdminConversations) {
	user, err := h.users.Resolve(ctx, event.AdminID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if user.Role != model.UserRoleAdmin {
		writeError(ctx, w, apperrors.InvalidInput("adminId", "user is not an admin"))
		return
	}

	closed, err := h.conversations.CloseAllForAdmin(ctx, event.AdminID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	for i := range closed {
		conv := &closed[i]
		h.publish(ctx, redisclient.RoomChannel(conv.ID), chat.TypeConversationClosed, map[string]any{
			"conversation": conv,
			"closedBy":     event.AdminID,
			"message":      service.ClosedNote,
		}, true)
		h.registry.CloseRoom(conv.ID)
	}

	writeAck(w, map[string]any{"closedConversations": closed})
}

// bindRoom points a connection at a conversation, leaving any previous room
// first so membership never straddles two rooms.
func (h *ChatHandler) bindRoom(connID string, user *model.User, conversationID int64) {
	if prev, ok := h.registry.Lookup(connID); ok && prev.ConversationID != 0 && prev.ConversationID != conversationID {
		h.broker.Leave(connID, redisclient.RoomChannel(prev.ConversationID))
	}
	h.registry.Bind(connID, user.ID, user.Role, conversationID)
	h.broker.Join(connID, redisclient.RoomChannel(conversationID))
}

func (h *ChatHandler) publish(ctx context.Context, channel, eventType string, data any, final bool) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("eventType", eventType).Msg("failed to marshal broadcast payload")
		return
	}

	event := sse.Event{Type: eventType, Data: payload, Final: final}
	if err := h.broker.Publish(ctx, channel, event); err != nil {
		log.Error().Err(err).
			Str("channel", channel).
			Str("eventType", eventType).
			Msg("broadcast publish failed")
	}
}
