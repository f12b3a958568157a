package chat

import (
	"encoding/json"

	apperrors "github.com/hireloop/chat-relay/internal/errors"
	"github.com/hireloop/chat-relay/internal/util"
)

// Inbound event types accepted on the event endpoint.
const (
	TypeJoinChat                   = "join_chat"
	TypeAdminTakeConversation      = "admin_take_conversation"
	TypeSendMessage                = "send_message"
	TypeCloseConversation          = "close_conversation"
	TypeGetUnassignedConversations = "get_unassigned_conversations"
	TypeCloseAllAdminConversations = "close_all_admin_conversations"
)

// Outbound broadcast event types.
const (
	TypeConnected                 = "connected"
	TypeNewUnassignedConversation = "new_unassigned_conversation"
	TypeAdminAssigned             = "admin_assigned"
	TypeConversationTaken         = "conversation_taken"
	TypeNewMessage                = "new_message"
	TypeConversationClosed        = "conversation_closed"
)

// Envelope is the wire form of one inbound client event.
type Envelope struct {
	Type         string          `json:"type"`
	ConnectionID string          `json:"connectionId"`
	Payload      json.RawMessage `json:"payload"`
}

// Event is the closed set of decoded inbound events. Dispatch is a single
// exhaustive type switch in the gateway; a typo'd event name fails decoding
// instead of vanishing into a no-op.
type Event interface {
	isEvent()
}

type JoinChat struct {
	UserID int64 `json:"userId"`
}

type AdminTakeConversation struct {
	AdminID        int64 `json:"adminId"`
	ConversationID int64 `json:"conversationId"`
}

type SendMessage struct {
	Content string `json:"content"`
}

type CloseConversation struct{}

type GetUnassignedConversations struct{}

type CloseAllAdminConversations struct {
	AdminID int64 `json:"adminId"`
}

func (JoinChat) isEvent()                   {}
func (AdminTakeConversation) isEvent()      {}
func (SendMessage) isEvent()                {}
func (CloseConversation) isEvent()          {}
func (GetUnassignedConversations) isEvent() {}
func (CloseAllAdminConversations) isEvent() {}

// Decode validates an envelope and produces the typed event for its kind.
func Decode(env Envelope) (Event, error) {
	if env.ConnectionID == "" {
		return nil, apperrors.MissingRequired("connectionId")
	}
	if !util.IsValidUUID(env.ConnectionID) {
		return nil, apperrors.InvalidInput("connectionId", "must be a UUID")
	}

	payload := env.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	switch env.Type {
	case TypeJoinChat:
		var ev JoinChat
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, apperrors.InvalidInput("payload", "malformed join_chat payload")
		}
		if ev.UserID == 0 {
			return nil, apperrors.MissingRequired("userId")
		}
		return ev, nil

	case TypeAdminTakeConversation:
		var ev AdminTakeConversation
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, apperrors.InvalidInput("payload", "malformed admin_take_conversation payload")
		}
		if ev.AdminID == 0 {
			return nil, apperrors.MissingRequired("adminId")
		}
		if ev.ConversationID == 0 {
			return nil, apperrors.MissingRequired("conversationId")
		}
		return ev, nil

	case TypeSendMessage:
		var ev SendMessage
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, apperrors.InvalidInput("payload", "malformed send_message payload")
		}
		return ev, nil

	case TypeCloseConversation:
		return CloseConversation{}, nil

	case TypeGetUnassignedConversations:
		return GetUnassignedConversations{}, nil

	case TypeCloseAllAdminConversations:
		var ev CloseAllAdminConversations
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, apperrors.InvalidInput("payload", "malformed close_all_admin_conversations payload")
		}
		if ev.AdminID == 0 {
			return nil, apperrors.MissingRequired("adminId")
		}
		return ev, nil

	case "":
		return nil, apperrors.MissingRequired("type")

	default:
		return nil, apperrors.InvalidInput("type", "unknown event type "+env.Type)
	}
}
