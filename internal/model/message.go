package model

import (
	"encoding/json"
	"time"
)

type Message struct {
	ID             int64       `db:"id" json:"id"`
	ConversationID int64       `db:"conversation_id" json:"conversationId"`
	SenderID       int64       `db:"sender_id" json:"senderId"`
	SenderName     string      `db:"sender_name" json:"senderName"`
	SenderRole     UserRole    `db:"sender_role" json:"senderRole"`
	Content        string      `db:"content" json:"content"`
	Type           MessageType `db:"type" json:"type"`
	CreatedAt      time.Time   `db:"created_at" json:"createdAt"`
}

// ToEventData returns the JSON payload broadcast for new_message events.
func (m *Message) ToEventData() json.RawMessage {
	data, _ := json.Marshal(m)
	return data
}

type CreateMessageParams struct {
	ConversationID int64
	SenderID       int64
	SenderName     string
	SenderRole     UserRole
	Content        string
	Type           MessageType
}
