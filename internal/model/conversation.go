package model

import (
	"time"
)

type Conversation struct {
	ID          int64              `db:"id" json:"id"`
	CandidateID int64              `db:"candidate_id" json:"candidateId"`
	AdminID     *int64             `db:"admin_id" json:"adminId,omitempty"`
	Status      ConversationStatus `db:"status" json:"status"`
	CreatedAt   time.Time          `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time          `db:"updated_at" json:"updatedAt"`
}

// IsClosed reports whether the conversation is terminal. A closed
// conversation is never reopened; a new join creates a new one.
func (c *Conversation) IsClosed() bool {
	return c.Status == ConversationStatusClosed
}

// AssignedTo reports whether adminID currently owns the conversation.
// Status is the authority: a stale admin_id on a closed conversation
// does not count as an active assignment.
func (c *Conversation) AssignedTo(adminID int64) bool {
	return c.Status == ConversationStatusAssigned && c.AdminID != nil && *c.AdminID == adminID
}

type CreateConversationParams struct {
	CandidateID int64
}
