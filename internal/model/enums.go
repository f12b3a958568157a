package model

type ConversationStatus string

const (
	ConversationStatusUnassigned ConversationStatus = "unassigned"
	ConversationStatusAssigned   ConversationStatus = "assigned"
	ConversationStatusClosed     ConversationStatus = "closed"
)

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeSystem MessageType = "system"
)

type UserRole string

const (
	UserRoleCandidate UserRole = "candidate"
	UserRoleAdmin     UserRole = "admin"
)
