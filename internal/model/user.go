package model

import (
	"time"
)

// User is a read-only view of the ATS users table. The chat relay only
// resolves display names and roles; account management lives elsewhere.
type User struct {
	ID          int64     `db:"id" json:"id"`
	DisplayName string    `db:"display_name" json:"displayName"`
	Role        UserRole  `db:"role" json:"role"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}
