package repository

import (
	"database/sql"
	"errors"
)

// HandleNotFound processes a database query result, converting sql.ErrNoRows
// to a nil result without error. Find* operations use it so a missing row is
// a lookup miss, not a failure.
//
// Usage:
//
//	var conv model.Conversation
//	err := r.db.GetContext(ctx, &conv, query, args...)
//	return HandleNotFound(&conv, err)
func HandleNotFound[T any](result *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}
