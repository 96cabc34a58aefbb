// Package domain holds the entities, errors and persistence ports of the step
// attribution service.
package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUserNotFound is returned when a user cannot be located.
	ErrUserNotFound = errors.New("user not found")
	// ErrCauseNotFound is returned when a cause cannot be located.
	ErrCauseNotFound = errors.New("cause not found")
	// ErrNotAuthorized is returned when a user mutates a cause they did not create.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrBatchRejected marks an activity batch that failed the integrity checks.
	ErrBatchRejected = errors.New("activity batch rejected")
	// ErrMessageNotFound is returned when a message cannot be located.
	ErrMessageNotFound = errors.New("message not found")
	// ErrInvalidArgument marks caller input outside the accepted range.
	ErrInvalidArgument = errors.New("invalid argument")
)

// UserRepository persists user aggregates.
type UserRepository interface {
	GetUser(ctx context.Context, id string) (*User, error)
	PutUser(ctx context.Context, user User) error
}

// CauseRepository persists causes. PutCause writes the editable fields only; the
// step total moves through ApplyAttribution and the supporter list through
// AddSupporter and RemoveSupporter, so a stale copy cannot overwrite either.
type CauseRepository interface {
	GetCause(ctx context.Context, id string) (*Cause, error)
	PutCause(ctx context.Context, cause Cause) error
	// AddSupporter appends userID unless present and reports whether it changed
	// the list. A missing cause yields ErrCauseNotFound.
	AddSupporter(ctx context.Context, causeID, userID string, at time.Time) (bool, error)
	// RemoveSupporter drops userID and reports whether it was present.
	RemoveSupporter(ctx context.Context, causeID, userID string, at time.Time) (bool, error)
	DeleteCause(ctx context.Context, id string) (bool, error)
	ListCauses(ctx context.Context) ([]Cause, error)
}

// StepRepository reads immutable step records.
type StepRepository interface {
	ListStepsByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]StepRecord, *Cursor, error)
	ListStepsByCause(ctx context.Context, causeID string) ([]StepRecord, error)
	ListStepsByDate(ctx context.Context, date string) ([]StepRecord, error)
}

// MessageRepository persists cause messages. Likes change in place so concurrent
// likers do not overwrite each other.
type MessageRepository interface {
	GetMessage(ctx context.Context, id string) (*Message, error)
	PutMessage(ctx context.Context, msg Message) error
	DeleteMessage(ctx context.Context, id string) (bool, error)
	// ListMessagesByCause returns the cause's messages, newest first.
	ListMessagesByCause(ctx context.Context, causeID string) ([]Message, error)
	// ListMessagesByUser returns the author's messages, newest first.
	ListMessagesByUser(ctx context.Context, userID string) ([]Message, error)
	// TopMessages returns up to limit messages of the cause ordered by likes.
	TopMessages(ctx context.Context, causeID string, limit int) ([]Message, error)
	// LikeMessage and UnlikeMessage report whether the like set changed. A
	// missing message yields ErrMessageNotFound.
	LikeMessage(ctx context.Context, id, userID string) (bool, error)
	UnlikeMessage(ctx context.Context, id, userID string) (bool, error)
}

// AttributionStore applies an attribution write-set atomically: user total and
// cursors, cause totals, and the step records.
type AttributionStore interface {
	ApplyAttribution(ctx context.Context, attribution Attribution) error
}

// Store is the union of the persistence ports.
type Store interface {
	UserRepository
	CauseRepository
	StepRepository
	MessageRepository
	AttributionStore
}
