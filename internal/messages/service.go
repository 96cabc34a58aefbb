// Package messages lets supporters post placards on a cause and like each
// other's messages.
package messages

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"example.com/stepcause/internal/domain"
)

// DefaultTopLimit caps Top when no limit is given.
const DefaultTopLimit = 10

// maxTopLimit bounds a caller-supplied limit.
const maxTopLimit = 100

// Service orchestrates message workflows.
type Service struct {
	store  domain.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService constructs a Service.
func NewService(store domain.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// CreateInput captures a new message from the API layer.
type CreateInput struct {
	CauseID string
	Body    string
	Kind    string
}

// ByCause lists a cause's messages, newest first.
func (s *Service) ByCause(ctx context.Context, causeID string) ([]domain.Message, error) {
	return s.store.ListMessagesByCause(ctx, causeID)
}

// ByUser lists an author's messages, newest first.
func (s *Service) ByUser(ctx context.Context, userID string) ([]domain.Message, error) {
	return s.store.ListMessagesByUser(ctx, userID)
}

// Top returns the most liked messages of a cause. A non-positive limit means
// DefaultTopLimit.
func (s *Service) Top(ctx context.Context, causeID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	if limit > maxTopLimit {
		limit = maxTopLimit
	}
	return s.store.TopMessages(ctx, causeID, limit)
}

// Create posts a message on a cause as userID. The author's current name and
// picture are copied onto the message.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*domain.Message, error) {
	body := strings.TrimSpace(in.Body)
	if in.CauseID == "" || body == "" {
		return nil, fmt.Errorf("%w: cause_id and message are required", domain.ErrInvalidArgument)
	}
	if n := utf8.RuneCountInString(body); n > domain.MaxMessageLength {
		return nil, fmt.Errorf("%w: message is %d characters, limit is %d", domain.ErrInvalidArgument, n, domain.MaxMessageLength)
	}
	kind := strings.ToLower(strings.TrimSpace(in.Kind))
	if kind == "" {
		kind = domain.MessagePlacard
	}
	if !domain.ValidMessageKind(kind) {
		return nil, fmt.Errorf("%w: unknown message type %q", domain.ErrInvalidArgument, in.Kind)
	}

	cause, err := s.store.GetCause(ctx, in.CauseID)
	if err != nil {
		return nil, err
	}
	if cause == nil {
		return nil, domain.ErrCauseNotFound
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}

	msg := domain.Message{
		ID:          uuid.NewString(),
		CauseID:     cause.ID,
		UserID:      user.ID,
		UserName:    user.Name,
		UserPicture: user.Picture,
		Body:        body,
		Kind:        kind,
		CreatedAt:   s.now().UTC(),
		LikedBy:     []string{},
	}
	if err := s.store.PutMessage(ctx, msg); err != nil {
		return nil, err
	}
	s.logger.Info("message posted",
		zap.String("message_id", msg.ID),
		zap.String("cause_id", msg.CauseID),
		zap.String("user_id", userID),
		zap.String("kind", kind))
	return &msg, nil
}

// Like records userID's like. Liking twice is a no-op.
func (s *Service) Like(ctx context.Context, userID, messageID string) (*domain.Message, error) {
	if _, err := s.store.LikeMessage(ctx, messageID, userID); err != nil {
		return nil, err
	}
	return s.get(ctx, messageID)
}

// Unlike withdraws userID's like.
func (s *Service) Unlike(ctx context.Context, userID, messageID string) (*domain.Message, error) {
	if _, err := s.store.UnlikeMessage(ctx, messageID, userID); err != nil {
		return nil, err
	}
	return s.get(ctx, messageID)
}

// Delete removes a message. Only its author may delete it.
func (s *Service) Delete(ctx context.Context, userID, messageID string) error {
	msg, err := s.get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.UserID != userID {
		return domain.ErrNotAuthorized
	}
	if _, err := s.store.DeleteMessage(ctx, messageID); err != nil {
		return err
	}
	s.logger.Info("message deleted", zap.String("message_id", messageID), zap.String("user_id", userID))
	return nil
}

func (s *Service) get(ctx context.Context, messageID string) (*domain.Message, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, domain.ErrMessageNotFound
	}
	return msg, nil
}
