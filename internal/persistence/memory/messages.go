package memory

import (
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"

	"example.com/stepcause/internal/domain"
)

// GetMessage implements domain.MessageRepository. A missing message yields nil, nil.
func (s *Store) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	out := copyMessage(msg)
	return &out, nil
}

// PutMessage implements domain.MessageRepository.
func (s *Store) PutMessage(ctx context.Context, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(msg.ID) == "" {
		msg.ID = uuid.NewString()
	}
	s.messages[msg.ID] = copyMessage(msg)
	return nil
}

// DeleteMessage implements domain.MessageRepository.
func (s *Store) DeleteMessage(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[id]; !ok {
		return false, nil
	}
	delete(s.messages, id)
	return true, nil
}

// ListMessagesByCause implements domain.MessageRepository.
func (s *Store) ListMessagesByCause(ctx context.Context, causeID string) ([]domain.Message, error) {
	out := s.filterMessages(func(m domain.Message) bool { return m.CauseID == causeID })
	sortNewestFirst(out)
	return out, nil
}

// ListMessagesByUser implements domain.MessageRepository.
func (s *Store) ListMessagesByUser(ctx context.Context, userID string) ([]domain.Message, error) {
	out := s.filterMessages(func(m domain.Message) bool { return m.UserID == userID })
	sortNewestFirst(out)
	return out, nil
}

// TopMessages implements domain.MessageRepository. Ties go to the newer message.
func (s *Store) TopMessages(ctx context.Context, causeID string, limit int) ([]domain.Message, error) {
	out := s.filterMessages(func(m domain.Message) bool { return m.CauseID == causeID })
	sortNewestFirst(out)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Likes() > out[j].Likes() })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// LikeMessage implements domain.MessageRepository.
func (s *Store) LikeMessage(ctx context.Context, id, userID string) (bool, error) {
	return s.editLikes(id, func(m *domain.Message) bool {
		if m.LikedByUser(userID) {
			return false
		}
		m.LikedBy = append(m.LikedBy, userID)
		return true
	})
}

// UnlikeMessage implements domain.MessageRepository.
func (s *Store) UnlikeMessage(ctx context.Context, id, userID string) (bool, error) {
	return s.editLikes(id, func(m *domain.Message) bool {
		idx := slices.Index(m.LikedBy, userID)
		if idx < 0 {
			return false
		}
		m.LikedBy = slices.Delete(m.LikedBy, idx, idx+1)
		return true
	})
}

func (s *Store) editLikes(id string, edit func(*domain.Message) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return false, domain.ErrMessageNotFound
	}
	msg = copyMessage(msg)
	if !edit(&msg) {
		return false, nil
	}
	s.messages[id] = msg
	return true, nil
}

func (s *Store) filterMessages(keep func(domain.Message) bool) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Message, 0)
	for _, msg := range s.messages {
		if keep(msg) {
			out = append(out, copyMessage(msg))
		}
	}
	return out
}

func sortNewestFirst(list []domain.Message) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID > list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

func copyMessage(m domain.Message) domain.Message {
	m.LikedBy = slices.Clone(m.LikedBy)
	return m
}
