package causes

import (
	"context"
	"strings"

	"example.com/stepcause/internal/domain"
)

// Profile is a user together with the causes they support.
type Profile struct {
	User   domain.User
	Causes []domain.Cause
}

// ProfileInput carries profile edits; empty fields are left unchanged.
type ProfileInput struct {
	Name    string
	Picture string
}

// Profile returns the user and the causes listing them as a supporter.
func (s *Service) Profile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	supported, err := s.SupportedBy(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{User: *user, Causes: supported}, nil
}

// UpdateProfile sets the display name and picture.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*Profile, error) {
	name := strings.TrimSpace(in.Name)
	picture := strings.TrimSpace(in.Picture)
	err := s.withUser(ctx, userID, func(user *domain.User) bool {
		changed := false
		if name != "" && name != user.Name {
			user.Name = name
			changed = true
		}
		if picture != "" && picture != user.Picture {
			user.Picture = picture
			changed = true
		}
		return changed
	})
	if err != nil {
		return nil, err
	}
	return s.Profile(ctx, userID)
}

// SupportedBy lists the causes whose supporter list contains userID, inactive
// ones included.
func (s *Service) SupportedBy(ctx context.Context, userID string) ([]domain.Cause, error) {
	all, err := s.store.ListCauses(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Cause, 0)
	for _, c := range all {
		if c.HasSupporter(userID) {
			out = append(out, c)
		}
	}
	return out, nil
}
