package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"example.com/stepcause/internal/domain"
)

const messageColumns = `message_id, cause_id, user_id, user_name, user_picture, body, kind, liked_by, created_at`

// GetMessage retrieves a message by ID. A missing message yields nil, nil.
func (r *Repository) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE message_id=$1`, id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// PutMessage inserts a message. Messages are immutable apart from likes.
func (r *Repository) PutMessage(ctx context.Context, msg domain.Message) error {
	likedBy := msg.LikedBy
	if likedBy == nil {
		likedBy = []string{}
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO messages (`+messageColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		msg.ID, msg.CauseID, msg.UserID, msg.UserName, msg.UserPicture, msg.Body, msg.Kind, likedBy, msg.CreatedAt)
	return err
}

// DeleteMessage removes a message and reports whether it existed.
func (r *Repository) DeleteMessage(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE message_id=$1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListMessagesByCause returns a cause's messages newest first.
func (r *Repository) ListMessagesByCause(ctx context.Context, causeID string) ([]domain.Message, error) {
	return r.queryMessages(ctx, `SELECT `+messageColumns+` FROM messages
        WHERE cause_id=$1 ORDER BY created_at DESC, message_id DESC`, causeID)
}

// ListMessagesByUser returns an author's messages newest first.
func (r *Repository) ListMessagesByUser(ctx context.Context, userID string) ([]domain.Message, error) {
	return r.queryMessages(ctx, `SELECT `+messageColumns+` FROM messages
        WHERE user_id=$1 ORDER BY created_at DESC, message_id DESC`, userID)
}

// TopMessages returns the most liked messages of a cause.
func (r *Repository) TopMessages(ctx context.Context, causeID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = maxPage
	}
	return r.queryMessages(ctx, `SELECT `+messageColumns+` FROM messages
        WHERE cause_id=$1 ORDER BY cardinality(liked_by) DESC, created_at DESC, message_id DESC
        LIMIT $2`, causeID, limit)
}

// LikeMessage adds userID to the message's likes in place.
func (r *Repository) LikeMessage(ctx context.Context, id, userID string) (bool, error) {
	return r.editLikes(ctx, `UPDATE messages SET liked_by = array_append(liked_by, $2)
        WHERE message_id=$1 AND NOT ($2 = ANY(liked_by))`, id, userID)
}

// UnlikeMessage removes userID from the message's likes in place.
func (r *Repository) UnlikeMessage(ctx context.Context, id, userID string) (bool, error) {
	return r.editLikes(ctx, `UPDATE messages SET liked_by = array_remove(liked_by, $2)
        WHERE message_id=$1 AND $2 = ANY(liked_by)`, id, userID)
}

func (r *Repository) editLikes(ctx context.Context, stmt, id, userID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, stmt, id, userID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM messages WHERE message_id=$1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, domain.ErrMessageNotFound
	}
	return false, nil
}

func (r *Repository) queryMessages(ctx context.Context, query string, args ...interface{}) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func scanMessage(row pgx.Row) (domain.Message, error) {
	var m domain.Message
	err := row.Scan(&m.ID, &m.CauseID, &m.UserID, &m.UserName, &m.UserPicture, &m.Body, &m.Kind, &m.LikedBy, &m.CreatedAt)
	return m, err
}
