package domain

import (
	"slices"
	"time"
)

// Message kinds a supporter can post on a cause.
const (
	MessagePlacard = "placard"
	MessageShout   = "shout"
	MessageSupport = "support"
)

// MaxMessageLength bounds a message body in characters.
const MaxMessageLength = 500

// Message is a short placard posted on a cause. Author name and picture are
// copied at posting time.
type Message struct {
	ID          string
	CauseID     string
	UserID      string
	UserName    string
	UserPicture string
	Body        string
	Kind        string
	CreatedAt   time.Time
	LikedBy     []string
}

// Likes is the number of distinct users who liked the message.
func (m Message) Likes() int {
	return len(m.LikedBy)
}

// LikedByUser reports whether userID has liked the message.
func (m Message) LikedByUser(userID string) bool {
	return slices.Contains(m.LikedBy, userID)
}

// ValidMessageKind reports whether kind is one of the known message kinds.
func ValidMessageKind(kind string) bool {
	switch kind {
	case MessagePlacard, MessageShout, MessageSupport:
		return true
	}
	return false
}
