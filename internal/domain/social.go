package domain

import "time"

type (
	PostID         string
	CommentID      string
	NotificationID string
)

type NotificationKind string

const (
	NotifyLike    NotificationKind = "like"
	NotifyComment NotificationKind = "comment"
	NotifyFollow  NotificationKind = "follow"
)

type Notification struct {
	ID        NotificationID   `json:"id"`
	Kind      NotificationKind `json:"type"`
	Sender    UserRef          `json:"sender"`
	Receiver  UserRef          `json:"receiver"`
	PostID    *PostID          `json:"post_id,omitempty"`
	CommentID *CommentID       `json:"comment_id,omitempty"`
	Seen      bool             `json:"is_seen"`
	CreatedAt time.Time        `json:"created_at"`
}

// Like doubles as the unlike event when Deleted is set.
type Like struct {
	ID      string    `json:"id,omitempty"`
	PostID  PostID    `json:"post_id"`
	User    UserRef   `json:"user"`
	LikedAt time.Time `json:"liked_at,omitzero"`
	Deleted bool      `json:"deleted"`
}

type Comment struct {
	ID        CommentID `json:"id"`
	PostID    PostID    `json:"post_id"`
	Author    UserRef   `json:"author"`
	Body      string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// LikeChange is the persisted outcome of a like toggle.
type LikeChange struct {
	Like         Like
	Notification *Notification
}

type CommentChange struct {
	Comment      Comment
	Notification *Notification
}

type FollowChange struct {
	Following    bool
	Notification *Notification
}
