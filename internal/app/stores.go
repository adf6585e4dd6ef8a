package app

import (
	"context"

	"github.com/dkeye/Hamlet/internal/domain"
)

// MessageStore is the message persistence collaborator.
type MessageStore interface {
	CreateMessage(ctx context.Context, d domain.MessageDraft) (domain.Message, error)
	// MarkRead flips read for the ids addressed to reader and returns the
	// resulting rows, including ids that were already read.
	MarkRead(ctx context.Context, reader domain.UserID, ids []domain.MessageID) ([]domain.Message, error)
	User(ctx context.Context, id domain.UserID) (domain.UserRef, error)
}

// SocialStore persists likes, comments and follows together with the
// notification each of them may create.
type SocialStore interface {
	ToggleLike(ctx context.Context, user domain.UserID, post domain.PostID) (domain.LikeChange, error)
	CreateComment(ctx context.Context, user domain.UserID, post domain.PostID, body string) (domain.CommentChange, error)
	ToggleFollow(ctx context.Context, follower, following domain.UserID) (domain.FollowChange, error)
	// PostAudience lists the author, commenters and likers of a post.
	PostAudience(ctx context.Context, post domain.PostID) ([]domain.UserID, error)
}
