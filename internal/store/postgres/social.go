package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Hamlet/internal/domain"
	"github.com/jackc/pgx/v5"
)

const insertNotification = `
INSERT INTO notifications (sender_id, receiver_id, type, post_id, comment_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING id::text, created_at`

const postAudience = `
SELECT user_id::text FROM posts WHERE id = $1
UNION
SELECT user_id::text FROM comments WHERE post_id = $1
UNION
SELECT user_id::text FROM likes WHERE post_id = $1`

// ToggleLike removes the like when present, otherwise inserts it and
// notifies the post author. Both branches run in one transaction.
func (s *Store) ToggleLike(ctx context.Context, user domain.UserID, post domain.PostID) (domain.LikeChange, error) {
	var ch domain.LikeChange
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		liker, err := s.user(ctx, tx, user)
		if err != nil {
			return err
		}
		author, err := postAuthor(ctx, tx, post)
		if err != nil {
			return err
		}
		ch.Like = domain.Like{PostID: post, User: liker}

		var id string
		err = tx.QueryRow(ctx, `DELETE FROM likes WHERE user_id = $1 AND post_id = $2 RETURNING id::text`,
			string(user), string(post)).Scan(&id)
		switch {
		case err == nil:
			ch.Like.ID = id
			ch.Like.Deleted = true
			return nil
		case !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("delete like: %w", err)
		}

		if err := tx.QueryRow(ctx, `INSERT INTO likes (user_id, post_id) VALUES ($1, $2) RETURNING id::text, created_at`,
			string(user), string(post)).Scan(&ch.Like.ID, &ch.Like.LikedAt); err != nil {
			return fmt.Errorf("insert like: %w", err)
		}
		ch.Notification, err = s.notify(ctx, tx, domain.NotifyLike, liker, author, &post, nil)
		return err
	})
	if err != nil {
		return domain.LikeChange{}, fmt.Errorf("toggle like: %w", translate(err))
	}
	return ch, nil
}

func (s *Store) CreateComment(ctx context.Context, user domain.UserID, post domain.PostID, body string) (domain.CommentChange, error) {
	var ch domain.CommentChange
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		commenter, err := s.user(ctx, tx, user)
		if err != nil {
			return err
		}
		author, err := postAuthor(ctx, tx, post)
		if err != nil {
			return err
		}
		var id string
		if err := tx.QueryRow(ctx, `INSERT INTO comments (user_id, post_id, comment) VALUES ($1, $2, $3) RETURNING id::text, created_at`,
			string(user), string(post), body).Scan(&id, &ch.Comment.CreatedAt); err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
		cid := domain.CommentID(id)
		ch.Comment.ID = cid
		ch.Comment.PostID = post
		ch.Comment.Author = commenter
		ch.Comment.Body = body
		ch.Notification, err = s.notify(ctx, tx, domain.NotifyComment, commenter, author, &post, &cid)
		return err
	})
	if err != nil {
		return domain.CommentChange{}, fmt.Errorf("create comment: %w", translate(err))
	}
	return ch, nil
}

// ToggleFollow flips the follow edge; following notifies, unfollowing does not.
func (s *Store) ToggleFollow(ctx context.Context, follower, following domain.UserID) (domain.FollowChange, error) {
	var ch domain.FollowChange
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		from, err := s.user(ctx, tx, follower)
		if err != nil {
			return err
		}
		if _, err := s.user(ctx, tx, following); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM follow WHERE follower_id = $1 AND following_id = $2`,
			string(follower), string(following))
		if err != nil {
			return fmt.Errorf("delete follow: %w", err)
		}
		if tag.RowsAffected() > 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `INSERT INTO follow (follower_id, following_id) VALUES ($1, $2)`,
			string(follower), string(following)); err != nil {
			return fmt.Errorf("insert follow: %w", err)
		}
		ch.Following = true
		ch.Notification, err = s.notify(ctx, tx, domain.NotifyFollow, from, following, nil, nil)
		return err
	})
	if err != nil {
		return domain.FollowChange{}, fmt.Errorf("toggle follow: %w", translate(err))
	}
	return ch, nil
}

func (s *Store) PostAudience(ctx context.Context, post domain.PostID) ([]domain.UserID, error) {
	rows, err := s.db.Query(ctx, postAudience, string(post))
	if err != nil {
		return nil, fmt.Errorf("post audience: %w", translate(err))
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("post audience rows: %w", translate(err))
	}
	out := make([]domain.UserID, len(ids))
	for i, id := range ids {
		out[i] = domain.UserID(id)
	}
	return out, nil
}

func postAuthor(ctx context.Context, q querier, post domain.PostID) (domain.UserID, error) {
	var author string
	if err := q.QueryRow(ctx, `SELECT user_id::text FROM posts WHERE id = $1`, string(post)).Scan(&author); err != nil {
		return "", fmt.Errorf("select post: %w", err)
	}
	return domain.UserID(author), nil
}

// notify inserts a notification unless sender and receiver are the same user,
// in which case it returns nil.
func (s *Store) notify(
	ctx context.Context,
	tx pgx.Tx,
	kind domain.NotificationKind,
	sender domain.UserRef,
	receiver domain.UserID,
	post *domain.PostID,
	comment *domain.CommentID,
) (*domain.Notification, error) {
	if sender.ID == receiver {
		return nil, nil
	}
	to, err := s.user(ctx, tx, receiver)
	if err != nil {
		return nil, err
	}
	var (
		id        string
		createdAt time.Time
	)
	if err := tx.QueryRow(ctx, insertNotification,
		string(sender.ID), string(receiver), string(kind), optional(post), optional(comment),
	).Scan(&id, &createdAt); err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	return &domain.Notification{
		ID:        domain.NotificationID(id),
		Kind:      kind,
		Sender:    sender,
		Receiver:  to,
		PostID:    post,
		CommentID: comment,
		CreatedAt: createdAt,
	}, nil
}

func optional[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
