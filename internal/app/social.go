package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/dkeye/Hamlet/internal/core"
	"github.com/dkeye/Hamlet/internal/domain"
	"github.com/rs/zerolog/log"
)

// Social persists likes, comments and follows and propagates the results.
// With InterestList set, like and comment events go only to the post's
// audience instead of every live session.
type Social struct {
	Store        SocialStore
	Router       *Router
	InterestList bool
}

func NewSocial(store SocialStore, router *Router, interestList bool) *Social {
	return &Social{Store: store, Router: router, InterestList: interestList}
}

func (s *Social) ToggleLike(ctx context.Context, user domain.UserID, post domain.PostID) (domain.LikeChange, error) {
	ch, err := s.Store.ToggleLike(ctx, user, post)
	if err != nil {
		return domain.LikeChange{}, fmt.Errorf("toggle like: %w", err)
	}
	s.Router.Route(core.EventLike, s.audience(ctx, post), ch.Like)
	s.notify(ch.Notification)
	return ch, nil
}

func (s *Social) Comment(ctx context.Context, user domain.UserID, post domain.PostID, body string) (domain.CommentChange, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return domain.CommentChange{}, ErrEmptyComment
	}
	ch, err := s.Store.CreateComment(ctx, user, post, body)
	if err != nil {
		return domain.CommentChange{}, fmt.Errorf("create comment: %w", err)
	}
	s.Router.Route(core.EventComment, s.audience(ctx, post), ch.Comment)
	s.notify(ch.Notification)
	return ch, nil
}

// ToggleFollow only notifies the followed user; there is no public event.
func (s *Social) ToggleFollow(ctx context.Context, follower, following domain.UserID) (domain.FollowChange, error) {
	if follower == following {
		return domain.FollowChange{}, ErrSelfFollow
	}
	ch, err := s.Store.ToggleFollow(ctx, follower, following)
	if err != nil {
		return domain.FollowChange{}, fmt.Errorf("toggle follow: %w", err)
	}
	s.notify(ch.Notification)
	return ch, nil
}

func (s *Social) audience(ctx context.Context, post domain.PostID) Target {
	if !s.InterestList {
		return Everyone()
	}
	uids, err := s.Store.PostAudience(ctx, post)
	if err != nil {
		// the write already succeeded; fall back to a broadcast
		log.Warn().Err(err).Str("module", "app.social").Str("post", string(post)).Msg("post audience")
		return Everyone()
	}
	return ToUsers(uids...)
}

func (s *Social) notify(n *domain.Notification) {
	if n == nil || n.Receiver.ID == n.Sender.ID {
		return
	}
	s.Router.Route(core.EventNotification, ToUsers(n.Receiver.ID), n)
}
