package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/Hamlet/internal/adapters/signal"
	"github.com/dkeye/Hamlet/internal/app"
	"github.com/dkeye/Hamlet/internal/app/orch"
	"github.com/dkeye/Hamlet/internal/auth"
	"github.com/dkeye/Hamlet/internal/core"
	"github.com/dkeye/Hamlet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handlers serves the REST surface. Every write goes to the store first and
// only then fans out over the websocket sessions.
type Handlers struct {
	Orch *orch.Orchestrator
}

func success(data any) gin.H { return gin.H{"status": "success", "data": data} }

func failure(err error) gin.H { return gin.H{"status": "error", "message": publicMessage(err)} }

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, success(h.Orch.Stats()))
}

func (h *Handlers) Presence(c *gin.Context) {
	c.JSON(http.StatusOK, success(h.Orch.Presence.Online()))
}

func (h *Handlers) SendMessage(c *gin.Context) {
	var d domain.MessageDraft
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid body"})
		return
	}
	msg, err := h.Orch.Messaging.Send(c.Request.Context(), currentUser(c), d)
	if err != nil {
		h.fail(c, "send message", err)
		return
	}
	c.JSON(http.StatusCreated, success(msg))
}

func (h *Handlers) MarkRead(c *gin.Context) {
	var req core.ReadMessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid body"})
		return
	}
	msgs, err := h.Orch.Messaging.MarkRead(c.Request.Context(), currentUser(c), req.IDs)
	if err != nil {
		h.fail(c, "mark read", err)
		return
	}
	c.JSON(http.StatusOK, success(msgs))
}

func (h *Handlers) ToggleLike(c *gin.Context) {
	ch, err := h.Orch.Social.ToggleLike(c.Request.Context(), currentUser(c), domain.PostID(c.Param("id")))
	if err != nil {
		h.fail(c, "toggle like", err)
		return
	}
	c.JSON(http.StatusOK, success(ch.Like))
}

func (h *Handlers) Comment(c *gin.Context) {
	var req struct {
		Comment string `json:"comment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid body"})
		return
	}
	ch, err := h.Orch.Social.Comment(c.Request.Context(), currentUser(c), domain.PostID(c.Param("id")), req.Comment)
	if err != nil {
		h.fail(c, "comment", err)
		return
	}
	c.JSON(http.StatusCreated, success(ch.Comment))
}

func (h *Handlers) ToggleFollow(c *gin.Context) {
	target, err := domain.ParseUserID(c.Param("id"))
	if err != nil {
		h.fail(c, "toggle follow", err)
		return
	}
	ch, err := h.Orch.Social.ToggleFollow(c.Request.Context(), currentUser(c), target)
	if err != nil {
		h.fail(c, "toggle follow", err)
		return
	}
	c.JSON(http.StatusOK, success(gin.H{"following": ch.Following}))
}

func (h *Handlers) fail(c *gin.Context, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("op", op).Msg("request failed")
	}
	c.JSON(status, failure(err))
}

func currentUser(c *gin.Context) domain.UserID {
	uid, _ := c.Get(signal.UserKey)
	id, _ := uid.(domain.UserID)
	return id
}

var badRequest = []error{
	domain.ErrRecipientRequired,
	domain.ErrEmptyMessage,
	domain.ErrInvalidKind,
	domain.ErrInvalidUserID,
	app.ErrEmptyBatch,
	app.ErrEmptyComment,
	app.ErrSelfFollow,
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, app.ErrNotFound):
		return http.StatusNotFound
	}
	for _, e := range badRequest {
		if errors.Is(err, e) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func publicMessage(err error) string {
	if statusFor(err) == http.StatusInternalServerError {
		return "internal error"
	}
	for _, e := range append(badRequest, auth.ErrUnauthenticated, app.ErrNotFound) {
		if errors.Is(err, e) {
			return e.Error()
		}
	}
	return err.Error()
}
