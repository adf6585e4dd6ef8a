// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

var ErrInvalidUserID = errors.New("invalid user id")

type UserID string

// UserRef is the public projection of a user embedded in events.
type UserRef struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// ParseUserID accepts only canonical uuids, the identity format issued by the
// account service.
func ParseUserID(s string) (UserID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", ErrInvalidUserID
	}
	return UserID(id.String()), nil
}
