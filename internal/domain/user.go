// Package domain holds the user profile model and the error vocabulary
// shared by storage, handlers and transports.
package domain

import (
	"encoding/json"
	"net/mail"
	"strings"
	"time"

	"go.trai.ch/zerr"
)

// User is a user profile as stored by the service.
type User struct {
	ID        string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Email     string    `json:"email"`
	Avatar    string    `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewUser builds a user with normalised fields. It does not validate.
func NewUser(id, userName, email string, createdAt, updatedAt time.Time) User {
	return User{
		ID:        strings.TrimSpace(id),
		UserName:  strings.TrimSpace(userName),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		CreatedAt: createdAt.UTC(),
		UpdatedAt: updatedAt.UTC(),
	}
}

// Validate checks the user invariants.
func (u User) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return zerr.Wrap(ErrInvalidUser, "user id is required")
	}
	if strings.TrimSpace(u.UserName) == "" {
		return zerr.With(zerr.Wrap(ErrInvalidUser, "user name is required"), "user_id", u.ID)
	}
	addr, err := mail.ParseAddress(u.Email)
	if err != nil || addr.Address != u.Email {
		return zerr.With(zerr.Wrap(ErrInvalidUser, "email is malformed"), "user_id", u.ID)
	}
	if !u.CreatedAt.IsZero() && !u.UpdatedAt.IsZero() && u.UpdatedAt.Before(u.CreatedAt) {
		return zerr.With(zerr.Wrap(ErrInvalidUser, "updated_at precedes created_at"), "user_id", u.ID)
	}
	return nil
}

// ToJSON encodes the user.
func (u User) ToJSON() ([]byte, error) {
	return json.Marshal(u)
}

// UserFromJSON decodes and validates a user.
func UserFromJSON(raw []byte) (User, error) {
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return User{}, zerr.Wrap(ErrDecodeFailed, err.Error())
	}
	u = NewUser(u.ID, u.UserName, u.Email, u.CreatedAt, u.UpdatedAt).withAvatar(u.Avatar)
	if err := u.Validate(); err != nil {
		return User{}, err
	}
	return u, nil
}

func (u User) withAvatar(avatar string) User {
	u.Avatar = strings.TrimSpace(avatar)
	return u
}

// NewerThan reports whether u carries a later modification than other.
func (u User) NewerThan(other User) bool {
	return u.UpdatedAt.After(other.UpdatedAt)
}
