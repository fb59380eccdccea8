package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUserValidate(t *testing.T) {
	now := time.Date(2025, time.June, 15, 9, 0, 0, 0, time.UTC)
	valid := NewUser("u-1", "trung", "Trung@Example.com", now, now)
	require.NoError(t, valid.Validate())
	require.Equal(t, "trung@example.com", valid.Email)

	cases := map[string]User{
		"missing id":       NewUser("", "trung", "a@b.co", now, now),
		"missing name":     NewUser("u-1", " ", "a@b.co", now, now),
		"bad email":        NewUser("u-1", "trung", "not-an-email", now, now),
		"display email":    NewUser("u-1", "trung", "Trung <a@b.co>", now, now),
		"updated < create": NewUser("u-1", "trung", "a@b.co", now, now.Add(-time.Hour)),
	}
	for name, u := range cases {
		t.Run(name, func(t *testing.T) {
			err := u.Validate()
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidUser))
			require.True(t, IsPermanent(err))
		})
	}
}

func TestUserFromJSON(t *testing.T) {
	raw := []byte(`{"user_id":"u-7","user_name":"lan","email":"lan@example.com","avatar":" a.png ","created_at":"2025-06-15T09:00:00Z","updated_at":"2025-06-16T09:00:00Z"}`)
	u, err := UserFromJSON(raw)
	require.NoError(t, err)
	require.Equal(t, "u-7", u.ID)
	require.Equal(t, "a.png", u.Avatar)

	out, err := u.ToJSON()
	require.NoError(t, err)
	again, err := UserFromJSON(out)
	require.NoError(t, err)
	require.Equal(t, u, again)

	_, err = UserFromJSON([]byte(`{"user_id":`))
	require.ErrorIs(t, err, ErrDecodeFailed)
}

func TestIsPermanent(t *testing.T) {
	require.False(t, IsPermanent(errors.New("database is locked")))
	require.False(t, IsPermanent(nil))
	require.True(t, IsPermanent(ErrHandlerNotFound))
}
