package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_NormalizesUsername(t *testing.T) {
	env := newTestEnv(t)

	u, err := env.auth.Register(context.Background(), "  Alice ", "pw1")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.NotEqual(t, "pw1", u.PasswordHash)

	stored, err := env.users.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, stored.ID)
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"empty username", "", "pw"},
		{"blank username", "   ", "pw"},
		{"empty password", "alice", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.auth.Register(context.Background(), tc.username, tc.password)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, "Username and password are required.", Message(err))
		})
	}
}

func TestRegister_Conflict(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")

	for _, name := range []string{"alice", "ALICE", " Alice "} {
		_, err := env.auth.Register(context.Background(), name, "other")
		assert.ErrorIs(t, err, ErrConflict, name)
		assert.Equal(t, "Username already exists.", Message(err))
	}
}

func TestRegister_DistinctUsersSucceedOnce(t *testing.T) {
	env := newTestEnv(t)
	seen := map[int64]bool{}
	for _, name := range []string{"a", "b", "c", "d"} {
		id := env.register(t, name)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	id := env.register(t, "alice")
	ctx := context.Background()

	u, err := env.auth.Login(ctx, " ALICE", "pw-alice")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, "alice", u.Username)

	_, wrongPassword := env.auth.Login(ctx, "alice", "nope")
	_, unknownUser := env.auth.Login(ctx, "bob", "pw-alice")
	_, empty := env.auth.Login(ctx, "", "")

	for _, err := range []error{wrongPassword, unknownUser, empty} {
		assert.ErrorIs(t, err, ErrAuth)
		assert.Equal(t, "Invalid credentials.", err.Error())
	}
}
