package api

import (
	"context"
	"testing"
	"time"

	"github.com/edustack/forumchat/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestUserId(t *testing.T) {
	tcases := []struct {
		name     string
		ctx      context.Context
		userId   int
		expected bool
	}{
		{
			name:     "no user ID",
			ctx:      context.Background(),
			expected: false,
		},
		{
			name:     "user ID set",
			ctx:      WithUserId(context.Background(), 42),
			userId:   42,
			expected: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			userId, ok := UserId(tc.ctx)
			assert.Equal(t, tc.expected, ok, "expected UserId to return %v", tc.expected)
			assert.Equal(t, tc.userId, userId, "expected UserId to return %d", tc.userId)
		})
	}
}

func Test_hashAndVerifyPassword(t *testing.T) {
	hash, err := hashPassword("s3cret")
	assert.NoError(t, err, "expected hashing to succeed")
	assert.NotEqual(t, "s3cret", hash, "expected hash to differ from plaintext")

	assert.True(t, verifyPassword(hash, "s3cret"), "expected matching password to verify")
	assert.False(t, verifyPassword(hash, "wrong"), "expected non-matching password to fail")
}

func Test_createAndExtractJwt(t *testing.T) {
	app := &ForumChatApp{signingKey: []byte("test-signing-key")}

	u := types.User{
		Id:           7,
		Username:     "prof",
		EmailAddress: "prof@example.edu",
		Role:         types.RoleFaculty,
	}

	token, err := app.createJwtForSession(u, defaultJwtExpiration)
	assert.NoError(t, err, "expected token creation to succeed")

	userId, err := app.extractUserIdFromToken(token)
	assert.NoError(t, err, "expected token to parse")
	assert.Equal(t, u.Id, userId, "expected user id claim to round trip")
}

func Test_extractUserIdFromToken_Invalid(t *testing.T) {
	app := &ForumChatApp{signingKey: []byte("test-signing-key")}

	_, err := app.extractUserIdFromToken("not-a-token")
	assert.Error(t, err, "expected malformed token to be rejected")

	other := &ForumChatApp{signingKey: []byte("different-key")}
	token, err := other.createJwtForSession(types.User{Id: 1}, defaultJwtExpiration)
	assert.NoError(t, err)

	_, err = app.extractUserIdFromToken(token)
	assert.Error(t, err, "expected token signed with a different key to be rejected")
}

func Test_expiredJwtRejected(t *testing.T) {
	app := &ForumChatApp{signingKey: []byte("test-signing-key")}

	token, err := app.createJwtForSession(types.User{Id: 1}, -time.Minute)
	assert.NoError(t, err)

	_, err = app.extractUserIdFromToken(token)
	assert.Error(t, err, "expected expired token to be rejected")
}
