package jwt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	m := NewManager("secret", 900, 3600)

	token, err := m.GenerateAccessToken("user-1", "alice")
	require.NoError(t, err)

	claims, err := m.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice", claims.Nickname)
}

func TestVerifyRejects(t *testing.T) {
	m := NewManager("secret", 900, 3600)
	other := NewManager("other-secret", 900, 3600)
	expired := NewManager("secret", -60, 3600)

	foreign, err := other.GenerateAccessToken("user-1", "")
	require.NoError(t, err)
	old, err := expired.GenerateAccessToken("user-1", "")
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"garbage", "not-a-token", ErrInvalidToken},
		{"wrong secret", foreign, ErrInvalidToken},
		{"expired", old, ErrExpiredToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.VerifyToken(tt.token)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
