package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-signing-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerify_ValidCredential(t *testing.T) {
	v, err := NewVerifier(testSecret)
	require.NoError(t, err)

	credential := signToken(t, testSecret, jwt.MapClaims{
		"sub":    "user-1",
		"name":   "Ada Lovelace",
		"avatar": "https://cdn.flowdeck.app/a/ada.png",
		"email":  "ada@example.com",
	})

	identity, err := v.Verify(credential)
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity.UserID)
	assert.Equal(t, "Ada Lovelace", identity.Name)
	assert.Equal(t, "https://cdn.flowdeck.app/a/ada.png", identity.Avatar)
	assert.Equal(t, "ada@example.com", identity.Email)
}

func TestVerify_OptionalClaimsOmitted(t *testing.T) {
	v, err := NewVerifier(testSecret)
	require.NoError(t, err)

	credential := signToken(t, testSecret, jwt.MapClaims{
		"sub":  "user-2",
		"name": "Grace",
	})

	identity, err := v.Verify(credential)
	require.NoError(t, err)
	assert.Empty(t, identity.Avatar)
	assert.Empty(t, identity.Email)
}

func TestVerify_FailsClosed(t *testing.T) {
	v, err := NewVerifier(testSecret)
	require.NoError(t, err)

	valid := signToken(t, testSecret, jwt.MapClaims{
		"sub":  "user-1",
		"name": "Ada",
	})
	tampered := valid[:len(valid)-4] + "xxxx"

	tests := []struct {
		name       string
		credential string
	}{
		{"empty credential", ""},
		{"garbage", "not-a-token"},
		{
			"wrong secret",
			signToken(t, "some-other-secret", jwt.MapClaims{"sub": "user-1", "name": "Ada"}),
		},
		{"tampered signature", tampered},
		{
			"expired",
			signToken(t, testSecret, jwt.MapClaims{
				"sub":  "user-1",
				"name": "Ada",
				"exp":  time.Now().Add(-time.Hour).Unix(),
			}),
		},
		{
			"missing subject",
			signToken(t, testSecret, jwt.MapClaims{"name": "Ada"}),
		},
		{
			"missing name",
			signToken(t, testSecret, jwt.MapClaims{"sub": "user-1"}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := v.Verify(tt.credential)
			assert.Nil(t, identity)
			assert.ErrorIs(t, err, ErrAuthentication)
		})
	}
}

func TestVerify_RejectsUnsignedToken(t *testing.T) {
	v, err := NewVerifier(testSecret)
	require.NoError(t, err)

	// alg=none token assembled by hand: header {"alg":"none","typ":"JWT"}.
	unsigned := strings.Join([]string{
		"eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0",
		"eyJzdWIiOiJ1c2VyLTEiLCJuYW1lIjoiQWRhIn0",
		"",
	}, ".")

	identity, err := v.Verify(unsigned)
	assert.Nil(t, identity)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestNewVerifier_EmptySecret(t *testing.T) {
	_, err := NewVerifier("")
	assert.Error(t, err)
}
