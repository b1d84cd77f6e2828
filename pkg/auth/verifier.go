package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/flowdeck/realtime/pkg/types"
)

// ErrAuthentication is returned for every verification failure. Missing
// credential, signature mismatch, and structurally invalid payloads are
// deliberately indistinguishable to the caller; verification fails closed
// with no partial trust.
var ErrAuthentication = errors.New("authentication failed")

// Claims is the expected payload of a session credential issued by the
// identity provider. Only verified here, never issued or refreshed.
type Claims struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates session credentials against the shared signing secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for the given shared secret.
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Verify decodes and validates a credential, returning the identity it
// carries. Called exactly once per connection, at handshake time; a
// connection is either fully trusted or does not exist.
func (v *Verifier) Verify(credential string) (*types.Identity, error) {
	if credential == "" {
		return nil, fmt.Errorf("%w: empty credential", ErrAuthentication)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", ErrAuthentication)
	}

	if claims.Subject == "" || claims.Name == "" {
		return nil, fmt.Errorf("%w: incomplete identity claims", ErrAuthentication)
	}

	return &types.Identity{
		UserID: claims.Subject,
		Name:   claims.Name,
		Avatar: claims.Avatar,
		Email:  claims.Email,
	}, nil
}
