package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5" // HS256 signing and verification
)

// JWTResolver verifies HS256 access tokens locally with a shared secret.
// It is used when the auth service is not reachable from the deployment
// (AUTH_MODE=jwt) and in tests.  Profile lookups only echo the user ID
// back, since the token carries no email.
type JWTResolver struct {
	secret []byte
}

// NewJWTResolver returns a resolver that accepts tokens signed with secret.
func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

// ResolveIdentity parses the token and extracts the user ID and role.  The
// user ID is read from "userId" (auth service payload) and falls back to
// the standard "sub" claim.
func (r *JWTResolver) ResolveIdentity(_ context.Context, token string) (Identity, error) {
	tok, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		// Reject anything that is not HMAC so a "none" or RSA token
		// cannot be smuggled in.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return Identity{}, ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	id := stringClaim(claims, "userId")
	if id == "" {
		id = stringClaim(claims, "sub")
	}
	role := ParseRole(stringClaim(claims, "role"))
	if id == "" || role == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: id, Role: role}, nil
}

// LookupProfile returns a minimal profile for any non-empty user ID.
func (r *JWTResolver) LookupProfile(_ context.Context, userID string) (Profile, error) {
	if userID == "" {
		return Profile{}, ErrUserNotFound
	}
	return Profile{UserID: userID}, nil
}

// IssueToken builds and signs an HS256 token carrying sub, userId, role,
// exp and iat.  It mirrors the payload the auth service issues.
func IssueToken(secret, userID string, role Role, ttl time.Duration) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("user id is required")
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":    userID,
		"userId": userID,
		"role":   string(role),
		"exp":    exp.Unix(),
		"iat":    now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// stringClaim reads a claim as a string.  Numeric IDs are formatted so a
// token with a numeric sub still resolves.
func stringClaim(claims jwt.MapClaims, key string) string {
	switch v := claims[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}
