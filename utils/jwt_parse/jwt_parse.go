package jwt_parse

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joy095/carrental/utils"
)

// Claims carried by access tokens. Subject is the principal id.
type Claims struct {
	Role utils.Role `json:"role"`
	jwt.RegisteredClaims
}

// ExtractBearer returns the token from an "Authorization: Bearer <token>" value.
func ExtractBearer(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("authorization header required")
	}
	if len(authHeader) > 7 && strings.ToLower(authHeader[:7]) == "bearer " {
		return strings.TrimSpace(authHeader[7:]), nil
	}
	return "", errors.New("invalid authorization format")
}

// ParsePrincipal validates tokenString with secret and resolves the caller.
// Tokens without a role are treated as plain users.
func ParsePrincipal(tokenString string, secret []byte) (utils.Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return utils.Principal{}, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return utils.Principal{}, errors.New("invalid token")
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return utils.Principal{}, fmt.Errorf("invalid subject claim: %w", err)
	}

	role := claims.Role
	switch role {
	case "":
		role = utils.RoleUser
	case utils.RoleUser, utils.RoleAdmin:
	default:
		// "system" is internal only and never accepted from a token.
		return utils.Principal{}, fmt.Errorf("unsupported role %q", role)
	}

	return utils.Principal{ID: id, Role: role}, nil
}

// IssueToken signs an HS256 access token for p valid for ttl.
func IssueToken(p utils.Principal, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
