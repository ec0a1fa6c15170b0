// internal/auth/token.go
package auth

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// The engine does not issue tokens. The upstream auth service signs a
// short-lived JWT per session carrying the verified identity; this package
// only checks the signature and extracts that identity.

var secret []byte

// Identity is the verified user attached to a connection.
type Identity struct {
	UserID   int64
	Username string
}

// Init loads the shared HMAC secret. Call once at startup.
func Init() {
	s := os.Getenv("AUTH_JWT_SECRET")
	if s == "" {
		log.Fatal("AUTH_JWT_SECRET is not set")
	}
	secret = []byte(s)
}

// ParseToken validates the token signature and returns the identity it
// carries: numeric user id in "sub", display name in "name".
func ParseToken(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("unexpected claims type")
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return Identity{}, fmt.Errorf("token missing subject: %w", err)
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return Identity{}, fmt.Errorf("malformed subject %q: %w", sub, err)
	}
	name, _ := claims["name"].(string)
	if name == "" {
		name = fmt.Sprintf("User_%d", userID)
	}
	return Identity{UserID: userID, Username: name}, nil
}
