// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lernspiel/arena/internal/models"
)

// privateKey and publicKey sign and verify JWT tokens.
var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// tokenTTL is how long issued tokens live; zero means no expiry claim.
	tokenTTL time.Duration
)

// Init generates a fresh ed25519 key pair at runtime and sets the token TTL
// from the TOKEN_EXPIRE_TIME env var ("never" or empty disables expiry).
func Init() error {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("generate ed25519 key pair: %w", err)
	}
	return parseTokenTTL()
}

// InitFromPath loads ed25519 keys from files instead of generating them, so
// tokens survive restarts.
func InitFromPath(privatePath, publicPath string) error {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("read public key file: %w", err)
	}
	privateKey = ed25519.PrivateKey(privateKeyData)
	publicKey = ed25519.PublicKey(publicKeyData)
	return parseTokenTTL()
}

func parseTokenTTL() error {
	raw := os.Getenv("TOKEN_EXPIRE_TIME")
	if raw == "" || raw == "never" || raw == "0" {
		tokenTTL = 0
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse TOKEN_EXPIRE_TIME: %w", err)
	}
	tokenTTL = d
	return nil
}

// CreateJWT mints a signed token carrying the user id, role, and guest flag.
func CreateJWT(userID, role string, guest bool) (string, error) {
	claims := jwt.MapClaims{
		"sub":   userID,
		"role":  role,
		"guest": guest,
	}
	if tokenTTL > 0 {
		claims["exp"] = time.Now().Add(tokenTTL).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// AuthenticateJWT verifies a token and returns the actor it identifies.
func AuthenticateJWT(tokenString string) (models.Actor, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return models.Actor{}, fmt.Errorf("jwt parse: %w", err)
	}
	if !t.Valid {
		return models.Actor{}, fmt.Errorf("invalid token")
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return models.Actor{}, fmt.Errorf("invalid jwt claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return models.Actor{}, fmt.Errorf("missing sub in jwt")
	}
	userID, err := parseUUID(sub)
	if err != nil {
		return models.Actor{}, fmt.Errorf("malformed sub in jwt: %w", err)
	}

	actor := models.Actor{UserID: userID, Role: models.RoleUser}
	if role, ok := claims["role"].(string); ok && role != "" {
		actor.Role = role
	}
	if guest, ok := claims["guest"].(bool); ok {
		actor.IsGuest = guest
	}
	return actor, nil
}
