package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrBadToken = errors.New("invalid token")

// Issuer is stamped on and required from every access token.
const Issuer = "yakssok-api"

// Claims carry the stable user id (the Google account id) in "uid".
type Claims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// MakeToken signs an HS256 access token for uid, valid for ttl.
func MakeToken(uid, secret string, ttl time.Duration) (string, error) {
	issued := time.Now()
	claims := Claims{
		UserID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    Issuer,
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

var parser = jwt.NewParser(
	jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	jwt.WithIssuer(Issuer),
	jwt.WithExpirationRequired(),
	jwt.WithLeeway(5*time.Second),
)

// ParseToken verifies raw and returns its claims. Any other algorithm than
// HS256 is rejected before the key is consulted.
func ParseToken(raw, secret string) (*Claims, error) {
	var claims Claims
	if _, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	if claims.UserID == "" {
		return nil, ErrBadToken
	}
	return &claims, nil
}

// GenerateRefreshToken returns an opaque token and the hash to store for it.
func GenerateRefreshToken() (raw string, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(b)
	return raw, HashRefreshToken(raw), nil
}

func HashRefreshToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
