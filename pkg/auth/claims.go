package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the claims a PocketBase auth token carries.
type Claims struct {
	jwt.RegisteredClaims
	RecordID     string `json:"id"`
	Type         string `json:"type"`
	CollectionID string `json:"collectionId"`
	Refreshable  bool   `json:"refreshable"`
}

// Expiry returns the exp claim, or the zero time when the token has none.
func (c Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

var parser = jwt.NewParser()

// DecodeClaims reads the claims of a compact token without verifying its
// signature. The client never holds the signing key.
func DecodeClaims(token string) (Claims, error) {
	var claims Claims
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return Claims{}, err
	}
	return claims, nil
}
