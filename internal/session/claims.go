package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Claims is the part of the session token the client cares about.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// ParseClaims decodes the token payload without verifying its signature. The
// backend is the only party that verifies tokens; the client only needs to
// know who it is and when the session ends.
func ParseClaims(token string) (Claims, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return Claims{}, err
	}
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("invalid claims")
	}
	var c Claims
	for _, key := range []string{"sub", "id", "userId"} {
		if v, ok := mc[key].(string); ok && v != "" {
			c.Subject = v
			break
		}
	}
	if exp, ok := mc["exp"].(float64); ok {
		c.ExpiresAt = time.Unix(int64(exp), 0)
	}
	return c, nil
}
