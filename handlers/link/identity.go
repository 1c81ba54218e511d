package link

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"shortlink/engine"
	h "shortlink/helpers"
	"shortlink/ratelimit"
)

// Identifier decides who a request is charged to.
type Identifier struct {
	jwtSecret []byte
}

// NewIdentifier with an empty secret treats every caller as anonymous.
func NewIdentifier(secret string) *Identifier {
	return &Identifier{jwtSecret: []byte(secret)}
}

// Client returns the authenticated user behind a valid HS256 bearer token, or
// the caller's IP. A bearer token that does not verify is an error.
func (i *Identifier) Client(c echo.Context) (engine.Client, error) {
	anon := engine.Client{Identity: ratelimit.Identity{Key: "ip:" + h.ClientIP(c), Class: ratelimit.Anonymous}}
	if i == nil || len(i.jwtSecret) == 0 {
		return anon, nil
	}

	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	tokenString, found := strings.CutPrefix(auth, "Bearer ")
	if !found || tokenString == "" {
		return anon, nil
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return i.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return anon, errors.Wrap(err, "verify bearer token")
	}
	if !token.Valid {
		return anon, errors.New("bearer token is not valid")
	}
	if claims.Subject == "" {
		return anon, errors.New("bearer token has no subject")
	}

	return engine.Client{
		Identity: ratelimit.Identity{Key: "user:" + claims.Subject, Class: ratelimit.Authenticated},
		OwnerID:  claims.Subject,
	}, nil
}
