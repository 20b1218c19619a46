package echoapi

import (
	"sort"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/minierp/core"
)

const contextTokenKey = "userToken"

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Email     string   `json:"email,omitempty"`
	StudentID string   `json:"student_id,omitempty"` // set for students
	Roles     []string `json:"roles,omitempty"`
}

func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// NewClaims returns the claims of a principal, valid for Server.JWTExpirationDelta.
func NewClaims(conf *core.Config, p core.Principal) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   p.ID,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Email:     core.CleanString(p.Email, true /* lower */),
		StudentID: p.StudentID,
		Roles:     p.Roles,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	cfg := newJWTConfig(conf)
	token := jwt.NewWithClaims(jwt.GetSigningMethod(cfg.SigningMethod), claims)

	ss, err := token.SignedString(cfg.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (c Claims) Principal() core.Principal {
	return core.Principal{ID: c.Subject, Email: c.Email, StudentID: c.StudentID, Roles: c.Roles}
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextPrincipal(ctx echo.Context) (core.Principal, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return core.Principal{}, err
	}
	return claims.Principal(), nil
}

func contextHasAnyRole(ctx echo.Context, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	if claims, err := getContextClaims(ctx); err == nil {
		owned := append([]string(nil), claims.Roles...)
		sort.Strings(owned)
		for _, role := range roles {
			if i := sort.SearchStrings(owned, role); i < len(owned) && owned[i] == role {
				return true
			}
		}
	}
	return false
}
