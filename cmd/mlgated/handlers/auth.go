package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	apiauth "github.com/opst/mlgate/pkg/api/types/auth"
	apierr "github.com/opst/mlgate/pkg/api/types/errors"
	"github.com/opst/mlgate/pkg/auth"
	"github.com/opst/mlgate/pkg/auth/credential"
	"github.com/opst/mlgate/pkg/auth/token"
	kcs "github.com/opst/mlgate/pkg/configs/server"
)

type Authenticator interface {
	Authenticate(ctx context.Context, username string, secret string) (token.Issued, error)
}

type Authorizer interface {
	Authorize(tokenString string, required ...auth.Role) (token.Identity, error)
}

// LoginHandler exchanges a form of username and password for a bearer token.
func LoginHandler(authn Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		username := c.FormValue("username")
		password := c.FormValue("password")

		issued, err := authn.Authenticate(ctx, username, password)
		if err != nil {
			switch {
			case errors.Is(err, credential.ErrInvalidCredentials):
				return apierr.BadRequest("incorrect username or password.", err)
			case errors.Is(err, kcs.ErrConfiguration):
				return apierr.Misconfigured(err)
			default:
				return apierr.InternalServerError(err)
			}
		}

		return c.JSON(http.StatusOK, apiauth.Token{
			AccessToken: issued.Token,
			TokenType:   apiauth.TokenTypeBearer,
			ExpiresIn:   int64(issued.ExpiresAt.Sub(issued.IssuedAt).Seconds()),
		})
	}
}

const identityKey = "mlgate.identity"

// IdentityOf returns the identity authorized by RequireRole.
func IdentityOf(c echo.Context) (token.Identity, bool) {
	id, ok := c.Get(identityKey).(token.Identity)
	return id, ok
}

const challenge = `Bearer realm="mlgate"`

// RequireRole is a middleware to reject requests without a bearer token of role.
//
// The authorized identity is available via IdentityOf.
func RequireRole(authz Authorizer, role auth.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tok, ok := bearer(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, challenge)
				return apierr.Unauthorized("bearer token is required.", nil)
			}

			id, err := authz.Authorize(tok, role)
			if err != nil {
				switch {
				case errors.Is(err, token.ErrExpiredToken):
					c.Response().Header().Set(
						echo.HeaderWWWAuthenticate,
						challenge+`, error="invalid_token", error_description="token expired"`,
					)
					return apierr.Unauthorized("token is expired. login again.", err)
				case errors.Is(err, token.ErrInvalidToken):
					c.Response().Header().Set(
						echo.HeaderWWWAuthenticate, challenge+`, error="invalid_token"`,
					)
					return apierr.Unauthorized("token is not valid.", err)
				case errors.Is(err, token.ErrForbidden):
					return apierr.Forbidden("role "+string(role)+" is required.", err)
				default:
					return apierr.InternalServerError(err)
				}
			}

			c.Set(identityKey, id)
			return next(c)
		}
	}
}

func bearer(header string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}
