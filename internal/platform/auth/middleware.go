package auth

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// JWTMiddleware authenticates requests with a Bearer token and stores the
// resulting Identity in the request context.
func JWTMiddleware(issuer *TokenIssuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authorization header must be a bearer token")
			}

			claims, err := issuer.Parse(tokenString)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}
			id, err := IdentityFromClaims(claims)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
			}

			ctx := WithIdentity(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// DevAuthMiddleware assigns a synthetic identity to every request so the API
// can be exercised without a login flow. The role defaults to doctor and can
// be switched with the X-Dev-Role header. Never enable outside development.
func DevAuthMiddleware() echo.MiddlewareFunc {
	devDoctorID := uuid.New()
	devLabID := uuid.New()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := Identity{ID: devDoctorID, Name: "Dev Doctor", Role: RoleDoctor}
			if c.Request().Header.Get("X-Dev-Role") == RoleLab {
				id = Identity{ID: devLabID, Name: "Dev Lab Tech", Role: RoleLab}
			}
			ctx := WithIdentity(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
