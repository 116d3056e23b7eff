package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/qrave1/RoomScribe/internal/infra/appctx"
)

const cookieName = "jwt"

var (
	errMissingToken = errors.New("missing or malformed jwt")
	errInvalidToken = errors.New("invalid or expired jwt")
)

// JWTAuthMiddleware пропускает только запросы с валидным токеном
func JWTAuthMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, err := userFromRequest(c, secret)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": err.Error()})
			}

			setUser(c, userID)

			return next(c)
		}
	}
}

// OptionalJWTMiddleware пропускает анонимные запросы. Невалидный токен все равно отклоняется.
func OptionalJWTMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, err := userFromRequest(c, secret)
			switch {
			case errors.Is(err, errMissingToken):
				return next(c)
			case err != nil:
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": err.Error()})
			}

			setUser(c, userID)

			return next(c)
		}
	}
}

func userFromRequest(c echo.Context, secret string) (uuid.UUID, error) {
	raw := bearerToken(c.Request())
	if raw == "" {
		cookie, err := c.Cookie(cookieName)
		if err != nil || cookie.Value == "" {
			return uuid.Nil, errMissingToken
		}
		raw = cookie.Value
	}

	token, err := jwt.ParseWithClaims(
		raw,
		&jwt.RegisteredClaims{},
		func(token *jwt.Token) (any, error) {
			return []byte(secret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return uuid.Nil, errInvalidToken
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return uuid.Nil, errInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, errors.New("invalid subject")
	}

	return userID, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get(echo.HeaderAuthorization)

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}

	return strings.TrimSpace(token)
}

func setUser(c echo.Context, userID uuid.UUID) {
	c.SetRequest(
		c.Request().WithContext(
			appctx.WithUserID(c.Request().Context(), userID),
		),
	)
}
