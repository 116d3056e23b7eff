package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/RoomScribe/internal/infra/appctx"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, subject string, expiresIn time.Duration) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
	})

	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	return signed
}

// serve runs mw in front of a handler that echoes the user id from context.
func serve(t *testing.T, mw echo.MiddlewareFunc, prepare func(r *http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	e.GET("/", func(c echo.Context) error {
		userID, ok := appctx.UserID(c.Request().Context())
		if !ok {
			return c.String(http.StatusOK, "anonymous")
		}

		return c.String(http.StatusOK, userID.String())
	}, mw)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if prepare != nil {
		prepare(req)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	return rec
}

func TestJWTAuthMiddleware(t *testing.T) {
	userID := uuid.New()
	mw := JWTAuthMiddleware(testSecret)

	t.Run("cookie", func(t *testing.T) {
		token := signToken(t, testSecret, userID.String(), time.Hour)

		rec := serve(t, mw, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: cookieName, Value: token})
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, userID.String(), rec.Body.String())
	})

	t.Run("bearer header", func(t *testing.T) {
		token := signToken(t, testSecret, userID.String(), time.Hour)

		rec := serve(t, mw, func(r *http.Request) {
			r.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, userID.String(), rec.Body.String())
	})

	t.Run("missing token", func(t *testing.T) {
		rec := serve(t, mw, nil)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		token := signToken(t, testSecret, userID.String(), -time.Minute)

		rec := serve(t, mw, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: cookieName, Value: token})
		})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := signToken(t, "other", userID.String(), time.Hour)

		rec := serve(t, mw, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: cookieName, Value: token})
		})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("subject is not uuid", func(t *testing.T) {
		token := signToken(t, testSecret, "alice", time.Hour)

		rec := serve(t, mw, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: cookieName, Value: token})
		})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestOptionalJWTMiddleware(t *testing.T) {
	mw := OptionalJWTMiddleware(testSecret)

	t.Run("anonymous", func(t *testing.T) {
		rec := serve(t, mw, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "anonymous", rec.Body.String())
	})

	t.Run("authenticated", func(t *testing.T) {
		userID := uuid.New()
		token := signToken(t, testSecret, userID.String(), time.Hour)

		rec := serve(t, mw, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: cookieName, Value: token})
		})

		assert.Equal(t, userID.String(), rec.Body.String())
	})

	t.Run("invalid token is still rejected", func(t *testing.T) {
		rec := serve(t, mw, func(r *http.Request) {
			r.Header.Set(echo.HeaderAuthorization, "Bearer garbage")
		})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
