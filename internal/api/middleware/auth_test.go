package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runAuth(t *testing.T, mw echo.MiddlewareFunc, path, authHeader string) (*httptest.ResponseRecorder, error) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath(path)

	handler := mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return rec, handler(c)
}

func TestAPIKeyAuth_ValidKey(t *testing.T) {
	mw := APIKeyAuth("secret-key", testLogger())

	rec, err := runAuth(t, mw, "/api/conversations", "Bearer secret-key")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyAuth_InvalidKey(t *testing.T) {
	mw := APIKeyAuth("secret-key", testLogger())

	_, err := runAuth(t, mw, "/api/conversations", "Bearer wrong-key")
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestAPIKeyAuth_MissingHeader(t *testing.T) {
	mw := APIKeyAuth("secret-key", testLogger())

	_, err := runAuth(t, mw, "/api/conversations", "")
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestAPIKeyAuth_HealthBypassesAuth(t *testing.T) {
	mw := APIKeyAuth("secret-key", testLogger())

	rec, err := runAuth(t, mw, "/health", "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyAuth_EmptyKeyDisablesCheck(t *testing.T) {
	mw := APIKeyAuth("", testLogger())

	rec, err := runAuth(t, mw, "/api/conversations", "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}
