package helpers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestJSONError(t *testing.T) {
	tests := []struct {
		name string
		code int
		msg  string
		want string
	}{
		{"falls back to status text", http.StatusNotFound, "", `{"error":"Not Found"}`},
		{"uses the message", http.StatusBadRequest, "bad url", `{"error":"bad url"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newContext(http.MethodGet, "/", "")
			require.NoError(t, JSONError(c, tt.code, tt.msg))
			assert.Equal(t, tt.code, rec.Code)
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestBindAndValidate(t *testing.T) {
	type body struct {
		URL string `json:"url" validate:"required"`
	}

	c, _ := newContext(http.MethodPost, "/", `{"url":"http://example.com"}`)
	var b body
	ok, err := BindAndValidate(c, &b)
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, "http://example.com", b.URL)

	c, rec := newContext(http.MethodPost, "/", `{"url":`)
	ok, err = BindAndValidate(c, &body{})
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newContext(http.MethodPost, "/", `{}`)
	ok, _ = BindAndValidate(c, &body{})
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBuildShortURL(t *testing.T) {
	c, _ := newContext(http.MethodGet, "/", "")
	assert.Equal(t, "https://sho.rt/abc", BuildShortURL(c, "https://sho.rt/", "abc"))

	c, _ = newContext(http.MethodGet, "http://localhost:8080/", "")
	assert.Equal(t, "http://localhost:8080/abc", BuildShortURL(c, "", "abc"))
}

func TestClientIPAndFingerprint(t *testing.T) {
	c, _ := newContext(http.MethodGet, "/", "")
	c.Request().RemoteAddr = "10.1.2.3:5555"
	c.Request().Header.Set("User-Agent", "curl/8")
	assert.Equal(t, "10.1.2.3", ClientIP(c))

	fp := Fingerprint(c)
	assert.Len(t, fp, 16)
	assert.NotContains(t, fp, "10.1.2.3")

	c.Request().Header.Set("User-Agent", "firefox")
	assert.NotEqual(t, fp, Fingerprint(c))
}
