package helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"strings"

	"github.com/labstack/echo/v4"
)

func BuildShortURL(c echo.Context, baseHost, code string) string {
	if baseHost != "" {
		return fmt.Sprintf("%s/%s", strings.TrimRight(baseHost, "/"), code)
	}

	req := c.Request()
	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}

	return fmt.Sprintf("%s://%s/%s", scheme, req.Host, code)
}

// ClientIP is the caller's address without a port.
func ClientIP(c echo.Context) string {
	if ip := c.RealIP(); ip != "" {
		if host, _, err := net.SplitHostPort(ip); err == nil {
			return host
		}
		return ip
	}
	if host, _, err := net.SplitHostPort(c.Request().RemoteAddr); err == nil {
		return host
	}
	return c.Request().RemoteAddr
}

// Fingerprint identifies a visitor for click analytics without keeping the
// raw address around.
func Fingerprint(c echo.Context) string {
	sum := sha256.Sum256([]byte(ClientIP(c) + "|" + c.Request().UserAgent()))
	return hex.EncodeToString(sum[:8])
}
