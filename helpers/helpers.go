package helpers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = validator.New()

// ErrorBody is the shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// JSONError writes {"error":"<msg>"} with the provided HTTP code. An empty
// msg falls back to the status text.
func JSONError(c echo.Context, code int, msg string) error {
	if msg == "" {
		msg = http.StatusText(code)
	}
	return c.JSON(code, ErrorBody{Error: msg})
}

// BindAndValidate binds the request body into req and runs its validate tags.
// It writes the 400 itself; ok is false when the handler should return err
// as is.
func BindAndValidate(c echo.Context, req any) (ok bool, err error) {
	if err := c.Bind(req); err != nil {
		return false, JSONError(c, http.StatusBadRequest, "invalid json")
	}

	if err := validate.Struct(req); err != nil {
		return false, JSONError(c, http.StatusBadRequest, "missing or invalid fields")
	}

	return true, nil
}
