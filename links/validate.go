package links

import (
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var validate = validator.New()

// ValidateURL checks raw before it reaches the cache or the store: non-empty,
// at most MaxURLLength bytes, absolute http(s) URL with a host.
func ValidateURL(raw string) error {
	if strings.TrimSpace(raw) != raw {
		return errors.Wrap(ErrInvalidInput, "url has surrounding whitespace")
	}
	if len(raw) > MaxURLLength {
		return errors.Wrapf(ErrInvalidInput, "url longer than %d bytes", MaxURLLength)
	}
	if err := validate.Var(raw, "required,url"); err != nil {
		return errors.Wrap(ErrInvalidInput, "url is not well formed")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrap(ErrInvalidInput, err.Error())
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return errors.Wrapf(ErrInvalidInput, "unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.Wrap(ErrInvalidInput, "url has no host")
	}
	return nil
}
