package db

import (
	"context"
	"database/sql"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"shortlink/links"
)

// classify maps driver errors onto the links taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return links.ErrNotFound
	}
	if isUniqueConstraint(err) {
		if strings.Contains(strings.ToLower(err.Error()), "url_hash") {
			return errors.Wrap(links.ErrURLConflict, err.Error())
		}
		return errors.Wrap(links.ErrCodeConflict, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return errors.Wrap(links.ErrStoreUnavailable, err.Error())
}

func isUniqueConstraint(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		if se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return true
		}
	}

	// libsql reports constraint failures as plain text
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint")
}
