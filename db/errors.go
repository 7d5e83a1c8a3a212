package db

import (
	"database/sql"
	"strings"

	"github.com/teranos/dealflow/errors"
)

// ErrDatabaseClosed marks work that reached the store after Close.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed reports whether err means the store is gone: our
// sentinel, sql.ErrConnDone, or the driver's unwrapped "database is closed".
func IsDatabaseClosed(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrDatabaseClosed), errors.Is(err, sql.ErrConnDone):
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}
