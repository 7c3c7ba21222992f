package postgres

import (
	"database/sql"
	stderrors "errors"

	"github.com/lib/pq"

	"github.com/jwalitptl/consult-api/pkg/errors"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// notFound maps sql.ErrNoRows onto the domain error and passes anything else through.
func notFound(err error, resource string) error {
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NotFound(resource, err)
	}
	return err
}
