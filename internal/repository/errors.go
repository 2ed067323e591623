package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	appErrors "github.com/noah-isme/sma-warning-api/pkg/errors"
)

const uniqueViolation = "23505"

// mapConstraintError turns a unique-constraint violation into appErrors.ErrConflict.
func mapConstraintError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, fmt.Sprintf("duplicate value violates %s", pqErr.Constraint))
	}
	return err
}

func placeholders(start, n int) string {
	values := make([]string, n)
	for i := 0; i < n; i++ {
		values[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(values, ",")
}
