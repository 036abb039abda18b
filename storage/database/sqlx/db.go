package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/kannanru/studentfee/core"
)

const uniqueViolation = "23505"

// uniqueConstraint returns the name of the unique constraint err violates, if any.
func uniqueConstraint(err error) (string, bool) {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

// withTx runs fn in a transaction, rolled back if fn fails.
func withTx(ctx context.Context, db core.DB, fn func(tx core.DBExecutor) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func namedExec(ctx context.Context, db core.DBExecutor, query string, arg interface{}) (sql.Result, error) {
	return sqlx.NamedExecContext(ctx, db, query, arg)
}

// where accumulates positional ($n) conditions.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func orderBy(ordering []core.DBOrdering, dflt string) string {
	if len(ordering) == 0 {
		return " ORDER BY " + dflt
	}
	parts := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		parts = append(parts, ord.String())
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func splitList(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}
