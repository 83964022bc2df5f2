// Package applier executes compiled or remediation DDL against the
// target database in a single transaction. It is the only component that
// writes to the database; everything upstream of it is pure.
package applier

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/introspect"
)

// ApplyError reports a DDL statement the database rejected, with the
// SQLSTATE code when the driver supplied one.
type ApplyError struct {
	Statement string
	Code      string
	Err       error
}

func (e *ApplyError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("executing %q: %s: %v", e.Statement, e.Code, e.Err)
	}
	return fmt.Sprintf("executing %q: %v", e.Statement, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// Beginner is the slice of pgxpool.Pool the applier needs. Satisfied by
// *pgxpool.Pool and by pgxmock in tests.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Apply executes statements in order inside one transaction: either
// every statement lands or none do. Connection-class failures surface as
// ConnectionError, anything else as ApplyError carrying the offending
// statement.
func Apply(ctx context.Context, db Beginner, target string, statements []string) error {
	if len(statements) == 0 {
		return nil
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return classify(target, "", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return classify(target, stmt, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(target, "", err)
	}
	return nil
}

// classify splits driver errors into the connection class (unreachable,
// authentication, shutdown) and statement-level failures.
func classify(target, stmt string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgerrcode.IsConnectionException(pgErr.Code) || pgerrcode.IsInvalidAuthorizationSpecification(pgErr.Code) {
			return &introspect.ConnectionError{Target: target, Err: err}
		}
		return &ApplyError{Statement: stmt, Code: pgErr.Code, Err: err}
	}
	if stmt == "" {
		return &introspect.ConnectionError{Target: target, Err: err}
	}
	return &ApplyError{Statement: stmt, Err: err}
}
