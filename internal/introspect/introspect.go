// Package introspect is the read-only database adapter: it dials a
// target PostgreSQL instance, reads table and column metadata from the
// catalogs, and observes per-table row-level-security state (RLS flags
// plus the policy catalog). The core pipeline only ever sees the
// resulting SchemaMetadata and ObservedState values; connections stay
// inside this package and internal/applier.
package introspect

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"

	"github.com/dventimisupabase/pg-policy-engine-sub000/pkg/policy"
)

// ConnectionError reports a failure to reach or authenticate against the
// target database.
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IntrospectionError reports a catalog query failure for a particular
// table (or the catalog pass as a whole when Table is empty).
type IntrospectionError struct {
	Table   string
	Message string
	Err     error
}

func (e *IntrospectionError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("introspection: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("introspecting %s: %s: %v", e.Table, e.Message, e.Err)
}

func (e *IntrospectionError) Unwrap() error { return e.Err }

// Querier is the slice of pgxpool.Pool the introspector needs. Satisfied
// by *pgxpool.Pool and by pgxmock in tests.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Connect dials target and verifies the connection with a ping,
// retrying transient dial failures with exponential backoff before
// giving up with a ConnectionError.
func Connect(ctx context.Context, target string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, target)
	if err != nil {
		return nil, &ConnectionError{Target: target, Err: err}
	}

	backoff := retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if pingErr := pool.Ping(ctx); pingErr != nil {
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, &ConnectionError{Target: target, Err: err}
	}
	return pool, nil
}

const schemaQuery = `
SELECT table_schema, table_name, column_name, data_type
FROM information_schema.columns
WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
ORDER BY table_schema, table_name, ordinal_position`

// Schema reads table and column metadata for every user table, in
// catalog order. The resulting table order is the compiler's and drift
// detector's iteration order.
func Schema(ctx context.Context, q Querier) (policy.SchemaMetadata, error) {
	rows, err := q.Query(ctx, schemaQuery)
	if err != nil {
		return policy.SchemaMetadata{}, &IntrospectionError{Message: "querying column catalog", Err: err}
	}
	defer rows.Close()

	var meta policy.SchemaMetadata
	index := map[string]int{}
	for rows.Next() {
		var schema, table, column, dataType string
		if err := rows.Scan(&schema, &table, &column, &dataType); err != nil {
			return policy.SchemaMetadata{}, &IntrospectionError{Message: "scanning column row", Err: err}
		}
		key := schema + "." + table
		idx, ok := index[key]
		if !ok {
			idx = len(meta.Tables)
			index[key] = idx
			meta.Tables = append(meta.Tables, policy.TableMetadata{Name: table, Schema: schema})
		}
		meta.Tables[idx].Columns = append(meta.Tables[idx].Columns, policy.ColumnMetadata{Name: column, Type: dataType})
	}
	if err := rows.Err(); err != nil {
		return policy.SchemaMetadata{}, &IntrospectionError{Message: "reading column catalog", Err: err}
	}
	return meta, nil
}

const rlsFlagsQuery = `
SELECT n.nspname, c.relname, c.relrowsecurity, c.relforcerowsecurity
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind = 'r'
  AND n.nspname NOT IN ('pg_catalog', 'information_schema')
ORDER BY n.nspname, c.relname`

const policiesQuery = `
SELECT schemaname, tablename, policyname, permissive, cmd, qual, with_check
FROM pg_catalog.pg_policies
ORDER BY schemaname, tablename, policyname`

// Observed reads the per-table RLS flags and policy catalog.
func Observed(ctx context.Context, q Querier) (policy.ObservedState, error) {
	var state policy.ObservedState
	index := map[string]int{}

	rows, err := q.Query(ctx, rlsFlagsQuery)
	if err != nil {
		return policy.ObservedState{}, &IntrospectionError{Message: "querying RLS flags", Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		var schema, table string
		var enabled, forced bool
		if err := rows.Scan(&schema, &table, &enabled, &forced); err != nil {
			return policy.ObservedState{}, &IntrospectionError{Message: "scanning RLS flag row", Err: err}
		}
		index[schema+"."+table] = len(state.Tables)
		state.Tables = append(state.Tables, policy.ObservedTable{
			Schema:     schema,
			Name:       table,
			RLSEnabled: enabled,
			RLSForced:  forced,
		})
	}
	if err := rows.Err(); err != nil {
		return policy.ObservedState{}, &IntrospectionError{Message: "reading RLS flags", Err: err}
	}
	rows.Close()

	polRows, err := q.Query(ctx, policiesQuery)
	if err != nil {
		return policy.ObservedState{}, &IntrospectionError{Message: "querying policy catalog", Err: err}
	}
	defer polRows.Close()
	for polRows.Next() {
		var schema, table, name, permissive, cmd string
		var qual, check *string
		if err := polRows.Scan(&schema, &table, &name, &permissive, &cmd, &qual, &check); err != nil {
			return policy.ObservedState{}, &IntrospectionError{Message: "scanning policy row", Err: err}
		}
		idx, ok := index[schema+"."+table]
		if !ok {
			// A policy on a table the flags pass didn't report; surface
			// the inconsistency rather than dropping the row.
			return policy.ObservedState{}, &IntrospectionError{
				Table:   schema + "." + table,
				Message: "policy catalog references a table absent from pg_class",
				Err:     fmt.Errorf("policy %s", name),
			}
		}
		op := policy.ObservedPolicy{
			Name:    name,
			Type:    observedType(permissive),
			Command: observedCommand(cmd),
		}
		if qual != nil {
			op.UsingExpr = *qual
			op.HasUsing = true
		}
		if check != nil {
			op.CheckExpr = *check
			op.HasCheck = true
		}
		state.Tables[idx].Policies = append(state.Tables[idx].Policies, op)
	}
	if err := polRows.Err(); err != nil {
		return policy.ObservedState{}, &IntrospectionError{Message: "reading policy catalog", Err: err}
	}

	return state, nil
}

func observedType(permissive string) policy.PolicyType {
	if permissive == "RESTRICTIVE" {
		return policy.Restrictive
	}
	return policy.Permissive
}

// observedCommand maps pg_policies.cmd to a Command. ALL maps to SELECT;
// the drift detector identifies policies by name and compares bodies, so
// the mapped command never drives a comparison.
func observedCommand(cmd string) policy.Command {
	switch cmd {
	case "INSERT":
		return policy.CmdInsert
	case "UPDATE":
		return policy.CmdUpdate
	case "DELETE":
		return policy.CmdDelete
	default:
		return policy.CmdSelect
	}
}
