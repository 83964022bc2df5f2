// Package compiler exposes the public API for compiling normalized policy
// sets to PostgreSQL row-level-security DDL.
//
// This is a thin wrapper around internal/sqlgen that re-exports only the
// types and functions external consumers need. For end-to-end pipeline
// orchestration (parse, normalize, analyze, compile), use pkg/engine.
package compiler

import (
	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/sqlgen"
)

// CompiledState is the compiler's output: per-table artifact groups in
// metadata table order.
type CompiledState = sqlgen.CompiledState

// TableArtifacts is one table's artifact group: ENABLE/FORCE RLS DDL plus
// CREATE POLICY statements in policy declaration order.
type TableArtifacts = sqlgen.TableArtifacts

// CompiledPolicy is one CREATE POLICY artifact.
type CompiledPolicy = sqlgen.CompiledPolicy

// CompilationError reports a policy that could not be rendered for a
// table.
type CompilationError = sqlgen.CompilationError

// Compile renders deterministic DDL for every governed table.
var Compile = sqlgen.Compile
