// Package proof is the SMT-backed proof framework: a registry of named
// proofs, each of which encodes some property of a normalized PolicySet
// as an SMT-LIB2 formula and asks internal/solver whether its negation
// is satisfiable.
package proof

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/smtenc"
	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/solver"
	"github.com/dventimisupabase/pg-policy-engine-sub000/pkg/policy"
)

// Config selects which proofs run, the per-proof-per-query solver
// timeout, and proof-specific auxiliary data.
type Config struct {
	// Enabled, if non-empty, restricts execution to these proof IDs.
	Enabled []string
	// Disabled suppresses these proof IDs from the default-enabled set;
	// ignored when Enabled is non-empty.
	Disabled []string
	// TimeoutMs is the per-proof-per-query solver budget; zero uses the
	// framework default of 5000.
	TimeoutMs int
	// Extras carries proof-specific auxiliary data: the comparison
	// PolicySet for policy equivalence (key "comparisonPolicySet"), the
	// role-pair list for role separation (key "rolePairs").
	Extras map[string]any
}

func (c Config) timeoutMs() int {
	if c.TimeoutMs <= 0 {
		return 5000
	}
	return c.TimeoutMs
}

func (c Config) isEnabled(id string, defaultEnabled bool) bool {
	if len(c.Enabled) > 0 {
		return containsString(c.Enabled, id)
	}
	if containsString(c.Disabled, id) {
		return false
	}
	return defaultEnabled
}

func containsString(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

// ProofContext composes everything a proof's Execute function needs: the
// already-normalized policy set, schema metadata, the solver transport,
// and configuration.
type ProofContext struct {
	PolicySet policy.PolicySet
	Schema    policy.SchemaMetadata
	Solver    *solver.Solver
	Config    Config
}

// Status is a proof query's reported outcome for one (table, command)
// or similar dimension.
type Status int

const (
	Proven Status = iota
	Failed
	ResultUnknown
)

func (s Status) String() string {
	switch s {
	case Proven:
		return "PROVEN"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ProofResult is one reported finding: a proof ID, the table (and
// optionally command) it concerns, its status, a human-readable message,
// and — when Status is Failed from a SAT query — a best-effort
// counterexample extracted from the solver's model.
type ProofResult struct {
	ID             string
	ProofID        string
	Table          string
	Command        string
	Status         Status
	Message        string
	Counterexample map[string]string
}

// AnalysisError reports a solver failure unrelated to UNKNOWN: a crashed
// or unreachable solver process, not a legitimate three-valued result.
type AnalysisError struct {
	Table   string
	Message string
	Err     error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis error on %s: %s: %v", e.Table, e.Message, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// ApplicablePolicies partitions p's policies into the permissive and
// restrictive subsets applicable to table under command: those whose
// selector matches the table and whose command set contains command.
func ApplicablePolicies(ps policy.PolicySet, table policy.TableMetadata, command policy.Command) (permissive, restrictive []policy.Policy, err error) {
	for _, p := range ps.Policies {
		if !p.Commands.Contains(command) {
			continue
		}
		ok, evalErr := p.Selector.Evaluate(table)
		if evalErr != nil {
			return nil, nil, fmt.Errorf("evaluating selector for policy %s: %w", p.Name, evalErr)
		}
		if !ok {
			continue
		}
		if p.Type == policy.Restrictive {
			restrictive = append(restrictive, p)
		} else {
			permissive = append(permissive, p)
		}
	}
	return permissive, restrictive, nil
}

// governedTables returns every table in schema carrying at least one
// applicable policy (permissive or restrictive) for any command, in
// schema order — the table universe proofs iterate over.
func governedTables(ps policy.PolicySet, schema policy.SchemaMetadata) ([]policy.TableMetadata, error) {
	var out []policy.TableMetadata
	for _, t := range schema.Tables {
		applicable := false
		for _, cmd := range policy.AllCommands {
			perm, restr, err := ApplicablePolicies(ps, t, cmd)
			if err != nil {
				return nil, err
			}
			if len(perm) > 0 || len(restr) > 0 {
				applicable = true
				break
			}
		}
		if applicable {
			out = append(out, t)
		}
	}
	return out, nil
}

// checkUnsat asserts formula, as given, in a script built from sctx and
// runs the solver on it; label names the query in the AnalysisError
// returned when the solver fails. It returns the solver Outcome directly; callers translate Unsat/Sat/Unknown into a
// ProofResult according to each proof's own PROVEN/FAILED meaning.
func checkUnsat(ctx context.Context, s *solver.Solver, sctx *smtenc.Context, formula string, timeoutMs int, table, label string) (solver.Result, error) {
	script := sctx.Script(formula)
	res, err := s.Check(ctx, script, timeoutMs)
	if err != nil {
		return solver.Result{}, &AnalysisError{Table: table, Message: label, Err: err}
	}
	return res, nil
}

var modelAssignmentPattern = regexp.MustCompile(`\(define-fun\s+([A-Za-z0-9_]+)\s*\(\)\s*\S+\s+([^)]*)\)`)

// parseModel best-effort extracts `name -> value` assignments from a z3
// `(get-model)` response, for use as a ProofResult's Counterexample. This
// is intentionally shallow — good enough to surface which constant the
// model pinned, not a full SMT-LIB2 model parser.
func parseModel(model string) map[string]string {
	out := map[string]string{}
	for _, match := range modelAssignmentPattern.FindAllStringSubmatch(model, -1) {
		name := strings.TrimSpace(match[1])
		value := strings.TrimSpace(match[2])
		if name == "" {
			continue
		}
		out[name] = value
	}
	return out
}
