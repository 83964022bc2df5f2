// Package engine orchestrates the pipeline: policy-file loading and
// aggregation, normalization, proof analysis, DDL compilation, drift
// detection, and reconciliation. Each stage is a thin call into the
// package that owns it; engine's own logic is limited to aggregation
// rules (file ordering, name-collision detection) and stage sequencing.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/drift"
	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/normalize"
	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/proof"
	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/reconcile"
	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/solver"
	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/sqlgen"
	"github.com/dventimisupabase/pg-policy-engine-sub000/pkg/parser"
	"github.com/dventimisupabase/pg-policy-engine-sub000/pkg/policy"
)

// ValidationError reports a policy-level problem the parser's grammar
// cannot express: duplicate names across files, and similar aggregate
// constraints.
type ValidationError struct {
	Policy  string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("policy %s: %s", e.Policy, e.Message)
}

// Load reads every *.policy file under dir in lexicographic filename
// order, parses each, and aggregates the results into one policy set.
// Parse problems come back as diagnostics; a name collision across the
// aggregate comes back as a ValidationError naming both declaring files.
func Load(dir string, opts ...parser.Option) (policy.PolicySet, parser.Diagnostics, error) {
	pattern := filepath.Join(dir, "*.policy")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return policy.PolicySet{}, nil, fmt.Errorf("globbing %s: %w", pattern, err)
	}
	if len(files) == 0 {
		return policy.PolicySet{}, nil, fmt.Errorf("no *.policy files found in %s", dir)
	}
	sort.Strings(files)

	var aggregate policy.PolicySet
	var diags parser.Diagnostics
	declaredIn := map[string]string{}
	for _, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			return policy.PolicySet{}, nil, fmt.Errorf("reading %s: %w", file, err)
		}
		ps, ds := parser.Parse(file, string(src), opts...)
		diags = append(diags, ds...)
		for _, p := range ps.Policies {
			if prev, seen := declaredIn[p.Name]; seen {
				return policy.PolicySet{}, diags, &ValidationError{
					Policy:  p.Name,
					Message: fmt.Sprintf("declared in both %s and %s", prev, file),
				}
			}
			declaredIn[p.Name] = file
			aggregate.Policies = append(aggregate.Policies, p)
		}
	}
	return aggregate, diags, nil
}

// Normalize rewrites the policy set to canonical form.
func Normalize(ps policy.PolicySet) policy.PolicySet {
	return normalize.Normalize(ps)
}

// Analyze normalizes ps and dispatches the enabled proofs against it.
func Analyze(ctx context.Context, ps policy.PolicySet, schema policy.SchemaMetadata, s *solver.Solver, cfg proof.Config) ([]proof.ProofResult, error) {
	pc := &proof.ProofContext{
		PolicySet: normalize.Normalize(ps),
		Schema:    schema,
		Solver:    s,
		Config:    cfg,
	}
	return proof.Analyze(ctx, pc)
}

// Compile normalizes ps and renders deterministic DDL against schema.
func Compile(ps policy.PolicySet, schema policy.SchemaMetadata) (sqlgen.CompiledState, error) {
	return sqlgen.Compile(normalize.Normalize(ps), schema)
}

// Monitor compiles the expected state and diffs it against observed.
func Monitor(ps policy.PolicySet, schema policy.SchemaMetadata, observed policy.ObservedState) (drift.Report, sqlgen.CompiledState, error) {
	state, err := Compile(ps, schema)
	if err != nil {
		return drift.Report{}, sqlgen.CompiledState{}, err
	}
	return drift.Detect(state, observed), state, nil
}

// Reconcile maps drift items to remediation DDL against the expected
// state.
func Reconcile(report drift.Report, expected sqlgen.CompiledState) []string {
	return reconcile.Statements(report, expected)
}
