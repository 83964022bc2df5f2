package proof

import (
	"context"
	"fmt"
	"strings"

	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/normalize"
	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/smtenc"
	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/solver"
	"github.com/dventimisupabase/pg-policy-engine-sub000/pkg/policy"
)

// Session variable keys the tenant-isolation and role-separation proofs
// bind. These match the conventional current_setting keys multi-tenant
// deployments configure.
const (
	tenantSessionKey = "app.tenant_id"
	roleSessionKey   = "app.role"
)

// Extras keys recognized by Config.Extras.
const (
	// ExtraRolePairs holds a []RolePair for the role-separation proof.
	ExtraRolePairs = "rolePairs"
	// ExtraComparisonPolicySet holds a policy.PolicySet for the
	// equivalence proof.
	ExtraComparisonPolicySet = "comparisonPolicySet"
)

// RolePair names two roles the role-separation proof checks for
// disjoint row access.
type RolePair struct {
	A string
	B string
}

// tenantIsolationProof checks that two sessions holding different tenant
// identifiers can never both satisfy the effective predicate for the
// same row. UNSAT proves isolation; SAT yields a counterexample row
// visible to both tenants.
func tenantIsolationProof() Proof {
	return Proof{
		ID:               "tenant_isolation",
		DisplayName:      "Tenant isolation",
		Description:      "No two sessions with distinct tenant identifiers can access the same row.",
		EnabledByDefault: true,
		Execute: func(ctx context.Context, pc *ProofContext) ([]ProofResult, error) {
			var out []ProofResult
			tables, err := governedTables(pc.PolicySet, pc.Schema)
			if err != nil {
				return nil, err
			}
			for _, table := range tables {
				for _, cmd := range policy.AllCommands {
					permissive, restrictive, err := ApplicablePolicies(pc.PolicySet, table, cmd)
					if err != nil {
						return nil, err
					}
					if len(permissive) == 0 {
						continue
					}
					sctx := smtenc.NewContext()
					enc := smtenc.New()
					t1 := sctx.SessionConst("s1", tenantSessionKey)
					t2 := sctx.SessionConst("s2", tenantSessionKey)
					pred1 := enc.EncodeEffective(permissive, restrictive, table.Name, "s1", sctx)
					pred2 := enc.EncodeEffective(permissive, restrictive, table.Name, "s2", sctx)
					formula := fmt.Sprintf("(and (not (= %s %s)) %s %s)", t1, t2, pred1, pred2)

					res, err := checkUnsat(ctx, pc.Solver, sctx, formula, pc.Config.timeoutMs(), table.Name, "tenant isolation")
					if err != nil {
						return nil, err
					}
					out = append(out, resultFromOutcome(res, table.Name, cmd.String(),
						"tenant isolation holds",
						"two distinct tenants can access the same row",
						"solver returned unknown for tenant isolation"))
				}
			}
			return out, nil
		},
	}
}

// coverageProof reports tables with no applicable policies at all and,
// for governed tables, commands no permissive policy covers. It is the
// one built-in proof that never invokes the solver.
func coverageProof() Proof {
	return Proof{
		ID:               "coverage",
		DisplayName:      "Coverage",
		Description:      "Every table has policies and every command is covered by a permissive policy.",
		EnabledByDefault: true,
		Execute: func(_ context.Context, pc *ProofContext) ([]ProofResult, error) {
			var out []ProofResult
			for _, table := range pc.Schema.Tables {
				covered := map[policy.Command]bool{}
				governed := false
				for _, cmd := range policy.AllCommands {
					permissive, restrictive, err := ApplicablePolicies(pc.PolicySet, table, cmd)
					if err != nil {
						return nil, err
					}
					if len(permissive) > 0 || len(restrictive) > 0 {
						governed = true
					}
					if len(permissive) > 0 {
						covered[cmd] = true
					}
				}
				if !governed {
					out = append(out, ProofResult{
						Table:   table.Name,
						Status:  Failed,
						Message: "no policies apply to this table",
					})
					continue
				}
				var missing []string
				for _, cmd := range policy.AllCommands {
					if !covered[cmd] {
						missing = append(missing, cmd.String())
					}
				}
				if len(missing) > 0 {
					out = append(out, ProofResult{
						Table:   table.Name,
						Status:  Failed,
						Message: fmt.Sprintf("commands without a permissive policy: %s", strings.Join(missing, ", ")),
					})
				} else {
					out = append(out, ProofResult{
						Table:   table.Name,
						Status:  Proven,
						Message: "all commands covered",
					})
				}
			}
			return out, nil
		},
	}
}

// contradictionProof checks that each (table, command) effective
// predicate admits at least one row. UNSAT means the policy set grants
// nothing at all for that pair.
func contradictionProof() Proof {
	return Proof{
		ID:               "contradiction",
		DisplayName:      "Contradiction",
		Description:      "The effective predicate for each (table, command) admits at least one row.",
		EnabledByDefault: true,
		Execute: func(ctx context.Context, pc *ProofContext) ([]ProofResult, error) {
			var out []ProofResult
			tables, err := governedTables(pc.PolicySet, pc.Schema)
			if err != nil {
				return nil, err
			}
			for _, table := range tables {
				for _, cmd := range policy.AllCommands {
					permissive, restrictive, err := ApplicablePolicies(pc.PolicySet, table, cmd)
					if err != nil {
						return nil, err
					}
					if len(permissive) == 0 {
						continue
					}
					sctx := smtenc.NewContext()
					formula := smtenc.New().EncodeEffective(permissive, restrictive, table.Name, "s1", sctx)

					res, err := checkUnsat(ctx, pc.Solver, sctx, formula, pc.Config.timeoutMs(), table.Name, "contradiction")
					if err != nil {
						return nil, err
					}
					switch res.Outcome {
					case solver.Unsat:
						out = append(out, ProofResult{Table: table.Name, Command: cmd.String(), Status: Failed,
							Message: "effective predicate is contradictory: no row is ever accessible"})
					case solver.Sat:
						out = append(out, ProofResult{Table: table.Name, Command: cmd.String(), Status: Proven,
							Message: "effective predicate is satisfiable"})
					default:
						out = append(out, ProofResult{Table: table.Name, Command: cmd.String(), Status: ResultUnknown,
							Message: "solver returned unknown for contradiction check"})
					}
				}
			}
			return out, nil
		},
	}
}

// softDeleteProof checks, for every table carrying an is_deleted column,
// that no row with is_deleted = true satisfies the effective SELECT
// predicate.
func softDeleteProof() Proof {
	return Proof{
		ID:               "soft_delete",
		DisplayName:      "Soft-delete enforcement",
		Description:      "Rows marked is_deleted = true are invisible to SELECT.",
		EnabledByDefault: true,
		Execute: func(ctx context.Context, pc *ProofContext) ([]ProofResult, error) {
			var out []ProofResult
			for _, table := range pc.Schema.Tables {
				if _, ok := table.Column("is_deleted"); !ok {
					continue
				}
				permissive, restrictive, err := ApplicablePolicies(pc.PolicySet, table, policy.CmdSelect)
				if err != nil {
					return nil, err
				}
				if len(permissive) == 0 && len(restrictive) == 0 {
					continue
				}
				sctx := smtenc.NewContext()
				enc := smtenc.New()
				pred := enc.EncodeEffective(permissive, restrictive, table.Name, "s1", sctx)
				deletedClause := policy.NewClause(
					policy.BinaryAtom(policy.Col("is_deleted"), policy.OpEQ, policy.Lit(policy.Bool(true))),
				)
				deleted := enc.EncodeClause(deletedClause, table.Name, table.Name, "s1", sctx)
				formula := fmt.Sprintf("(and %s %s)", pred, deleted)

				res, err := checkUnsat(ctx, pc.Solver, sctx, formula, pc.Config.timeoutMs(), table.Name, "soft delete")
				if err != nil {
					return nil, err
				}
				out = append(out, resultFromOutcome(res, table.Name, policy.CmdSelect.String(),
					"deleted rows are hidden from SELECT",
					"a row with is_deleted = true is visible to SELECT",
					"solver returned unknown for soft-delete check"))
			}
			return out, nil
		},
	}
}

// subsumptionProof reports, for every ordered pair of distinct permissive
// policies applicable to a table and sharing a command, whether the first
// subsumes the second: every row the second grants, the first already
// grants.
func subsumptionProof() Proof {
	return Proof{
		ID:               "subsumption",
		DisplayName:      "Subsumption",
		Description:      "Detects permissive policies wholly contained in another policy's grant.",
		EnabledByDefault: true,
		Execute: func(ctx context.Context, pc *ProofContext) ([]ProofResult, error) {
			var out []ProofResult
			tables, err := governedTables(pc.PolicySet, pc.Schema)
			if err != nil {
				return nil, err
			}
			for _, table := range tables {
				applicable, err := applicablePermissive(pc.PolicySet, table)
				if err != nil {
					return nil, err
				}
				for i, p1 := range applicable {
					for j, p2 := range applicable {
						if i == j || !sharesCommand(p1, p2) {
							continue
						}
						sctx := smtenc.NewContext()
						enc := smtenc.New()
						e1 := encodePolicyClauses(enc, p1, table.Name, sctx)
						e2 := encodePolicyClauses(enc, p2, table.Name, sctx)
						formula := fmt.Sprintf("(and %s (not %s))", e2, e1)

						res, err := checkUnsat(ctx, pc.Solver, sctx, formula, pc.Config.timeoutMs(), table.Name, "subsumption")
						if err != nil {
							return nil, err
						}
						if res.Outcome == solver.Unsat {
							out = append(out, ProofResult{Table: table.Name, Status: Failed,
								Message: fmt.Sprintf("policy %s subsumes policy %s: the latter grants nothing extra", p1.Name, p2.Name)})
						}
					}
				}
			}
			return out, nil
		},
	}
}

// redundancyProof reports permissive policies whose removal would not
// shrink the effective predicate of any (table, command) they apply to.
func redundancyProof() Proof {
	return Proof{
		ID:               "redundancy",
		DisplayName:      "Redundancy",
		Description:      "Detects permissive policies that add nothing to the effective predicate.",
		EnabledByDefault: true,
		Execute: func(ctx context.Context, pc *ProofContext) ([]ProofResult, error) {
			var out []ProofResult
			tables, err := governedTables(pc.PolicySet, pc.Schema)
			if err != nil {
				return nil, err
			}
			for _, table := range tables {
				for _, cmd := range policy.AllCommands {
					permissive, restrictive, err := ApplicablePolicies(pc.PolicySet, table, cmd)
					if err != nil {
						return nil, err
					}
					if len(permissive) < 2 {
						continue
					}
					for i, p := range permissive {
						without := make([]policy.Policy, 0, len(permissive)-1)
						without = append(without, permissive[:i]...)
						without = append(without, permissive[i+1:]...)

						sctx := smtenc.NewContext()
						enc := smtenc.New()
						with := enc.EncodeEffective(permissive, restrictive, table.Name, "s1", sctx)
						reduced := enc.EncodeEffective(without, restrictive, table.Name, "s1", sctx)
						formula := fmt.Sprintf("(and %s (not %s))", with, reduced)

						res, err := checkUnsat(ctx, pc.Solver, sctx, formula, pc.Config.timeoutMs(), table.Name, "redundancy")
						if err != nil {
							return nil, err
						}
						if res.Outcome == solver.Unsat {
							out = append(out, ProofResult{Table: table.Name, Command: cmd.String(), Status: Failed,
								Message: fmt.Sprintf("policy %s is redundant: removing it does not shrink access", p.Name)})
						}
					}
				}
			}
			return out, nil
		},
	}
}

// writeRestrictionProof checks that every row writable under INSERT,
// UPDATE, or DELETE is also readable under SELECT. A writable-but-
// unreadable row is a likely policy bug.
func writeRestrictionProof() Proof {
	return Proof{
		ID:               "write_restriction",
		DisplayName:      "Write restriction",
		Description:      "No row is writable but unreadable.",
		EnabledByDefault: true,
		Execute: func(ctx context.Context, pc *ProofContext) ([]ProofResult, error) {
			var out []ProofResult
			tables, err := governedTables(pc.PolicySet, pc.Schema)
			if err != nil {
				return nil, err
			}
			writeCmds := []policy.Command{policy.CmdInsert, policy.CmdUpdate, policy.CmdDelete}
			for _, table := range tables {
				selPerm, selRestr, err := ApplicablePolicies(pc.PolicySet, table, policy.CmdSelect)
				if err != nil {
					return nil, err
				}
				if len(selPerm) == 0 {
					continue
				}
				for _, cmd := range writeCmds {
					wrPerm, wrRestr, err := ApplicablePolicies(pc.PolicySet, table, cmd)
					if err != nil {
						return nil, err
					}
					if len(wrPerm) == 0 {
						continue
					}
					sctx := smtenc.NewContext()
					enc := smtenc.New()
					write := enc.EncodeEffective(wrPerm, wrRestr, table.Name, "s1", sctx)
					read := enc.EncodeEffective(selPerm, selRestr, table.Name, "s1", sctx)
					formula := fmt.Sprintf("(and %s (not %s))", write, read)

					res, err := checkUnsat(ctx, pc.Solver, sctx, formula, pc.Config.timeoutMs(), table.Name, "write restriction")
					if err != nil {
						return nil, err
					}
					out = append(out, resultFromOutcome(res, table.Name, cmd.String(),
						"every writable row is readable",
						"a row is writable but not readable",
						"solver returned unknown for write-restriction check"))
				}
			}
			return out, nil
		},
	}
}

// roleSeparationProof checks, for each configured role pair, that no row
// is accessible to sessions holding both roles. Off by default; enabled
// via configuration with role pairs supplied through Extras.
func roleSeparationProof() Proof {
	return Proof{
		ID:               "role_separation",
		DisplayName:      "Role separation",
		Description:      "Configured role pairs have disjoint row access.",
		EnabledByDefault: false,
		Execute: func(ctx context.Context, pc *ProofContext) ([]ProofResult, error) {
			pairs, _ := pc.Config.Extras[ExtraRolePairs].([]RolePair)
			if len(pairs) == 0 {
				return nil, nil
			}
			var out []ProofResult
			tables, err := governedTables(pc.PolicySet, pc.Schema)
			if err != nil {
				return nil, err
			}
			for _, pair := range pairs {
				for _, table := range tables {
					for _, cmd := range policy.AllCommands {
						permissive, restrictive, err := ApplicablePolicies(pc.PolicySet, table, cmd)
						if err != nil {
							return nil, err
						}
						if len(permissive) == 0 {
							continue
						}
						sctx := smtenc.NewContext()
						enc := smtenc.New()
						r1 := sctx.SessionConst("s1", roleSessionKey)
						r2 := sctx.SessionConst("s2", roleSessionKey)
						l1 := sctx.LiteralConst(policy.Str(pair.A))
						l2 := sctx.LiteralConst(policy.Str(pair.B))
						pred1 := enc.EncodeEffective(permissive, restrictive, table.Name, "s1", sctx)
						pred2 := enc.EncodeEffective(permissive, restrictive, table.Name, "s2", sctx)
						formula := fmt.Sprintf("(and (= %s %s) (= %s %s) %s %s)", r1, l1, r2, l2, pred1, pred2)

						res, err := checkUnsat(ctx, pc.Solver, sctx, formula, pc.Config.timeoutMs(), table.Name, "role separation")
						if err != nil {
							return nil, err
						}
						out = append(out, resultFromOutcome(res, table.Name, cmd.String(),
							fmt.Sprintf("roles %s and %s are disjoint", pair.A, pair.B),
							fmt.Sprintf("roles %s and %s can access the same row", pair.A, pair.B),
							"solver returned unknown for role-separation check"))
					}
				}
			}
			return out, nil
		},
	}
}

// equivalenceProof checks semantic equivalence between the analyzed
// policy set and a comparison set supplied through Extras, per (table,
// command), by asserting the symmetric difference of the two effective
// predicates. Off by default.
func equivalenceProof() Proof {
	return Proof{
		ID:               "policy_equivalence",
		DisplayName:      "Policy equivalence",
		Description:      "The policy set is semantically equivalent to a comparison set.",
		EnabledByDefault: false,
		Execute: func(ctx context.Context, pc *ProofContext) ([]ProofResult, error) {
			comparison, ok := pc.Config.Extras[ExtraComparisonPolicySet].(policy.PolicySet)
			if !ok {
				return nil, nil
			}
			comparison = normalize.Normalize(comparison)

			var out []ProofResult
			tables, err := governedTables(pc.PolicySet, pc.Schema)
			if err != nil {
				return nil, err
			}
			for _, table := range tables {
				for _, cmd := range policy.AllCommands {
					aPerm, aRestr, err := ApplicablePolicies(pc.PolicySet, table, cmd)
					if err != nil {
						return nil, err
					}
					bPerm, bRestr, err := ApplicablePolicies(comparison, table, cmd)
					if err != nil {
						return nil, err
					}
					if len(aPerm) == 0 && len(bPerm) == 0 {
						continue
					}
					sctx := smtenc.NewContext()
					enc := smtenc.New()
					a := enc.EncodeEffective(aPerm, aRestr, table.Name, "s1", sctx)
					b := enc.EncodeEffective(bPerm, bRestr, table.Name, "s1", sctx)
					formula := fmt.Sprintf("(or (and %s (not %s)) (and %s (not %s)))", a, b, b, a)

					res, err := checkUnsat(ctx, pc.Solver, sctx, formula, pc.Config.timeoutMs(), table.Name, "policy equivalence")
					if err != nil {
						return nil, err
					}
					out = append(out, resultFromOutcome(res, table.Name, cmd.String(),
						"policy sets are equivalent",
						"policy sets differ: a row is accessible under one set only",
						"solver returned unknown for equivalence check"))
				}
			}
			return out, nil
		},
	}
}

// applicablePermissive returns the permissive policies whose selector
// matches table, regardless of command, in declaration order.
func applicablePermissive(ps policy.PolicySet, table policy.TableMetadata) ([]policy.Policy, error) {
	var out []policy.Policy
	for _, p := range ps.Policies {
		if p.Type != policy.Permissive {
			continue
		}
		ok, err := p.Selector.Evaluate(table)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func sharesCommand(p1, p2 policy.Policy) bool {
	for _, c := range p1.Commands.Commands() {
		if p2.Commands.Contains(c) {
			return true
		}
	}
	return false
}

// encodePolicyClauses encodes a single policy's clause disjunction over
// the table's row prefix.
func encodePolicyClauses(enc *smtenc.Encoder, p policy.Policy, table string, sctx *smtenc.Context) string {
	return enc.EncodeEffective([]policy.Policy{p}, nil, table, "s1", sctx)
}

// resultFromOutcome translates the common UNSAT-is-good outcome shape
// into a ProofResult, attaching a model-derived counterexample on SAT.
func resultFromOutcome(res solver.Result, table, command, provenMsg, failedMsg, unknownMsg string) ProofResult {
	switch res.Outcome {
	case solver.Unsat:
		return ProofResult{Table: table, Command: command, Status: Proven, Message: provenMsg}
	case solver.Sat:
		return ProofResult{Table: table, Command: command, Status: Failed, Message: failedMsg,
			Counterexample: parseModel(res.Model)}
	default:
		return ProofResult{Table: table, Command: command, Status: ResultUnknown, Message: unknownMsg}
	}
}
