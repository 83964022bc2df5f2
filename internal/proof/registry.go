package proof

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// Proof is one named proof obligation: an identifier, display metadata,
// whether it runs by default, and an Execute function that encodes the
// property and invokes the solver.
type Proof struct {
	ID               string
	DisplayName      string
	Description      string
	EnabledByDefault bool
	Execute          func(ctx context.Context, pc *ProofContext) ([]ProofResult, error)
}

// Registry holds proofs in registration order, which is also result
// emission order.
type Registry struct {
	proofs []Proof
	byID   map[string]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: map[string]int{}}
}

// Register appends a proof. Duplicate IDs replace the earlier entry in
// place, preserving its position.
func (r *Registry) Register(p Proof) {
	if idx, ok := r.byID[p.ID]; ok {
		r.proofs[idx] = p
		return
	}
	r.byID[p.ID] = len(r.proofs)
	r.proofs = append(r.proofs, p)
}

// Proofs returns the registered proofs in registration order.
func (r *Registry) Proofs() []Proof {
	out := make([]Proof, len(r.proofs))
	copy(out, r.proofs)
	return out
}

// ByID looks up a proof by identifier.
func (r *Registry) ByID(id string) (Proof, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return Proof{}, false
	}
	return r.proofs[idx], true
}

// Run dispatches every enabled proof sequentially and collects their
// results in registration order. Each result is stamped with a fresh
// ULID (ulid.Make is safe for concurrent use, should proofs ever run in
// parallel) so findings stay individually addressable in JSON output.
func (r *Registry) Run(ctx context.Context, pc *ProofContext) ([]ProofResult, error) {
	var out []ProofResult
	for _, p := range r.proofs {
		if !pc.Config.isEnabled(p.ID, p.EnabledByDefault) {
			continue
		}
		results, err := p.Execute(ctx, pc)
		if err != nil {
			return nil, fmt.Errorf("proof %s: %w", p.ID, err)
		}
		for i := range results {
			results[i].ProofID = p.ID
			results[i].ID = ulid.Make().String()
		}
		out = append(out, results...)
	}
	return out, nil
}

// DefaultRegistry returns a registry holding the nine built-in proofs in
// their canonical order.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(tenantIsolationProof())
	r.Register(coverageProof())
	r.Register(contradictionProof())
	r.Register(softDeleteProof())
	r.Register(subsumptionProof())
	r.Register(redundancyProof())
	r.Register(writeRestrictionProof())
	r.Register(roleSeparationProof())
	r.Register(equivalenceProof())
	return r
}

// Analyze runs the default registry against pc.
func Analyze(ctx context.Context, pc *ProofContext) ([]ProofResult, error) {
	return DefaultRegistry().Run(ctx, pc)
}
