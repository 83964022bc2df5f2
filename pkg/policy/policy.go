package policy

import "strings"

// PolicyType is the RLS policy kind: PERMISSIVE policies are OR'd together,
// RESTRICTIVE policies are AND'd against them.
type PolicyType int

const (
	Permissive PolicyType = iota
	Restrictive
)

func (t PolicyType) String() string {
	if t == Restrictive {
		return "RESTRICTIVE"
	}
	return "PERMISSIVE"
}

// Command is one of the four governed SQL statement kinds.
type Command int

const (
	CmdSelect Command = iota
	CmdInsert
	CmdUpdate
	CmdDelete
)

func (c Command) String() string {
	switch c {
	case CmdSelect:
		return "SELECT"
	case CmdInsert:
		return "INSERT"
	case CmdUpdate:
		return "UPDATE"
	case CmdDelete:
		return "DELETE"
	default:
		return "?"
	}
}

// AllCommands is the full quartet in declaration order, used by the
// compiler to detect the FOR ALL shorthand.
var AllCommands = []Command{CmdSelect, CmdInsert, CmdUpdate, CmdDelete}

// CommandSet is an ordered, deduplicated set of commands. Order reflects
// declaration order, which the compiler preserves when emitting FOR
// clauses that are not the full quartet.
type CommandSet struct {
	cmds []Command
}

// NewCommandSet builds a command set, deduplicating while preserving the
// first-seen order.
func NewCommandSet(cmds ...Command) CommandSet {
	out := make([]Command, 0, len(cmds))
	seen := map[Command]bool{}
	for _, c := range cmds {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return CommandSet{cmds: out}
}

func (s CommandSet) Len() int             { return len(s.cmds) }
func (s CommandSet) Commands() []Command  { return s.cmds }
func (s CommandSet) IsEmpty() bool        { return len(s.cmds) == 0 }

func (s CommandSet) Contains(c Command) bool {
	for _, existing := range s.cmds {
		if existing == c {
			return true
		}
	}
	return false
}

// IsFullQuartet reports whether the set contains exactly SELECT, INSERT,
// UPDATE, DELETE — the condition under which the compiler emits FOR ALL.
func (s CommandSet) IsFullQuartet() bool {
	if len(s.cmds) != 4 {
		return false
	}
	for _, c := range AllCommands {
		if !s.Contains(c) {
			return false
		}
	}
	return true
}

func (s CommandSet) String() string {
	parts := make([]string, len(s.cmds))
	for i, c := range s.cmds {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}

// Policy is a named, typed bundle of disjunctively-interpreted clauses with
// a command set and a selector over table metadata. Policy names are
// unique within a policy set (enforced by pkg/engine at aggregation time).
type Policy struct {
	Name     string
	Type     PolicyType
	Commands CommandSet
	Selector Selector
	// Clauses is an ordered sequence, disjunctively interpreted. Order is
	// preserved through normalization for deterministic tie-breaking
	// (rule 5: "ties broken deterministically by clause index").
	Clauses []Clause

	// File and Line/Column attribute the declaring source for
	// diagnostics raised by later stages (validation, normalization).
	File   string
	Line   int
	Column int
}

// WithClauses returns a copy of p with its clause list replaced. Used by
// the normalizer, which never mutates its input.
func (p Policy) WithClauses(clauses []Clause) Policy {
	cp := p
	cp.Clauses = clauses
	return cp
}

// PolicySet is an ordered sequence of policies.
type PolicySet struct {
	Policies []Policy
}

// ByName returns the policy with the given name, or false if absent.
func (ps PolicySet) ByName(name string) (Policy, bool) {
	for _, p := range ps.Policies {
		if p.Name == name {
			return p, true
		}
	}
	return Policy{}, false
}
