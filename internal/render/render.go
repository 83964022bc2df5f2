// Package render formats analyze, compile, and monitor payloads as human-
// readable text or JSON. Rendering is presentation only: every value here
// is computed upstream and serialized as-is, so the text and JSON forms
// always agree.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/drift"
	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/proof"
	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/sqlgen"
	"github.com/dventimisupabase/pg-policy-engine-sub000/pkg/parser"
)

// Format selects an output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", string(FormatText):
		return FormatText, nil
	case string(FormatJSON):
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text or json)", s)
	}
}

// proofResultJSON is the analyze payload's per-result record.
type proofResultJSON struct {
	ID             string            `json:"id"`
	ProofID        string            `json:"proofId"`
	Table          string            `json:"table"`
	Command        string            `json:"command,omitempty"`
	Status         string            `json:"status"`
	Message        string            `json:"message"`
	Counterexample map[string]string `json:"counterexample,omitempty"`
}

type analyzeJSON struct {
	Results []proofResultJSON `json:"results"`
	Failed  int               `json:"failed"`
	Unknown int               `json:"unknown"`
}

// Analyze renders proof results in the requested format.
func Analyze(w io.Writer, format Format, results []proof.ProofResult) error {
	if format == FormatJSON {
		payload := analyzeJSON{Results: []proofResultJSON{}}
		for _, r := range results {
			payload.Results = append(payload.Results, proofResultJSON{
				ID:             r.ID,
				ProofID:        r.ProofID,
				Table:          r.Table,
				Command:        r.Command,
				Status:         r.Status.String(),
				Message:        r.Message,
				Counterexample: r.Counterexample,
			})
			switch r.Status {
			case proof.Failed:
				payload.Failed++
			case proof.ResultUnknown:
				payload.Unknown++
			}
		}
		return writeJSON(w, payload)
	}

	failed, unknown := 0, 0
	for _, r := range results {
		target := r.Table
		if r.Command != "" {
			target = fmt.Sprintf("%s/%s", r.Table, r.Command)
		}
		fmt.Fprintf(w, "[%s] %s %s: %s\n", r.Status, r.ProofID, target, r.Message)
		if r.Status == proof.Failed && len(r.Counterexample) > 0 {
			for _, kv := range sortedCounterexample(r.Counterexample) {
				fmt.Fprintf(w, "    %s = %s\n", kv[0], kv[1])
			}
		}
		switch r.Status {
		case proof.Failed:
			failed++
		case proof.ResultUnknown:
			unknown++
		}
	}
	fmt.Fprintf(w, "%d results, %d failed, %d unknown\n", len(results), failed, unknown)
	return nil
}

type compiledPolicyJSON struct {
	Name      string `json:"name"`
	Source    string `json:"source"`
	Type      string `json:"type"`
	UsingExpr string `json:"usingExpr"`
	SQL       string `json:"sql"`
}

type compiledTableJSON struct {
	Schema    string               `json:"schema"`
	Table     string               `json:"table"`
	EnableRLS string               `json:"enableRls"`
	ForceRLS  string               `json:"forceRls"`
	Policies  []compiledPolicyJSON `json:"policies"`
}

type compileJSON struct {
	Tables []compiledTableJSON `json:"tables"`
}

// Compile renders the compiled DDL in the requested format. Text output
// is the DDL itself, one statement per line, in emission order.
func Compile(w io.Writer, format Format, state sqlgen.CompiledState) error {
	if format == FormatJSON {
		payload := compileJSON{Tables: []compiledTableJSON{}}
		for _, t := range state.Tables {
			tj := compiledTableJSON{
				Schema:    t.Schema,
				Table:     t.Name,
				EnableRLS: t.EnableRLS,
				ForceRLS:  t.ForceRLS,
				Policies:  []compiledPolicyJSON{},
			}
			for _, p := range t.Policies {
				tj.Policies = append(tj.Policies, compiledPolicyJSON{
					Name:      p.Name,
					Source:    p.Source,
					Type:      p.Type.String(),
					UsingExpr: p.UsingExpr,
					SQL:       p.SQL,
				})
			}
			payload.Tables = append(payload.Tables, tj)
		}
		return writeJSON(w, payload)
	}

	for _, stmt := range state.Statements() {
		fmt.Fprintln(w, stmt)
	}
	return nil
}

type driftItemJSON struct {
	Type         string `json:"type"`
	Severity     string `json:"severity"`
	Table        string `json:"table"`
	Policy       string `json:"policy,omitempty"`
	ExpectedExpr string `json:"expectedExpr,omitempty"`
	ActualExpr   string `json:"actualExpr,omitempty"`
	Description  string `json:"description"`
}

type monitorJSON struct {
	Drift       []driftItemJSON `json:"drift"`
	Remediation []string        `json:"remediation,omitempty"`
}

// Monitor renders the drift report and, when non-nil, the remediation
// statements.
func Monitor(w io.Writer, format Format, report drift.Report, remediation []string) error {
	if format == FormatJSON {
		payload := monitorJSON{Drift: []driftItemJSON{}, Remediation: remediation}
		for _, item := range report.Items {
			payload.Drift = append(payload.Drift, driftItemJSON{
				Type:         item.Kind.String(),
				Severity:     item.Severity.String(),
				Table:        item.QualifiedTable(),
				Policy:       item.PolicyName,
				ExpectedExpr: item.ExpectedExpr,
				ActualExpr:   item.ActualExpr,
				Description:  item.Description(),
			})
		}
		return writeJSON(w, payload)
	}

	if !report.HasDrift() {
		fmt.Fprintln(w, "No drift detected.")
		return nil
	}
	for _, item := range report.Items {
		fmt.Fprintf(w, "[%s] %s\n", item.Severity, item.Description())
	}
	if len(remediation) > 0 {
		fmt.Fprintln(w, "\nRemediation:")
		for _, stmt := range remediation {
			fmt.Fprintln(w, stmt)
		}
	}
	return nil
}

// Diagnostics renders parse diagnostics one per line in file:line:column
// form.
func Diagnostics(w io.Writer, diags parser.Diagnostics) {
	for _, d := range diags {
		fmt.Fprintln(w, d.String())
	}
}

func writeJSON(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

// sortedCounterexample returns key/value pairs in key order for stable
// text output.
func sortedCounterexample(m map[string]string) [][2]string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][2]string, len(keys))
	for i, k := range keys {
		out[i] = [2]string{k, m[k]}
	}
	return out
}
