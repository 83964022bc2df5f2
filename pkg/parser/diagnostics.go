package parser

import "fmt"

// Diagnostic is a structured parse/validation problem: file, line,
// column, message. A parse is successful when no diagnostics are
// present.
type Diagnostic struct {
	File    string
	Line    int
	Column  int
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d:%d: %s", d.File, d.Line, d.Column, d.Message)
}

// Diagnostics is an ordered list of Diagnostic, in the order discovered.
type Diagnostics []Diagnostic

func (ds Diagnostics) HasErrors() bool { return len(ds) > 0 }
