package sqlgen

import "fmt"

// CompilationError reports a policy that could not be rendered to DDL for
// a particular table, e.g. a traversal whose target table is absent from
// the schema metadata.
type CompilationError struct {
	Policy  string
	Table   string
	Message string
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("compiling policy %s for table %s: %s", e.Policy, e.Table, e.Message)
}
