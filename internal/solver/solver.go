// Package solver is the subprocess transport between internal/smtenc's
// generated SMT-LIB2 text and an external z3 binary: build the command,
// feed it the script on stdin, parse stdout.
package solver

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Outcome is a query's three-valued satisfiability result. UNKNOWN is a
// first-class result, not an error; it is surfaced, never swallowed.
type Outcome int

const (
	Unsat Outcome = iota
	Sat
	Unknown
)

func (o Outcome) String() string {
	switch o {
	case Unsat:
		return "unsat"
	case Sat:
		return "sat"
	default:
		return "unknown"
	}
}

// Result is one solver invocation's outcome and, when Sat, the raw model
// text z3 printed in response to `(get-model)`.
type Result struct {
	Outcome Outcome
	Model   string
}

// Solver runs SMT-LIB2 scripts against an external z3 process.
type Solver struct {
	binaryPath string
	maxRetries uint64
}

// New returns a Solver invoking binaryPath (typically "z3" resolved via
// PATH) for every Check call. Crashed invocations — a non-zero exit, or
// stdout that does not start with sat/unsat/unknown — are retried up to
// maxRetries times with exponential backoff; a clean UNKNOWN result is
// never retried.
func New(binaryPath string) *Solver {
	if binaryPath == "" {
		binaryPath = "z3"
	}
	return &Solver{binaryPath: binaryPath, maxRetries: 2}
}

// Check runs script with a per-invocation millisecond timeout, creating
// its own process on every call and releasing it on every exit path.
func (s *Solver) Check(ctx context.Context, script string, timeoutMs int) (Result, error) {
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}
	full := fmt.Sprintf("(set-option :timeout %d)\n%s", timeoutMs, script)

	budget := time.Duration(timeoutMs)*time.Millisecond + 2*time.Second
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	backoff := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(50*time.Millisecond))
	var result Result
	err := retry.Do(runCtx, backoff, func(attemptCtx context.Context) error {
		out, runErr := s.run(attemptCtx, full)
		if runErr != nil {
			if attemptCtx.Err() != nil {
				// Context expired or was canceled: not a crash, don't retry.
				return runErr
			}
			return retry.RetryableError(oops.Code("SOLVER_PROCESS_FAILED").Wrap(runErr))
		}
		parsed, parseErr := parseOutput(out)
		if parseErr != nil {
			return retry.RetryableError(oops.Code("SOLVER_OUTPUT_UNPARSEABLE").Wrap(parseErr))
		}
		result = parsed
		return nil
	})
	if err != nil {
		if runCtx.Err() != nil {
			return Result{Outcome: Unknown}, nil
		}
		return Result{}, oops.Code("SOLVER_CHECK_FAILED").Wrap(err)
	}
	return result, nil
}

func (s *Solver) run(ctx context.Context, script string) (string, error) {
	cmd := exec.CommandContext(ctx, s.binaryPath, "-in")
	cmd.Stdin = strings.NewReader(script)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

func parseOutput(out string) (Result, error) {
	lines := strings.SplitN(strings.TrimSpace(out), "\n", 2)
	if len(lines) == 0 || lines[0] == "" {
		return Result{}, fmt.Errorf("empty solver output")
	}
	switch strings.TrimSpace(lines[0]) {
	case "unsat":
		return Result{Outcome: Unsat}, nil
	case "sat":
		model := ""
		if len(lines) > 1 {
			model = lines[1]
		}
		return Result{Outcome: Sat, Model: model}, nil
	case "unknown":
		return Result{Outcome: Unknown}, nil
	default:
		return Result{}, fmt.Errorf("unrecognized solver output: %q", lines[0])
	}
}
