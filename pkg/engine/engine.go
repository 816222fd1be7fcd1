// Package engine evaluates project scripts. A script is a small Lisp
// program, run by zygomys in a sandbox, whose builtins declare the
// project, its steps, the connections between them and the guide order.
package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/stepwise/pkg/graph"
	"github.com/chazu/stepwise/pkg/project"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error, a runtime error in user code or a document that
// fails validation.
type EvalError struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// EvalWarning is a validation warning on an otherwise usable script.
type EvalWarning struct {
	Message      string `json:"message"`
	StepID       string `json:"stepId,omitempty"`
	ConnectionID string `json:"connectionId,omitempty"`
}

// Script is the document a successful evaluation declares. Authored
// positions from (at ...) are stored in the project's layout.
type Script struct {
	Project  project.Project `json:"project"`
	Warnings []EvalWarning   `json:"warnings,omitempty"`
}

// EvalResult bundles the full output of an evaluation for use by UI bindings.
type EvalResult struct {
	Script *Script     `json:"script,omitempty"`
	Errors []EvalError `json:"errors,omitempty"`
	Fatal  string      `json:"fatal,omitempty"`
}

// Engine wraps the zygomys interpreter. It is safe for concurrent use;
// each call to Evaluate creates a fresh sandboxed environment, and only
// the most recent call's result is returned.
type Engine struct {
	mu         sync.Mutex
	generation uint64
}

// NewEngine creates a new Engine instance.
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate runs source and returns the project it declares.
//
// Return semantics:
//   - On success: returns script + nil errors + nil error
//   - On parse, eval or validation failure: returns nil script + eval errors + nil error
//   - On fatal failure (timeout, panic, superseded): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*Script, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("engine: panic during evaluation: %v", r)}
			}
		}()

		s, evalErrs, err := e.evaluate(source)
		ch <- evalResult{script: s, errors: evalErrs, err: err}
	}()

	return waitWithTimeout(ch, gen, &e.mu, &e.generation, EvalTimeout)
}

// Result is Evaluate folded into one value.
func (e *Engine) Result(source string) EvalResult {
	s, errs, err := e.Evaluate(source)
	res := EvalResult{Script: s, Errors: errs}
	if err != nil {
		res.Fatal = err.Error()
	}
	return res
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) (*Script, []EvalError, error) {
	b := newScriptBuilder()

	// Empty source is a valid program that declares an empty project.
	if strings.TrimSpace(source) == "" {
		return &Script{Project: b.p}, nil, nil
	}

	// Sandbox mode prevents user code from accessing the filesystem or syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()
	registerBuiltins(env, b)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}
	if _, err := env.Run(); err != nil {
		return nil, parseZygomysError(err), nil
	}

	return finish(b.p)
}

// finish validates the declared project. Blocking findings become eval
// errors; the rest are carried as warnings.
func finish(p project.Project) (*Script, []EvalError, error) {
	res := graph.Validate(p)
	if !res.OK() {
		errs := make([]EvalError, 0, len(res.Errors))
		for _, f := range res.Errors {
			errs = append(errs, EvalError{Message: f.Error()})
		}
		return nil, errs, nil
	}

	s := &Script{Project: p}
	for _, f := range res.Warnings {
		s.Warnings = append(s.Warnings, EvalWarning{
			Message:      f.Message,
			StepID:       f.StepID,
			ConnectionID: f.ConnectionID,
		})
	}
	return s, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ...".
// The detail may continue over several lines.
var linePattern = regexp.MustCompile(`(?is)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?is)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	// zygomys formats parse errors as "Error on line N: <details>\n"
	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{
				Line:    line,
				Message: strings.TrimSpace(m[2]),
			}}
		}
	}

	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
