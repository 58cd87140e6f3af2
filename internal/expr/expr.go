// Package expr compiles CEL expressions into request predicates.
//
// Expressions see the variables path, url, method and host (strings) and
// headers (a map from lower-cased header name to its comma-joined values),
// and must evaluate to a bool:
//
//	headers["authorization"] != "" || host.startsWith("10.")
package expr

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/inercia/scanblock/internal/scanblock"
)

var requestEnv = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("path", cel.StringType),
		cel.Variable("url", cel.StringType),
		cel.Variable("method", cel.StringType),
		cel.Variable("host", cel.StringType),
		cel.Variable("headers", cel.MapType(cel.StringType, cel.StringType)),
	)
})

// Vars are the values an expression is evaluated against.
type Vars struct {
	Path    string
	URL     string
	Method  string
	Host    string
	Headers http.Header
}

func (v Vars) activation() map[string]any {
	headers := make(map[string]string, len(v.Headers))
	for name, values := range v.Headers {
		headers[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	return map[string]any{
		"path":    v.Path,
		"url":     v.URL,
		"method":  v.Method,
		"host":    v.Host,
		"headers": headers,
	}
}

// Predicate is a compiled boolean expression. It is safe for concurrent use.
type Predicate struct {
	source  string
	program cel.Program
}

// Compile parses and type-checks source. Expressions that do not produce a
// bool are rejected.
func Compile(source string) (*Predicate, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("empty expression")
	}

	env, err := requestEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create expression environment: %w", err)
	}

	ast, issues := env.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", source, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression %q must evaluate to bool, not %s", source, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build expression %q: %w", source, err)
	}

	return &Predicate{source: source, program: program}, nil
}

// MustCompile is like Compile but panics on error. For constant expressions.
func MustCompile(source string) *Predicate {
	p, err := Compile(source)
	if err != nil {
		panic(err)
	}
	return p
}

// Eval evaluates the predicate against vars.
func (p *Predicate) Eval(vars Vars) (bool, error) {
	out, _, err := p.program.Eval(vars.activation())
	if err != nil {
		return false, fmt.Errorf("failed to evaluate %q: %w", p.source, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression %q returned %T, not bool", p.source, out.Value())
	}
	return b, nil
}

// Match implements scanblock.Predicate. Evaluation errors, such as a
// missing header key, count as no match.
func (p *Predicate) Match(req scanblock.Request) bool {
	ok, err := p.Eval(Vars{
		Path:    req.Path(),
		URL:     req.RawURL(),
		Method:  req.Method(),
		Host:    req.Host(),
		Headers: req.Headers(),
	})
	return err == nil && ok
}

// String returns the expression source.
func (p *Predicate) String() string {
	return p.source
}
