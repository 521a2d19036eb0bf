package filter

import (
	"slices"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/s0up4200/seedbrake/lucky"
)

// defaultCacheSize bounds the number of distinct expressions kept compiled.
const defaultCacheSize = 32

// Env is the environment an exclusion rule is evaluated against. Besides
// these fields, rules can use expr's built-in string operators
// (contains, startsWith, endsWith, matches) and functions (lower, upper, trim).
type Env struct {
	Source        string
	Key           string
	Label         string
	Rule          string
	Candidates    []string
	Connections   int64
	TrafficIn     int64
	TrafficOut    int64
	ServiceType   string
	DeviceEnabled bool
}

// Is reports whether id is one of the service's identifiers.
func (e Env) Is(id string) bool {
	return slices.Contains(e.Candidates, id)
}

func newEnv(source string, rec lucky.ServiceRecord) Env {
	return Env{
		Source:        source,
		Key:           rec.Key,
		Label:         rec.Label,
		Rule:          rec.Rule,
		Candidates:    rec.Candidates(),
		Connections:   rec.Connections,
		TrafficIn:     rec.TrafficIn,
		TrafficOut:    rec.TrafficOut,
		ServiceType:   rec.ServiceType,
		DeviceEnabled: rec.DeviceEnabled,
	}
}

// Rules is a compiled exclusion expression. A nil *Rules excludes nothing.
type Rules struct {
	expression string
	program    *vm.Program
}

// Expression returns the original expression
func (r *Rules) Expression() string {
	if r == nil {
		return ""
	}
	return r.expression
}

// Exclude reports whether rec should be dropped before filtering. On an
// evaluation error the record is kept and the error returned.
func (r *Rules) Exclude(source string, rec lucky.ServiceRecord) (bool, error) {
	if r == nil {
		return false, nil
	}

	out, err := expr.Run(r.program, newEnv(source, rec))
	if err != nil {
		return false, &EvaluationError{Expression: r.expression, Service: rec.Name(), Err: err}
	}

	// AsBool() at compile time guarantees the type.
	return out.(bool), nil
}

// Compiler compiles exclusion expressions and caches the programs so
// sources sharing an expression share one program.
type Compiler struct {
	cache *lruCache[*Rules]
}

// NewCompiler creates a compiler caching up to size programs.
func NewCompiler(size int) *Compiler {
	if size <= 0 {
		size = defaultCacheSize
	}
	return &Compiler{cache: newLRUCache[*Rules](size)}
}

// Compile compiles expression. An empty expression yields nil rules.
func (c *Compiler) Compile(expression string) (*Rules, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, nil
	}

	if cached, ok := c.cache.Get(expression); ok {
		return cached, nil
	}

	rules, err := CompileRules(expression)
	if err != nil {
		return nil, err
	}
	c.cache.Put(expression, rules)
	return rules, nil
}

// Size returns the number of cached programs.
func (c *Compiler) Size() int {
	return c.cache.Len()
}

// CompileRules compiles a single expression without caching.
func CompileRules(expression string) (*Rules, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, &CompilationError{
			Expression: expression,
			Reason:     "empty expression",
		}
	}

	program, err := expr.Compile(expression,
		expr.Env(Env{}),
		expr.AsBool(),
	)
	if err != nil {
		return nil, &CompilationError{
			Expression: expression,
			Reason:     "failed to compile expression",
			Err:        err,
		}
	}

	return &Rules{expression: expression, program: program}, nil
}
