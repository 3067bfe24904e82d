package classify

import (
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/google/cel-go/cel"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/avaretry/internal/retry"
)

// ErrInvalidRule is returned when a rule cannot be compiled.
var ErrInvalidRule = errors.New("classify: invalid rule")

// Rule maps failures matching a CEL expression to a recovery action.
//
// The expression sees a single map variable, err, with the keys:
//
//	message      string  err.Error()
//	type         string  Go type of err, e.g. "*net.OpError"
//	http_status  int     status of a *ResponseError, 0 otherwise
//	grpc_code    string  gRPC code name, e.g. "Unavailable", "" without status
//	exit_code    int     exit status of an *exec.ExitError, -1 otherwise
//	timeout      bool    network timeout
//	network      bool    transient transport failure
type Rule struct {
	// Name identifies the rule in logs.
	Name string

	// When is a CEL expression evaluating to a bool.
	When string

	// Action is applied when When is true.
	Action retry.Action

	// After is the minimum delay for ActionRetryAfter.
	After time.Duration
}

type compiledRule struct {
	Rule
	program cel.Program
}

// Rules is a Classifier that evaluates rules in order. The first rule whose
// expression holds decides; when none does the fallback classifier is used.
type Rules struct {
	rules    []compiledRule
	fallback Classifier
	opts     options
}

var _ Classifier = (*Rules)(nil)

// NewRules compiles rules. A nil fallback gives up on unmatched failures.
func NewRules(rules []Rule, fallback Classifier, opts ...Option) (*Rules, error) {
	env, err := newRuleEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	if fallback == nil {
		fallback = Never()
	}

	r := &Rules{
		rules:    make([]compiledRule, 0, len(rules)),
		fallback: fallback,
		opts:     newOptions(opts),
	}

	for i, rule := range rules {
		if rule.Name == "" {
			rule.Name = fmt.Sprintf("rule-%d", i)
		}
		program, err := compileRule(env, rule)
		if err != nil {
			return nil, fmt.Errorf("%w %s: %w", ErrInvalidRule, rule.Name, err)
		}
		r.rules = append(r.rules, compiledRule{Rule: rule, program: program})
	}

	return r, nil
}

func newRuleEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("err", cel.MapType(cel.StringType, cel.DynType)),
	)
}

func compileRule(env *cel.Env, rule Rule) (cel.Program, error) {
	if rule.When == "" {
		return nil, errors.New("expression is empty")
	}
	if rule.Action == retry.ActionRetryAfter && rule.After <= 0 {
		return nil, errors.New("retry_after requires a positive delay")
	}

	ast, issues := env.Compile(rule.When)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", issues.Err())
	}
	switch out := ast.OutputType().String(); out {
	case "bool", "dyn":
	default:
		return nil, fmt.Errorf("expression must evaluate to bool, got %s", out)
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}
	return program, nil
}

// Classify implements retry.Classifier.
func (r *Rules) Classify(err error) Decision {
	if len(r.rules) == 0 {
		return r.fallback.Classify(err)
	}

	vars := map[string]any{"err": ErrorAttributes(err)}
	for _, rule := range r.rules {
		result, _, evalErr := rule.program.Eval(vars)
		if evalErr != nil {
			r.opts.logger.Warn("retry rule evaluation failed",
				zap.String("rule", rule.Name),
				zap.Error(evalErr),
			)
			continue
		}
		if matched, ok := result.Value().(bool); !ok || !matched {
			continue
		}

		switch rule.Action {
		case retry.ActionRetry:
			return retryNow()
		case retry.ActionRetryAfter:
			return retryAfter(r.opts.now, rule.After)
		default:
			return giveUp()
		}
	}

	return r.fallback.Classify(err)
}

// Len returns the number of compiled rules.
func (r *Rules) Len() int {
	return len(r.rules)
}

// ErrorAttributes returns the attributes of err visible to rule
// expressions.
func ErrorAttributes(err error) map[string]any {
	attrs := map[string]any{
		"message":     "",
		"type":        fmt.Sprintf("%T", err),
		"http_status": int64(HTTPStatus(err)),
		"grpc_code":   "",
		"exit_code":   int64(-1),
		"timeout":     IsTimeout(err),
		"network":     IsNetwork(err),
	}
	if err == nil {
		return attrs
	}

	attrs["message"] = err.Error()
	if hasGRPCStatus(err) {
		attrs["grpc_code"] = GRPCCode(err).String()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		attrs["exit_code"] = int64(exitErr.ExitCode())
	}
	return attrs
}
