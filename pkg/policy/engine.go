// Package policy evaluates Rego policies against backend add requests.
// Built-in policies cover naming conventions and credential hygiene;
// deployments can load additional policies from disk.
package policy

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// Engine compiles and evaluates policies. Evaluation collects the deny
// set of every enabled policy; any error or critical violation blocks
// the request.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

type compiledPolicy struct {
	policy Policy
	query  rego.PreparedEvalQuery
}

// NewEngine creates a policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}
	for _, p := range BuiltinPolicies() {
		if err := e.Add(context.Background(), p); err != nil {
			return nil, fmt.Errorf("failed to load built-in policies: %w", err)
		}
	}
	return e, nil
}

var packagePattern = regexp.MustCompile(`(?m)^package\s+([a-zA-Z0-9_.]+)`)

// Add compiles a policy and makes it available for evaluation.
func (e *Engine) Add(ctx context.Context, p Policy) error {
	m := packagePattern.FindStringSubmatch(p.Rego)
	if m == nil {
		return fmt.Errorf("policy %s has no package declaration", p.Name)
	}

	query, err := rego.New(
		rego.Module(p.Name, p.Rego),
		rego.Query(fmt.Sprintf("data.%s.deny", m[1])),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to compile policy %s: %w", p.Name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[p.Name] = &compiledPolicy{policy: p, query: query}
	return nil
}

// Evaluate runs every enabled policy against the input.
func (e *Engine) Evaluate(ctx context.Context, input Input) (*Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	start := time.Now()
	var violations []Violation
	var warnings []string

	for _, cp := range e.policies {
		if !cp.policy.Enabled {
			continue
		}

		found, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", cp.policy.Name).
				Msg("Policy evaluation failed")
			warnings = append(warnings, fmt.Sprintf("policy %s evaluation failed: %v", cp.policy.Name, err))
			continue
		}
		violations = append(violations, found...)
	}

	allowed := true
	for i := range violations {
		if violations[i].Severity == string(SeverityError) || violations[i].Severity == string(SeverityCritical) {
			allowed = false
			break
		}
	}

	e.logger.Debug().
		Str("backend", input.Name).
		Int("violations", len(violations)).
		Dur("duration", time.Since(start)).
		Msg("Policy evaluation completed")

	return &Result{
		Allowed:     allowed,
		Violations:  violations,
		Warnings:    warnings,
		EvaluatedAt: time.Now(),
	}, nil
}

func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input Input) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			set, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, item := range set {
				obj, ok := item.(map[string]interface{})
				if !ok {
					continue
				}
				v := Violation{
					Policy:   cp.policy.Name,
					Severity: string(cp.policy.Severity),
				}
				if msg, ok := obj["message"].(string); ok {
					v.Message = msg
				}
				if sev, ok := obj["severity"].(string); ok {
					v.Severity = sev
				}
				violations = append(violations, v)
			}
		}
	}
	return violations, nil
}
