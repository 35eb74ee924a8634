package validation

import (
	"context"
	"fmt"

	"github.com/rendis/catalog/internal/expressions"
	"github.com/rendis/catalog/pkg/schema"
)

// Rule is a CEL predicate every changed record must satisfy. The record is
// bound to `plugin`; `meta.kind` is "added" or "modified".
type Rule struct {
	Name     string `json:"name" yaml:"name" mapstructure:"name"`
	Expr     string `json:"expr" yaml:"expr" mapstructure:"expr"`
	Message  string `json:"message,omitempty" yaml:"message,omitempty" mapstructure:"message"`
	Severity string `json:"severity,omitempty" yaml:"severity,omitempty" mapstructure:"severity"`
}

func (r Rule) severity() schema.ValidationSeverity {
	if r.Severity == string(schema.SeverityWarning) {
		return schema.SeverityWarning
	}
	return schema.SeverityError
}

// policy evaluates configured rules with a shared CEL engine.
type policy struct {
	cel   *expressions.CELEngine
	rules []Rule
}

func newPolicy(rules []Rule) (*policy, error) {
	if len(rules) == 0 {
		return &policy{}, nil
	}
	engine, err := expressions.NewCELEngine()
	if err != nil {
		return nil, err
	}
	for i, r := range rules {
		if r.Name == "" {
			return nil, schema.NewErrorf(schema.ErrCodeConfig, "policy rule %d has no name", i)
		}
		if r.Severity != "" && r.Severity != string(schema.SeverityError) && r.Severity != string(schema.SeverityWarning) {
			return nil, schema.NewErrorf(schema.ErrCodeConfig, "policy rule %q: severity must be error or warning", r.Name)
		}
		if err := engine.Check(r.Expr); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeConfig, "policy rule %q: %v", r.Name, err).WithCause(err)
		}
	}
	return &policy{cel: engine, rules: rules}, nil
}

func (p *policy) check(ctx context.Context, e schema.Entry, kind schema.ChangeKind, result *schema.ValidationResult) {
	if len(p.rules) == 0 {
		return
	}
	data := map[string]any{
		"plugin": e.Raw,
		"meta":   map[string]any{"kind": string(kind), "index": e.Index},
	}
	for _, r := range p.rules {
		ok, err := p.cel.EvaluateBool(ctx, r.Expr, data)
		if err == nil && ok {
			continue
		}
		msg, sev := r.Message, r.severity()
		if msg == "" {
			msg = fmt.Sprintf("violates policy %q", r.Name)
		}
		// A rule that cannot be evaluated fails the batch whatever its severity.
		if err != nil {
			msg = fmt.Sprintf("policy %q could not be evaluated: %v", r.Name, err)
			sev = schema.SeverityError
		}
		result.Add(schema.ValidationIssue{
			Path:     entryPath(e),
			PluginID: e.Label(),
			Field:    r.Name,
			Code:     schema.IssuePolicyViolation,
			Message:  msg,
			Severity: sev,
		})
	}
}
