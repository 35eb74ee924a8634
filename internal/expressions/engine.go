package expressions

import "context"

// Engine evaluates expressions against catalog data.
// Three implementations: GoJQ (change detection), CEL (policy rules), Expr (scan gating).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
