package scan

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rendis/catalog/internal/expressions"
	"github.com/rendis/catalog/pkg/schema"
)

// DefaultBlockingExpr marks high-severity findings as blocking. It sees the
// variables severity, rule_id, file, line and plugin.
const DefaultBlockingExpr = `severity in ["ERROR", "CRITICAL", "HIGH", "error"]`

// Classifier decides the level of each finding with an expr predicate.
type Classifier struct {
	engine *expressions.ExprEngine
	expr   string
}

// NewClassifier compiles blockingExpr (DefaultBlockingExpr when empty) and
// returns a classifier. A predicate that fails to compile is a CONFIG_ERROR.
func NewClassifier(blockingExpr string) (*Classifier, error) {
	if strings.TrimSpace(blockingExpr) == "" {
		blockingExpr = DefaultBlockingExpr
	}
	c := &Classifier{engine: expressions.NewExprEngine(), expr: blockingExpr}
	if _, err := c.blocking(context.Background(), schema.Finding{}); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "invalid blocking predicate: %v", err).WithCause(err)
	}
	return c, nil
}

// Expr returns the predicate in use.
func (c *Classifier) Expr() string { return c.expr }

func (c *Classifier) blocking(ctx context.Context, f schema.Finding) (bool, error) {
	return c.engine.EvaluateBool(ctx, c.expr, map[string]any{
		"severity": f.Severity,
		"rule_id":  f.RuleID,
		"file":     f.File,
		"line":     f.Line,
		"plugin":   f.PluginID,
	})
}

// Classify sets Level on every finding. Findings the predicate cannot be
// evaluated for are treated as blocking.
func (c *Classifier) Classify(ctx context.Context, findings []schema.Finding) ([]schema.Finding, error) {
	out := make([]schema.Finding, len(findings))
	for i, f := range findings {
		block, err := c.blocking(ctx, f)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			block = true
		}
		if block {
			f.Level = schema.LevelBlocking
		} else {
			f.Level = schema.LevelAdvisory
		}
		out[i] = f
	}
	return out, nil
}

// Attribute assigns PluginID from the clone layout <root>/<plugin-dir>/...,
// where dirs maps a clone directory name to its plugin id.
func Attribute(findings []schema.Finding, root string, dirs map[string]string) []schema.Finding {
	out := make([]schema.Finding, len(findings))
	cleanRoot := filepath.ToSlash(filepath.Clean(root))
	for i, f := range findings {
		rel := filepath.ToSlash(filepath.Clean(f.File))
		if cleanRoot != "." && cleanRoot != "" {
			if r, ok := strings.CutPrefix(rel, cleanRoot+"/"); ok {
				rel = r
			} else if abs, err := filepath.Abs(root); err == nil {
				if r, ok := strings.CutPrefix(rel, filepath.ToSlash(abs)+"/"); ok {
					rel = r
				}
			}
		}
		first, _, _ := strings.Cut(rel, "/")
		if id, ok := dirs[first]; ok {
			f.PluginID = id
		}
		out[i] = f
	}
	return out
}

// Summarize splits classified findings by level.
func Summarize(findings []schema.Finding) *schema.ScanSummary {
	s := &schema.ScanSummary{Ran: true}
	for _, f := range findings {
		if f.Level == schema.LevelBlocking {
			s.Blocking = append(s.Blocking, f)
		} else {
			s.Advisory = append(s.Advisory, f)
		}
	}
	return s
}

// Load reads, attributes and classifies scanner output in one step. A missing
// file yields a summary with Ran false.
func Load(ctx context.Context, path, root string, dirs map[string]string, c *Classifier) (*schema.ScanSummary, error) {
	findings, err := LoadFindings(path)
	if errors.Is(err, ErrNoResults) {
		return &schema.ScanSummary{Ran: false}, nil
	}
	if err != nil {
		return nil, err
	}
	classified, err := c.Classify(ctx, Attribute(findings, root, dirs))
	if err != nil {
		return nil, fmt.Errorf("classify findings: %w", err)
	}
	return Summarize(classified), nil
}
