package registry

import (
	"context"
	"fmt"

	"github.com/rendis/catalog/internal/expressions"
	"github.com/rendis/catalog/pkg/schema"
)

// changedQuery emits one object per head record that has no identical copy
// with the same id in $base. previous is the first base record sharing the id.
const changedQuery = `
[$base.plugins[]? | objects] as $b
| .plugins as $head
| range(0; $head | length) as $i
| $head[$i] as $p
| [$b[] | select(.id == $p.id)] as $same
| select(($same | any(. == $p)) | not)
| {index: $i, previous: (if $p.id == null or $p.id == "" then null else $same[0] end)}
`

// ChangeSet partitions head entries by their relation to the base branch.
type ChangeSet struct {
	Added     []schema.Change `json:"added"`
	Modified  []schema.Change `json:"modified"`
	Unchanged []schema.Entry  `json:"unchanged"`
}

// Changes returns added and modified changes in document order.
func (c *ChangeSet) Changes() []schema.Change {
	out := make([]schema.Change, 0, len(c.Added)+len(c.Modified))
	i, j := 0, 0
	for i < len(c.Added) || j < len(c.Modified) {
		switch {
		case j >= len(c.Modified):
			out = append(out, c.Added[i])
			i++
		case i >= len(c.Added):
			out = append(out, c.Modified[j])
			j++
		case c.Added[i].Entry.Index < c.Modified[j].Entry.Index:
			out = append(out, c.Added[i])
			i++
		default:
			out = append(out, c.Modified[j])
			j++
		}
	}
	return out
}

// Entries returns the changed entries in document order.
func (c *ChangeSet) Entries() []schema.Entry {
	changes := c.Changes()
	out := make([]schema.Entry, len(changes))
	for i, ch := range changes {
		out[i] = ch.Entry
	}
	return out
}

// Len returns the number of changed entries.
func (c *ChangeSet) Len() int { return len(c.Added) + len(c.Modified) }

// AllChanged marks every head entry as added. Used for full audits.
func AllChanged(head *schema.Registry) *ChangeSet {
	cs := &ChangeSet{}
	for _, e := range head.Plugins {
		cs.Added = append(cs.Added, schema.Change{Kind: schema.ChangeAdded, Entry: e})
	}
	return cs
}

// Differ computes change sets with a jq program.
type Differ struct {
	jq *expressions.GoJQEngine
}

// NewDiffer creates a Differ. A nil engine gets a fresh one.
func NewDiffer(jq *expressions.GoJQEngine) *Differ {
	if jq == nil {
		jq = expressions.NewGoJQEngine()
	}
	return &Differ{jq: jq}
}

// Diff compares head with base. A nil base makes every head entry new.
func (d *Differ) Diff(ctx context.Context, head, base *schema.Registry) (*ChangeSet, error) {
	if base == nil {
		return AllChanged(head), nil
	}

	results, err := d.jq.EvaluateWithVars(ctx, changedQuery, head.Document, map[string]any{"base": base.Document})
	if err != nil {
		return nil, fmt.Errorf("diff registry: %w", err)
	}

	changed := make(map[int]map[string]any, len(results))
	for _, r := range results {
		obj, ok := r.(map[string]any)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeExecution, "diff registry: unexpected jq output %T", r)
		}
		idx, ok := toIndex(obj["index"])
		if !ok || idx < 0 || idx >= len(head.Plugins) {
			return nil, schema.NewErrorf(schema.ErrCodeExecution, "diff registry: bad index %v", obj["index"])
		}
		prev, _ := obj["previous"].(map[string]any)
		changed[idx] = prev
	}

	cs := &ChangeSet{}
	for _, e := range head.Plugins {
		prev, isChanged := changed[e.Index]
		switch {
		case !isChanged:
			cs.Unchanged = append(cs.Unchanged, e)
		case prev != nil:
			cs.Modified = append(cs.Modified, schema.Change{Kind: schema.ChangeModified, Entry: e, Previous: prev})
		default:
			cs.Added = append(cs.Added, schema.Change{Kind: schema.ChangeAdded, Entry: e})
		}
	}
	return cs, nil
}

func toIndex(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), n == float64(int(n))
	default:
		return 0, false
	}
}
