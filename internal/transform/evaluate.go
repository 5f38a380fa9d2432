package transform

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/burstbeam/internal/ctxlog"
	"github.com/specialistvlad/burstbeam/internal/pipeline"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Call is everything needed to run one step: its logic and its
// materialized inputs.
type Call struct {
	// Label names the step in diagnostics.
	Label   string
	Kind    pipeline.Kind
	Payload pipeline.Payload
	// Inputs holds one bag per declared data input, in declaration order.
	// Begin-marker inputs contribute an empty bag.
	Inputs [][]cty.Value
	// SideInputs maps view names to their materialized values.
	SideInputs map[string]cty.Value
}

// Evaluate runs c and returns the output bag.
func Evaluate(ctx context.Context, c Call) ([]cty.Value, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Evaluating transform.", "label", c.Label, "kind", c.Kind, "inputs", len(c.Inputs))

	var expr hcl.Expression
	if c.Kind.UsesExpr() {
		var err error
		if expr, err = parse(c.Label, c.Payload.Expr); err != nil {
			return nil, err
		}
	}
	items := concat(c.Inputs)
	sides := sideObject(c.SideInputs)

	switch c.Kind {
	case pipeline.KindCreate:
		return append([]cty.Value(nil), c.Payload.Values...), nil

	case pipeline.KindNoOp, pipeline.KindFlatten:
		return items, nil

	case pipeline.KindMap:
		out := make([]cty.Value, 0, len(items))
		for _, item := range items {
			v, err := eval(ctx, expr, scope(item, sides))
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case pipeline.KindFilter:
		var out []cty.Value
		for _, item := range items {
			v, err := eval(ctx, expr, scope(item, sides))
			if err != nil {
				return nil, err
			}
			keep, err := truthy(v)
			if err != nil {
				return nil, fmt.Errorf("filter %q: %w", c.Label, err)
			}
			if keep {
				out = append(out, item)
			}
		}
		return out, nil

	case pipeline.KindFlatMap:
		var out []cty.Value
		for _, item := range items {
			v, err := eval(ctx, expr, scope(item, sides))
			if err != nil {
				return nil, err
			}
			elems, err := elements(v)
			if err != nil {
				return nil, fmt.Errorf("flat_map %q: %w", c.Label, err)
			}
			out = append(out, elems...)
		}
		return out, nil

	case pipeline.KindCombine:
		acc := c.Payload.Init
		if acc == cty.NilVal {
			acc = cty.NullVal(cty.DynamicPseudoType)
		}
		for _, item := range items {
			vars := scope(item, sides)
			vars["acc"] = acc
			v, err := eval(ctx, expr, vars)
			if err != nil {
				return nil, err
			}
			acc = v
		}
		return []cty.Value{acc}, nil

	case pipeline.KindGroupByKey:
		return groupByKey(c.Label, items)
	}
	return nil, fmt.Errorf("transform %q: unsupported kind %q", c.Label, c.Kind)
}

// Check reports syntax errors in an expression without evaluating it.
func Check(label, src string) error {
	_, err := parse(label, src)
	return err
}

func parse(label, src string) (hcl.Expression, error) {
	if src == "" {
		return nil, fmt.Errorf("transform %q: missing expression", label)
	}
	expr, diags := hclsyntax.ParseExpression([]byte(src), label, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("transform %q: %w", label, diags)
	}
	return expr, nil
}

func scope(item, sides cty.Value) map[string]cty.Value {
	return map[string]cty.Value{
		"item": item,
		"side": sides,
	}
}

func eval(ctx context.Context, expr hcl.Expression, vars map[string]cty.Value) (cty.Value, error) {
	if err := ctx.Err(); err != nil {
		return cty.NilVal, err
	}
	v, diags := expr.Value(&hcl.EvalContext{Variables: vars, Functions: functions})
	if diags.HasErrors() {
		return cty.NilVal, diags
	}
	if !v.IsWhollyKnown() {
		return cty.NilVal, fmt.Errorf("expression %s produced an unknown value", expr.Range())
	}
	return v, nil
}

func sideObject(sides map[string]cty.Value) cty.Value {
	if len(sides) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(sides)
}

func concat(bags [][]cty.Value) []cty.Value {
	n := 0
	for _, b := range bags {
		n += len(b)
	}
	out := make([]cty.Value, 0, n)
	for _, b := range bags {
		out = append(out, b...)
	}
	return out
}

func truthy(v cty.Value) (bool, error) {
	if v.IsNull() {
		return false, fmt.Errorf("predicate returned null")
	}
	if !v.Type().Equals(cty.Bool) {
		return false, fmt.Errorf("predicate must return bool, got %s", v.Type().FriendlyName())
	}
	return v.True(), nil
}

// elements returns the members of a list, set or tuple value.
func elements(v cty.Value) ([]cty.Value, error) {
	if v.IsNull() {
		return nil, nil
	}
	ty := v.Type()
	if !ty.IsListType() && !ty.IsSetType() && !ty.IsTupleType() {
		return nil, fmt.Errorf("expected a collection, got %s", ty.FriendlyName())
	}
	out := make([]cty.Value, 0, v.LengthInt())
	for it := v.ElementIterator(); it.Next(); {
		_, e := it.Element()
		out = append(out, e)
	}
	return out, nil
}

// Pair splits a two-element list or tuple into key and value.
func Pair(v cty.Value) (cty.Value, cty.Value, error) {
	elems, err := elements(v)
	if err != nil || len(elems) != 2 {
		ty := "null"
		if !v.IsNull() {
			ty = v.Type().FriendlyName()
		}
		return cty.NilVal, cty.NilVal, fmt.Errorf("expected a [key, value] pair, got %s", ty)
	}
	return elems[0], elems[1], nil
}

// KeyString returns a canonical string for a grouping key.
func KeyString(k cty.Value) (string, error) {
	if k.Type() == cty.String && !k.IsNull() {
		return k.AsString(), nil
	}
	b, err := ctyjson.Marshal(k, cty.DynamicPseudoType)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// groupByKey emits one [key, [values...]] pair per distinct key, in the
// order keys are first seen.
func groupByKey(label string, items []cty.Value) ([]cty.Value, error) {
	type group struct {
		key    cty.Value
		values []cty.Value
	}
	var order []string
	groups := make(map[string]*group)
	for _, item := range items {
		k, v, err := Pair(item)
		if err != nil {
			return nil, fmt.Errorf("group_by_key %q: %w", label, err)
		}
		ks, err := KeyString(k)
		if err != nil {
			return nil, fmt.Errorf("group_by_key %q: %w", label, err)
		}
		g, ok := groups[ks]
		if !ok {
			g = &group{key: k}
			groups[ks] = g
			order = append(order, ks)
		}
		g.values = append(g.values, v)
	}
	out := make([]cty.Value, 0, len(order))
	for _, ks := range order {
		g := groups[ks]
		out = append(out, cty.TupleVal([]cty.Value{g.key, cty.TupleVal(g.values)}))
	}
	return out, nil
}
