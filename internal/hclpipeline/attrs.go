package hclpipeline

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/burstbeam/internal/pipeline"
	"github.com/specialistvlad/burstbeam/internal/transform"
	"github.com/zclconf/go-cty/cty"
)

func (l *Loader) evalContext() *hcl.EvalContext {
	env := cty.EmptyObjectVal
	if len(l.Env) > 0 {
		vals := make(map[string]cty.Value, len(l.Env))
		for k, v := range l.Env {
			vals[k] = cty.StringVal(v)
		}
		env = cty.ObjectVal(vals)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": env},
		Functions: transform.Functions(),
	}
}

// stepFn translates the attributes of a step block into a pipeline.Fn.
func stepFn(ps parsedStep, evalCtx *hcl.EvalContext) (pipeline.Fn, error) {
	b := ps.block
	kind, err := pipeline.ParseKind(b.Kind)
	if err != nil {
		return pipeline.Fn{}, fmt.Errorf("step %q: %w", b.Name, err)
	}
	fn := pipeline.Fn{Kind: kind}

	if isExprDefined(b.Values) {
		if kind != pipeline.KindCreate {
			return fn, fmt.Errorf("%s: step %q: values is only valid for create steps", b.Values.Range(), b.Name)
		}
		v, diags := b.Values.Value(evalCtx)
		if diags.HasErrors() {
			return fn, fmt.Errorf("step %q: values: %w", b.Name, diags)
		}
		if v.IsNull() || !(v.Type().IsListType() || v.Type().IsTupleType() || v.Type().IsSetType()) {
			return fn, fmt.Errorf("%s: step %q: values must be a list", b.Values.Range(), b.Name)
		}
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			fn.Payload.Values = append(fn.Payload.Values, elem)
		}
	}

	switch {
	case isExprDefined(b.Expr) && !kind.UsesExpr():
		return fn, fmt.Errorf("%s: step %q: %s steps take no expr", b.Expr.Range(), b.Name, kind)
	case isExprDefined(b.Expr):
		src := exprSource(b.Expr, ps.src)
		sides := make([]string, 0, len(b.SideInputs))
		for _, si := range b.SideInputs {
			sides = append(sides, si.Name)
		}
		if err := transform.Validate(b.Name, kind, src, sides); err != nil {
			return fn, err
		}
		fn.Payload.Expr = src
	case kind.UsesExpr():
		return fn, fmt.Errorf("step %q: %s steps require expr", b.Name, kind)
	}

	if isExprDefined(b.Init) {
		if kind != pipeline.KindCombine {
			return fn, fmt.Errorf("%s: step %q: init is only valid for combine steps", b.Init.Range(), b.Name)
		}
		v, diags := b.Init.Value(evalCtx)
		if diags.HasErrors() {
			return fn, fmt.Errorf("step %q: init: %w", b.Name, diags)
		}
		fn.Payload.Init = v
	}
	return fn, nil
}

// exprSource returns the expression text of expr. A constant string is
// taken as the expression itself, so both `expr = item + 1` and
// `expr = "item + 1"` work.
func exprSource(expr hcl.Expression, src []byte) string {
	if len(expr.Variables()) == 0 {
		if v, diags := expr.Value(nil); !diags.HasErrors() && v.Type() == cty.String && v.IsKnown() && !v.IsNull() {
			return v.AsString()
		}
	}
	return string(expr.Range().SliceBytes(src))
}

// ref is a parsed reference to another step's output.
type ref struct {
	begin bool
	name  string
}

func (r ref) resolve(p *pipeline.Pipeline, declared map[string]*pipeline.Transform) *pipeline.PCollection {
	if r.begin {
		return p.Begin()
	}
	if t, ok := declared[r.name]; ok {
		return t.Output()
	}
	return pipeline.Unbound(r.name)
}

// parseRef accepts step.<name> or pipeline.begin.
func parseRef(expr hcl.Expression) (ref, error) {
	trav, diags := hcl.AbsTraversalForExpr(expr)
	if diags.HasErrors() || len(trav) != 2 {
		return ref{}, fmt.Errorf("%s: expected a reference like step.<name>", expr.Range())
	}
	attr, ok := trav[1].(hcl.TraverseAttr)
	if !ok {
		return ref{}, fmt.Errorf("%s: expected a reference like step.<name>", expr.Range())
	}
	switch trav.RootName() {
	case "step":
		return ref{name: attr.Name}, nil
	case "pipeline":
		if attr.Name == "begin" {
			return ref{begin: true}, nil
		}
	}
	return ref{}, fmt.Errorf("%s: unknown reference %s.%s", expr.Range(), trav.RootName(), attr.Name)
}

func inputRefs(b *stepBlock) ([]ref, error) {
	single, many := isExprDefined(b.Input), isExprDefined(b.Inputs)
	switch {
	case single && many:
		return nil, fmt.Errorf("step %q: set either input or inputs, not both", b.Name)
	case single:
		r, err := parseRef(b.Input)
		if err != nil {
			return nil, fmt.Errorf("step %q: input: %w", b.Name, err)
		}
		return []ref{r}, nil
	case many:
		exprs, diags := hcl.ExprList(b.Inputs)
		if diags.HasErrors() {
			return nil, fmt.Errorf("step %q: inputs: %w", b.Name, diags)
		}
		refs := make([]ref, 0, len(exprs))
		for _, e := range exprs {
			r, err := parseRef(e)
			if err != nil {
				return nil, fmt.Errorf("step %q: inputs: %w", b.Name, err)
			}
			refs = append(refs, r)
		}
		return refs, nil
	}
	return nil, nil
}

func sideInput(step string, si *sideInputBlock, p *pipeline.Pipeline, declared map[string]*pipeline.Transform, evalCtx *hcl.EvalContext) (*pipeline.View, error) {
	r, err := parseRef(si.From)
	if err != nil {
		return nil, fmt.Errorf("step %q: side input %q: %w", step, si.Name, err)
	}
	src := r.resolve(p, declared)

	kind := pipeline.ViewKind(si.View)
	if kind == "" {
		kind = pipeline.ViewList
	}
	hasDefault := isExprDefined(si.Default)
	if hasDefault && kind != pipeline.ViewSingleton {
		return nil, fmt.Errorf("step %q: side input %q: default is only valid for singleton views", step, si.Name)
	}

	switch kind {
	case pipeline.ViewList:
		return src.AsList(si.Name), nil
	case pipeline.ViewIter:
		return src.AsIter(si.Name), nil
	case pipeline.ViewDict:
		return src.AsDict(si.Name), nil
	case pipeline.ViewSingleton:
		if !hasDefault {
			return src.AsSingleton(si.Name), nil
		}
		def, diags := si.Default.Value(evalCtx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("step %q: side input %q: default: %w", step, si.Name, diags)
		}
		return src.AsSingletonWithDefault(si.Name, def), nil
	}
	return nil, fmt.Errorf("step %q: side input %q: unknown view %q", step, si.Name, si.View)
}
