package transform

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/specialistvlad/burstbeam/internal/pipeline"
	"github.com/zclconf/go-cty/cty"
)

// Analysis lists what an expression refers to.
type Analysis struct {
	// References are the variable traversals, for example side.factor.
	References []hcl.Traversal
	// Functions are the names of called functions.
	Functions []string
}

// TraversalKey generates a stable, canonical string representation for an
// hcl.Traversal, suitable for use as a map key.
func TraversalKey(t hcl.Traversal) string {
	return string(hclwrite.TokensForTraversal(t).Bytes())
}

// Analyze parses src and extracts its references and function calls, both
// sorted.
func Analyze(label, src string) (Analysis, error) {
	expr, err := parse(label, src)
	if err != nil {
		return Analysis{}, err
	}

	traversals := make(map[string]hcl.Traversal)
	for _, t := range expr.Variables() {
		traversals[TraversalKey(t)] = t
	}
	functions := make(map[string]struct{})
	if syntaxExpr, ok := expr.(hclsyntax.Expression); ok {
		walkForFunctions(syntaxExpr, functions)
	}

	keys := make([]string, 0, len(traversals))
	for k := range traversals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var a Analysis
	for _, k := range keys {
		a.References = append(a.References, traversals[k])
	}
	for f := range functions {
		a.Functions = append(a.Functions, f)
	}
	sort.Strings(a.Functions)
	return a, nil
}

// Validate checks that src only refers to variables, side inputs and
// functions that exist when a transform of kind with the given side input
// names is evaluated.
func Validate(label string, kind pipeline.Kind, src string, sides []string) error {
	a, err := Analyze(label, src)
	if err != nil {
		return err
	}
	declared := make(map[string]struct{}, len(sides))
	for _, s := range sides {
		declared[s] = struct{}{}
	}

	for _, ref := range a.References {
		switch ref.RootName() {
		case "item":
		case "acc":
			if kind != pipeline.KindCombine {
				return fmt.Errorf("transform %q: acc is only available in combine expressions", label)
			}
		case "side":
			name, ok := sideName(ref)
			if !ok {
				return fmt.Errorf("transform %q: %s: side inputs are referenced as side.<name>", label, TraversalKey(ref))
			}
			if _, ok := declared[name]; !ok {
				return fmt.Errorf("transform %q: side input %q is not declared", label, name)
			}
		default:
			return fmt.Errorf("transform %q: unknown variable %q", label, ref.RootName())
		}
	}
	for _, f := range a.Functions {
		if _, ok := functions[f]; !ok {
			return fmt.Errorf("transform %q: unknown function %q", label, f)
		}
	}
	return nil
}

func sideName(t hcl.Traversal) (string, bool) {
	if len(t) < 2 {
		return "", false
	}
	switch step := t[1].(type) {
	case hcl.TraverseAttr:
		return step.Name, true
	case hcl.TraverseIndex:
		if step.Key.Type() == cty.String && step.Key.IsKnown() && !step.Key.IsNull() {
			return step.Key.AsString(), true
		}
	}
	return "", false
}

// walkForFunctions recursively walks the syntax tree collecting the names of
// called functions, which Variables() does not report.
func walkForFunctions(expr hclsyntax.Expression, functions map[string]struct{}) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case *hclsyntax.FunctionCallExpr:
		functions[e.Name] = struct{}{}
		for _, arg := range e.Args {
			walkForFunctions(arg, functions)
		}
	case *hclsyntax.BinaryOpExpr:
		walkForFunctions(e.LHS, functions)
		walkForFunctions(e.RHS, functions)
	case *hclsyntax.ConditionalExpr:
		walkForFunctions(e.Condition, functions)
		walkForFunctions(e.TrueResult, functions)
		walkForFunctions(e.FalseResult, functions)
	case *hclsyntax.UnaryOpExpr:
		walkForFunctions(e.Val, functions)
	case *hclsyntax.TemplateExpr:
		for _, part := range e.Parts {
			walkForFunctions(part, functions)
		}
	case *hclsyntax.TemplateWrapExpr:
		walkForFunctions(e.Wrapped, functions)
	case *hclsyntax.TupleConsExpr:
		for _, item := range e.Exprs {
			walkForFunctions(item, functions)
		}
	case *hclsyntax.ObjectConsExpr:
		for _, item := range e.Items {
			walkForFunctions(item.KeyExpr, functions)
			walkForFunctions(item.ValueExpr, functions)
		}
	case *hclsyntax.ForExpr:
		walkForFunctions(e.CollExpr, functions)
		walkForFunctions(e.KeyExpr, functions)
		walkForFunctions(e.ValExpr, functions)
		walkForFunctions(e.CondExpr, functions)
	case *hclsyntax.IndexExpr:
		walkForFunctions(e.Collection, functions)
		walkForFunctions(e.Key, functions)
	case *hclsyntax.SplatExpr:
		walkForFunctions(e.Source, functions)
		walkForFunctions(e.Each, functions)
	case *hclsyntax.ParenthesesExpr:
		walkForFunctions(e.Expression, functions)
	case *hclsyntax.RelativeTraversalExpr:
		walkForFunctions(e.Source, functions)
	}
}
