package hclpipeline

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes the top-level blocks of one file.
type fileRoot struct {
	Steps  []*stepBlock `hcl:"step,block"`
	Remain hcl.Body     `hcl:",remain"`
}

type stepBlock struct {
	Kind       string            `hcl:"kind,label"`
	Name       string            `hcl:"name,label"`
	Input      hcl.Expression    `hcl:"input,optional"`
	Inputs     hcl.Expression    `hcl:"inputs,optional"`
	Values     hcl.Expression    `hcl:"values,optional"`
	Expr       hcl.Expression    `hcl:"expr,optional"`
	Init       hcl.Expression    `hcl:"init,optional"`
	SideInputs []*sideInputBlock `hcl:"side_input,block"`
}

type sideInputBlock struct {
	Name    string         `hcl:"name,label"`
	From    hcl.Expression `hcl:"from"`
	View    string         `hcl:"view,optional"`
	Default hcl.Expression `hcl:"default,optional"`
}

// isExprDefined reports whether an optional attribute was written in the
// source. gohcl fills omitted optional expressions with zero-width
// placeholders.
func isExprDefined(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	r := expr.Range()
	return r.End.Byte > r.Start.Byte
}
