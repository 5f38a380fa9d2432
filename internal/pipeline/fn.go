package pipeline

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// Kind is the closed set of transform kinds understood by the evaluator.
type Kind string

const (
	KindCreate     Kind = "create"
	KindMap        Kind = "map"
	KindFilter     Kind = "filter"
	KindFlatMap    Kind = "flat_map"
	KindGroupByKey Kind = "group_by_key"
	KindFlatten    Kind = "flatten"
	KindCombine    Kind = "combine"
	KindNoOp       Kind = "noop"
)

var kinds = map[Kind]struct{}{
	KindCreate: {}, KindMap: {}, KindFilter: {}, KindFlatMap: {},
	KindGroupByKey: {}, KindFlatten: {}, KindCombine: {}, KindNoOp: {},
}

// ParseKind converts a user-supplied kind name into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := kinds[k]; !ok {
		return "", fmt.Errorf("unknown transform kind %q", s)
	}
	return k, nil
}

// UsesExpr reports whether transforms of this kind carry an expression.
func (k Kind) UsesExpr() bool {
	switch k {
	case KindMap, KindFilter, KindFlatMap, KindCombine:
		return true
	}
	return false
}

// Payload is the user logic of a transform. Only the fields relevant to the
// transform's Kind are set.
type Payload struct {
	// Values are the elements emitted by a create transform.
	Values []cty.Value
	// Expr is HCL expression source evaluated per element. It can reference
	// `item`, `side.<view>` and, for combine, `acc`.
	Expr string
	// Init is the initial accumulator of a combine transform.
	Init cty.Value
}

// Fn describes what a transform does: its kind, payload and side inputs.
type Fn struct {
	Kind       Kind
	Payload    Payload
	SideInputs []*View
}

// Create emits the given values.
func Create(values ...cty.Value) Fn {
	return Fn{Kind: KindCreate, Payload: Payload{Values: values}}
}

// Map evaluates expr once per element.
func Map(expr string, sides ...*View) Fn {
	return Fn{Kind: KindMap, Payload: Payload{Expr: expr}, SideInputs: sides}
}

// Filter keeps the elements for which expr evaluates to true.
func Filter(expr string, sides ...*View) Fn {
	return Fn{Kind: KindFilter, Payload: Payload{Expr: expr}, SideInputs: sides}
}

// FlatMap evaluates expr once per element and emits every element of the
// resulting collection.
func FlatMap(expr string, sides ...*View) Fn {
	return Fn{Kind: KindFlatMap, Payload: Payload{Expr: expr}, SideInputs: sides}
}

// Combine folds all elements into one, starting from init.
func Combine(init cty.Value, expr string, sides ...*View) Fn {
	return Fn{Kind: KindCombine, Payload: Payload{Expr: expr, Init: init}, SideInputs: sides}
}

// GroupByKey groups [key, value] pairs by key.
func GroupByKey() Fn { return Fn{Kind: KindGroupByKey} }

// Flatten concatenates all of its inputs.
func Flatten() Fn { return Fn{Kind: KindFlatten} }

// NoOp passes its single input through unchanged.
func NoOp() Fn { return Fn{Kind: KindNoOp} }
