package sideinput

import (
	"fmt"

	"github.com/specialistvlad/burstbeam/internal/codec"
	"github.com/specialistvlad/burstbeam/internal/pipeline"
	"github.com/specialistvlad/burstbeam/internal/transform"
	"github.com/zclconf/go-cty/cty"
)

// Compute derives the value of view from the source bag.
//
//	list, iter  a tuple of every element
//	singleton   the only element, or the default when the bag is empty
//	dict        an object built from [key, value] pairs
func Compute(view *pipeline.View, bag []cty.Value) (cty.Value, error) {
	switch view.Kind() {
	case pipeline.ViewList, pipeline.ViewIter:
		return codec.BagValue(bag), nil

	case pipeline.ViewSingleton:
		switch len(bag) {
		case 1:
			return bag[0], nil
		case 0:
			if def, ok := view.Default(); ok {
				return def, nil
			}
		}
		return cty.NilVal, fmt.Errorf("singleton view expects exactly one element, got %d", len(bag))

	case pipeline.ViewDict:
		if len(bag) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(bag))
		for _, item := range bag {
			k, v, err := transform.Pair(item)
			if err != nil {
				return cty.NilVal, err
			}
			ks, err := transform.KeyString(k)
			if err != nil {
				return cty.NilVal, err
			}
			if _, dup := attrs[ks]; dup {
				return cty.NilVal, fmt.Errorf("dict view has duplicate key %q", ks)
			}
			attrs[ks] = v
		}
		return cty.ObjectVal(attrs), nil
	}
	return cty.NilVal, fmt.Errorf("unsupported view kind %q", view.Kind())
}
