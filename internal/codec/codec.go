// Package codec encodes element values and bags as cty JSON. The encoding
// carries type information, so values round-trip exactly between the
// coordinator, remote workers and object storage.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// EncodeValue marshals v together with its type.
func EncodeValue(v cty.Value) (json.RawMessage, error) {
	if v == cty.NilVal {
		v = cty.NullVal(cty.DynamicPseudoType)
	}
	b, err := ctyjson.Marshal(v, cty.DynamicPseudoType)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return b, nil
}

// DecodeValue reverses EncodeValue.
func DecodeValue(b json.RawMessage) (cty.Value, error) {
	if len(b) == 0 {
		return cty.NilVal, nil
	}
	v, err := ctyjson.Unmarshal(b, cty.DynamicPseudoType)
	if err != nil {
		return cty.NilVal, fmt.Errorf("decode value: %w", err)
	}
	return v, nil
}

// EncodeBag marshals a bag as a tuple.
func EncodeBag(bag []cty.Value) (json.RawMessage, error) {
	return EncodeValue(BagValue(bag))
}

// DecodeBag reverses EncodeBag.
func DecodeBag(b json.RawMessage) ([]cty.Value, error) {
	v, err := DecodeValue(b)
	if err != nil {
		return nil, err
	}
	if v == cty.NilVal || v.IsNull() {
		return nil, nil
	}
	if !v.Type().IsTupleType() && !v.Type().IsListType() {
		return nil, fmt.Errorf("decode bag: expected a tuple, got %s", v.Type().FriendlyName())
	}
	out := make([]cty.Value, 0, v.LengthInt())
	for it := v.ElementIterator(); it.Next(); {
		_, e := it.Element()
		out = append(out, e)
	}
	return out, nil
}

// BagValue returns bag as a single tuple value.
func BagValue(bag []cty.Value) cty.Value {
	if len(bag) == 0 {
		return cty.EmptyTupleVal
	}
	return cty.TupleVal(bag)
}

// EncodeBags encodes several bags, preserving their order.
func EncodeBags(bags [][]cty.Value) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(bags))
	for i, bag := range bags {
		b, err := EncodeBag(bag)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// DecodeBags reverses EncodeBags.
func DecodeBags(raw []json.RawMessage) ([][]cty.Value, error) {
	out := make([][]cty.Value, 0, len(raw))
	for i, b := range raw {
		bag, err := DecodeBag(b)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		out = append(out, bag)
	}
	return out, nil
}

// PlainJSON marshals bag as a JSON array without type information, for
// people rather than programs.
func PlainJSON(bag []cty.Value) (json.RawMessage, error) {
	v := BagValue(bag)
	b, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return nil, fmt.Errorf("encode bag: %w", err)
	}
	return b, nil
}
