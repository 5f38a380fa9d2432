package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

// recorder visits each transform once and records the Leave order.
type recorder struct {
	seen   map[*Transform]bool
	order  []string
	failOn string
}

func (r *recorder) Enter(t *Transform) (bool, error) {
	if r.seen[t] {
		return false, nil
	}
	r.seen[t] = true
	return true, nil
}

func (r *recorder) Leave(t *Transform) error {
	if t.Label() == r.failOn {
		return errors.New("stop")
	}
	r.order = append(r.order, t.Label())
	return nil
}

func newRecorder() *recorder { return &recorder{seen: map[*Transform]bool{}} }

func TestWalk_ProducersBeforeConsumers(t *testing.T) {
	p := New()
	// Declare the consumer first so that application order and dependency
	// order disagree.
	sum := p.Declare("sum", Combine(cty.NumberIntVal(0), "acc + item"))
	nums := p.Apply("nums", Create(cty.NumberIntVal(1), cty.NumberIntVal(2)))
	factor := p.Apply("factor", Create(cty.NumberIntVal(3)))
	scaled := p.Apply("scaled", Map("item * side.f", factor.AsSingleton("f")), nums)
	sum.AddInput(scaled)

	r := newRecorder()
	require.NoError(t, Walk(p, r))
	assert.Equal(t, []string{"nums", "factor", "scaled", "sum"}, r.order)
}

func TestWalk_SkipsUnboundAndForeignProducers(t *testing.T) {
	other := New()
	foreign := other.Apply("foreign", Create())

	p := New()
	p.Apply("a", NoOp(), Unbound("missing"))
	p.Apply("b", NoOp(), foreign)

	r := newRecorder()
	require.NoError(t, Walk(p, r))
	assert.Equal(t, []string{"a", "b"}, r.order)
}

func TestWalk_StopsOnVisitorError(t *testing.T) {
	p := New()
	a := p.Apply("a", Create())
	p.Apply("b", NoOp(), a)
	p.Apply("c", NoOp(), a)

	r := newRecorder()
	r.failOn = "b"
	assert.EqualError(t, Walk(p, r), "stop")
	assert.Equal(t, []string{"a"}, r.order)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("group_by_key")
	require.NoError(t, err)
	assert.Equal(t, KindGroupByKey, k)
	assert.False(t, k.UsesExpr())
	assert.True(t, KindCombine.UsesExpr())

	_, err = ParseKind("window")
	assert.ErrorContains(t, err, `unknown transform kind "window"`)
}

func TestBeginMarker(t *testing.T) {
	p := New()
	out := p.Apply("read", Create(cty.StringVal("x")), p.Begin())
	assert.True(t, p.Begin().IsBegin())
	assert.Nil(t, p.Begin().Producer())
	assert.Equal(t, "read", out.Name())
	assert.True(t, p.Owns(out.Producer()))
	require.Len(t, out.Producer().Inputs(), 1)
}
