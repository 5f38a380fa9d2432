package graph

import (
	"context"
	"fmt"

	"github.com/specialistvlad/burstbeam/internal/ctxlog"
	"github.com/specialistvlad/burstbeam/internal/pipeline"
	"github.com/specialistvlad/burstbeam/internal/runerr"
)

// indexer is the pipeline.Visitor that builds an Index in one walk.
type indexer struct {
	p  *pipeline.Pipeline
	ix *Index

	// active marks transforms whose visit has not finished yet; stack keeps
	// them in walk order for cycle reporting.
	active map[*pipeline.Transform]bool
	stack  []*pipeline.Transform
	done   map[*pipeline.Transform]*Step

	seenViews map[*pipeline.View]struct{}
	next      int
}

// Build walks p once and returns its dependency index.
func Build(ctx context.Context, p *pipeline.Pipeline) (*Index, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Index: walking pipeline.", "transforms", len(p.Transforms()))

	v := &indexer{
		p: p,
		ix: &Index{
			byName:    make(map[string]*Step),
			byLabel:   make(map[string]*Step),
			producers: make(map[*pipeline.PCollection]*Step),
			consumers: make(map[*pipeline.PCollection][]*Step),
			rootSet:   make(map[*Step]struct{}),
			viewsOf:   make(map[*pipeline.PCollection][]*pipeline.View),
		},
		active:    make(map[*pipeline.Transform]bool),
		done:      make(map[*pipeline.Transform]*Step),
		seenViews: make(map[*pipeline.View]struct{}),
	}
	if err := pipeline.Walk(p, v); err != nil {
		logger.Debug("Index: walk failed.", "error", err)
		return nil, err
	}

	logger.Debug("Index: complete.", "steps", len(v.ix.steps), "roots", len(v.ix.roots), "views", len(v.ix.views))
	return v.ix, nil
}

func (v *indexer) Enter(t *pipeline.Transform) (bool, error) {
	if _, ok := v.done[t]; ok {
		return false, nil
	}
	if v.active[t] {
		return false, &runerr.CyclicGraphError{Path: v.cyclePath(t)}
	}
	v.active[t] = true
	v.stack = append(v.stack, t)
	return true, nil
}

func (v *indexer) Leave(t *pipeline.Transform) error {
	delete(v.active, t)
	v.stack = v.stack[:len(v.stack)-1]

	inputs := t.Inputs()
	views := t.SideInputs()

	// Every reference must resolve to a producer inside this pipeline. All
	// producers have been walked already, so they are in v.done.
	dataInputs := 0
	for _, in := range inputs {
		if in == nil {
			return &runerr.MalformedGraphError{Step: t.Label(), Value: "<nil>"}
		}
		if in.IsBegin() {
			continue
		}
		if _, ok := v.done[in.Producer()]; !ok || !v.p.Owns(in.Producer()) {
			return &runerr.MalformedGraphError{Step: t.Label(), Value: in.Name()}
		}
		dataInputs++
	}
	viewNames := make(map[string]struct{}, len(views))
	for _, view := range views {
		if _, dup := viewNames[view.Name()]; dup {
			return &runerr.MalformedGraphError{Step: t.Label(), Value: view.Name(), Reason: runerr.ReasonDuplicateSideInput}
		}
		viewNames[view.Name()] = struct{}{}
		src := view.Source()
		if src == nil || src.IsBegin() || !v.p.Owns(src.Producer()) {
			name := view.Name()
			if src != nil {
				name = src.Name()
			}
			return &runerr.MalformedGraphError{Step: t.Label(), Value: name, Reason: "side input"}
		}
	}

	s := &Step{
		name:      fmt.Sprintf("s%d", v.next),
		transform: t,
		inputs:    inputs,
		views:     views,
	}
	v.next++
	v.done[t] = s

	ix := v.ix
	ix.steps = append(ix.steps, s)
	ix.byName[s.name] = s
	if _, dup := ix.byLabel[t.Label()]; !dup {
		ix.byLabel[t.Label()] = s
	}
	ix.producers[t.Output()] = s

	if dataInputs == 0 {
		ix.roots = append(ix.roots, s)
		ix.rootSet[s] = struct{}{}
	}
	for _, in := range inputs {
		if in.IsBegin() {
			continue
		}
		if !containsStep(ix.consumers[in], s) {
			ix.consumers[in] = append(ix.consumers[in], s)
		}
	}
	for _, view := range views {
		if _, seen := v.seenViews[view]; seen {
			continue
		}
		v.seenViews[view] = struct{}{}
		ix.views = append(ix.views, view)
		ix.viewsOf[view.Source()] = append(ix.viewsOf[view.Source()], view)
	}
	return nil
}

// cyclePath returns the labels from the first active occurrence of t to the
// top of the walk stack, closed with t again.
func (v *indexer) cyclePath(t *pipeline.Transform) []string {
	var path []string
	for i := len(v.stack) - 1; i >= 0; i-- {
		if v.stack[i] == t {
			for _, tt := range v.stack[i:] {
				path = append(path, tt.Label())
			}
			break
		}
	}
	return append(path, t.Label())
}

func containsStep(steps []*Step, s *Step) bool {
	for _, x := range steps {
		if x == s {
			return true
		}
	}
	return false
}
