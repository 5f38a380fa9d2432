// Package pipeline is the declarative model of a transform graph: a Pipeline
// holds Transforms, each consuming PCollections (data inputs) and Views (side
// inputs) and producing one PCollection.
//
// The package is the pipeline-definition side of burstbeam. It owns
// the user logic carried by every transform (its Payload) and exposes a single
// traversal entry point, Walk, which drives a Visitor over every transform
// reachable in the pipeline. It performs no validation of its own: dangling
// references and cycles are representable here and are reported by the graph
// indexer.
//
// Building a pipeline:
//
//	p := pipeline.New()
//	nums := p.Apply("numbers", pipeline.Create(cty.NumberIntVal(1), cty.NumberIntVal(2)))
//	factor := p.Apply("factor", pipeline.Create(cty.NumberIntVal(10)))
//	scaled := p.Apply("scaled", pipeline.Map("item * side.factor", factor.AsSingleton("factor")), nums)
package pipeline
