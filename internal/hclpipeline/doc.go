// Package hclpipeline loads pipelines from HCL files.
//
// A pipeline file declares steps:
//
//	step "create" "nums" {
//	  values = [1, 2, 3]
//	}
//
//	step "map" "scaled" {
//	  input = step.nums
//	  expr  = item * side.factor
//
//	  side_input "factor" {
//	    from    = step.factor
//	    view    = "singleton"
//	    default = 1
//	  }
//	}
//
// References are resolved after every file is read, so steps may appear in
// any order and across files. References to unknown steps are kept as
// unbound collections and reported when the pipeline is indexed. Static
// attributes (values, init, default) can read environment variables through
// env.<NAME>.
package hclpipeline
