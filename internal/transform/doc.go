// Package transform evaluates the closed set of transform kinds over
// materialized element bags.
//
// A bag is an ordered slice of cty values. Expressions are HCL source text
// and are evaluated once per element with these variables in scope:
//
//	item      the current element
//	side.<n>  the materialized side input named n
//	acc       the running accumulator (combine only)
//
// Evaluation is pure: the same call always yields the same bag, which lets
// backends retry a step freely.
package transform
