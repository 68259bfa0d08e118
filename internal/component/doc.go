// Package component turns contracts into registered interfaces and checks
// implementations against them.
//
// An Interface is a set of method contracts plus a configuration map, both
// inherited from base interfaces. A RegisteredInterface gives it a stable id
// and a binding method (direct, kvp, factory or testing). Implement checks an
// Implementation against every contract method up front and wraps it with an
// Invoker chosen by the effective validation level:
//
//	trust -> identity, no value checks
//	warn  -> mismatches are logged and the call proceeds
//	fail  -> argument mismatches abort before the implementation runs,
//	         return mismatches after it returned
//
// The result is a Descriptor, the single object the registry indexes.
package component
