// Package contract describes method signatures declaratively.
//
// An ArgSpec types a single argument, a MethodSpec is an ordered list of
// ArgSpecs plus optional positional-rest and keyword-rest blocks and a return
// ArgSpec. Both are checked three times:
//
//  1. ValidateCallShape, once when a method is declared.
//  2. ValidateImplementationShape, once per concrete implementation, against
//     the Go method's parameter and result types.
//  3. ValidateCallValues and ValidateReturnValue, on every call when the
//     enclosing interface runs with warn or fail validation.
//
// Go keeps no parameter names in compiled code, so the implementation shape
// is matched by position: an optional leading context.Context, one parameter
// per ordered argument, a map[string]T when a keyword-rest is declared and a
// trailing variadic parameter when a positional-rest is declared.
package contract
