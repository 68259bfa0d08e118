// Package registry discovers interfaces and implementations, indexes them
// and resolves interface references to bound instances.
//
// Discovery is explicit. Go modules register their interfaces and
// implementations on a Table when the registry asks for them by name through
// a Catalog; HCL contract manifests found under the configured module paths
// contribute interfaces. A load runs once:
//
//  1. resolve the module set: system modules (missing is fatal), manifests
//     under module paths, then best-effort modules (missing is a warning)
//  2. collect interfaces and implementations, validating every
//     implementation against its contracts
//  3. build the indices: by implementation id, by interface, kvp and factory
//  4. reconcile the enabled flags with the Component Store; implementations
//     seen for the first time are persisted disabled
//  5. run the interface validators
//
// Every index references the same *component.Descriptor, so enabling or
// disabling an implementation is visible through all of them at once.
// Contract and configuration problems abort the load; lookup failures are
// returned to the caller as errs.Lookup errors.
package registry
