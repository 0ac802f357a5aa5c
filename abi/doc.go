// Package abi defines the closed operation contract between the host and a
// Riptide solver module.
//
// The contract has two halves kept deliberately in one place: the Op
// enumeration (the host-side index into the resolved binding table) and the
// embedded WIT document solver.wit (the authoritative name and signature
// table). Operations() parses the document once and marries the two, failing
// loudly on any drift between enumeration and contract.
//
// Signatures use WIT primitives only. Pointer parameters are declared as u32
// offsets into the solver's linear memory, so flattening to core value types
// is a direct one-to-one mapping with no canonical ABI machinery.
//
// Resolution helpers validate guest exports against the contract:
//
//	op, _ := abi.Lookup(abi.OpCalculateDt)
//	if err := op.ValidateDefinition(fn.Definition()); err != nil {
//	    return err // [resolve] signature_mismatch in calculate-dt: ...
//	}
package abi
