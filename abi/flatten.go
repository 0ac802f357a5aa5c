package abi

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/riptide-sim/riptide/errors"
)

// Flatten maps a primitive WIT type to its core value type. The contract
// admits primitives only; pointers travel as u32 offsets, so the mapping is
// one to one with no canonical ABI involvement.
func Flatten(t wit.Type) (api.ValueType, error) {
	switch t.(type) {
	case wit.Bool, wit.U8, wit.S8, wit.U16, wit.S16, wit.U32, wit.S32, wit.Char:
		return api.ValueTypeI32, nil
	case wit.U64, wit.S64:
		return api.ValueTypeI64, nil
	case wit.F32:
		return api.ValueTypeF32, nil
	case wit.F64:
		return api.ValueTypeF64, nil
	default:
		return 0, errors.InvalidInput(errors.PhaseResolve, fmt.Sprintf("non-primitive type %T in contract", t))
	}
}

func flattenAll(types []wit.Type) ([]api.ValueType, error) {
	if len(types) == 0 {
		return nil, nil
	}
	out := make([]api.ValueType, len(types))
	for i, t := range types {
		vt, err := Flatten(t)
		if err != nil {
			return nil, err
		}
		out[i] = vt
	}
	return out, nil
}

// CoreString renders a core signature, e.g. "(i32, i32) -> i32".
func CoreString(params, results []api.ValueType) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(valueTypeName(p))
	}
	b.WriteByte(')')
	if len(results) > 0 {
		b.WriteString(" -> ")
		for i, r := range results {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(valueTypeName(r))
		}
	}
	return b.String()
}

func valueTypeName(vt api.ValueType) string {
	switch vt {
	case api.ValueTypeI32:
		return "i32"
	case api.ValueTypeI64:
		return "i64"
	case api.ValueTypeF32:
		return "f32"
	case api.ValueTypeF64:
		return "f64"
	}
	return fmt.Sprintf("valuetype(%d)", vt)
}

// ValidateCore checks a resolved export's core signature against the
// contract entry.
func (o Operation) ValidateCore(params, results []api.ValueType) error {
	if !equalValueTypes(o.CoreParams, params) || !equalValueTypes(o.CoreResults, results) {
		return errors.SignatureMismatch(o.Name,
			CoreString(o.CoreParams, o.CoreResults),
			CoreString(params, results))
	}
	return nil
}

// ValidateDefinition checks a resolved guest function definition against
// the contract entry.
func (o Operation) ValidateDefinition(def api.FunctionDefinition) error {
	return o.ValidateCore(def.ParamTypes(), def.ResultTypes())
}

func equalValueTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
