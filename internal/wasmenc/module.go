// Package wasmenc emits core WebAssembly binaries programmatically. It
// covers the small slice of the binary format needed to generate guest
// modules in tests: function types, a single memory, mutable globals,
// exports, code bodies and active data segments.
package wasmenc

const (
	magic   uint32 = 0x6D736100
	version uint32 = 0x01
)

// FuncType describes a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (t FuncType) equal(o FuncType) bool {
	if len(t.Params) != len(o.Params) || len(t.Results) != len(o.Results) {
		return false
	}
	for i, p := range t.Params {
		if o.Params[i] != p {
			return false
		}
	}
	for i, r := range t.Results {
		if o.Results[i] != r {
			return false
		}
	}
	return true
}

type funcEntry struct {
	typeIdx uint32
	locals  []ValType
	body    []byte
}

type globalEntry struct {
	typ     ValType
	mutable bool
	init    []byte
}

type exportEntry struct {
	name string
	kind byte
	idx  uint32
}

type dataEntry struct {
	offset uint32
	init   []byte
}

// Module builds a core wasm module. The zero value is not usable; call
// NewModule.
type Module struct {
	types   []FuncType
	funcs   []funcEntry
	memMin  uint32
	memMax  uint32
	globals []globalEntry
	exports []exportEntry
	data    []dataEntry
}

// NewModule returns an empty module builder.
func NewModule() *Module {
	return &Module{}
}

// SetMemory declares the module memory in 64KiB pages. A maxPages of
// zero leaves the memory unbounded.
func (m *Module) SetMemory(minPages, maxPages uint32) {
	m.memMin = minPages
	m.memMax = maxPages
}

// typeIndex interns a function type and returns its index.
func (m *Module) typeIndex(t FuncType) uint32 {
	for i, existing := range m.types {
		if existing.equal(t) {
			return uint32(i)
		}
	}
	m.types = append(m.types, t)
	return uint32(len(m.types) - 1)
}

// AddFunc appends a function with the given signature, extra locals and
// body, returning its function index. The body must end with OpEnd;
// Body.Finish produces that form.
func (m *Module) AddFunc(t FuncType, locals []ValType, body []byte) uint32 {
	m.funcs = append(m.funcs, funcEntry{
		typeIdx: m.typeIndex(t),
		locals:  locals,
		body:    body,
	})
	return uint32(len(m.funcs) - 1)
}

// AddGlobalI32 appends a 32-bit integer global and returns its index.
func (m *Module) AddGlobalI32(mutable bool, init int32) uint32 {
	var w Writer
	w.Byte(OpI32Const)
	w.S32(init)
	w.Byte(OpEnd)
	m.globals = append(m.globals, globalEntry{typ: ValI32, mutable: mutable, init: w.Bytes()})
	return uint32(len(m.globals) - 1)
}

// ExportFunc exports the function at idx under name.
func (m *Module) ExportFunc(name string, idx uint32) {
	m.exports = append(m.exports, exportEntry{name: name, kind: KindFunc, idx: idx})
}

// ExportMemory exports the module memory under name.
func (m *Module) ExportMemory(name string) {
	m.exports = append(m.exports, exportEntry{name: name, kind: KindMemory, idx: 0})
}

// AddData places init bytes at the given memory offset via an active
// data segment.
func (m *Module) AddData(offset uint32, init []byte) {
	m.data = append(m.data, dataEntry{offset: offset, init: init})
}

// Encode serializes the module to the wasm binary format.
func (m *Module) Encode() []byte {
	var w Writer
	w.U32LE(magic)
	w.U32LE(version)

	if len(m.types) > 0 {
		var s Writer
		s.U32(uint32(len(m.types)))
		for _, t := range m.types {
			s.Byte(funcTypeByte)
			s.U32(uint32(len(t.Params)))
			for _, p := range t.Params {
				s.Byte(byte(p))
			}
			s.U32(uint32(len(t.Results)))
			for _, r := range t.Results {
				s.Byte(byte(r))
			}
		}
		writeSection(&w, sectionType, s.Bytes())
	}

	if len(m.funcs) > 0 {
		var s Writer
		s.U32(uint32(len(m.funcs)))
		for _, f := range m.funcs {
			s.U32(f.typeIdx)
		}
		writeSection(&w, sectionFunction, s.Bytes())
	}

	if m.memMin > 0 || m.memMax > 0 {
		var s Writer
		s.U32(1)
		if m.memMax > 0 {
			s.Byte(limitsHasMax)
			s.U32(m.memMin)
			s.U32(m.memMax)
		} else {
			s.Byte(0)
			s.U32(m.memMin)
		}
		writeSection(&w, sectionMemory, s.Bytes())
	}

	if len(m.globals) > 0 {
		var s Writer
		s.U32(uint32(len(m.globals)))
		for _, g := range m.globals {
			s.Byte(byte(g.typ))
			if g.mutable {
				s.Byte(1)
			} else {
				s.Byte(0)
			}
			s.Raw(g.init)
		}
		writeSection(&w, sectionGlobal, s.Bytes())
	}

	if len(m.exports) > 0 {
		var s Writer
		s.U32(uint32(len(m.exports)))
		for _, e := range m.exports {
			s.Name(e.name)
			s.Byte(e.kind)
			s.U32(e.idx)
		}
		writeSection(&w, sectionExport, s.Bytes())
	}

	if len(m.funcs) > 0 {
		var s Writer
		s.U32(uint32(len(m.funcs)))
		for _, f := range m.funcs {
			entry := encodeCodeEntry(f)
			s.U32(uint32(len(entry)))
			s.Raw(entry)
		}
		writeSection(&w, sectionCode, s.Bytes())
	}

	if len(m.data) > 0 {
		var s Writer
		s.U32(uint32(len(m.data)))
		for _, d := range m.data {
			s.U32(0)
			s.Byte(OpI32Const)
			s.S32(int32(d.offset))
			s.Byte(OpEnd)
			s.U32(uint32(len(d.init)))
			s.Raw(d.init)
		}
		writeSection(&w, sectionData, s.Bytes())
	}

	return w.Bytes()
}

// encodeCodeEntry renders the locals vector followed by the body. Runs
// of identical local types are grouped into one declaration.
func encodeCodeEntry(f funcEntry) []byte {
	var w Writer
	type run struct {
		count uint32
		typ   ValType
	}
	var runs []run
	for _, l := range f.locals {
		if len(runs) > 0 && runs[len(runs)-1].typ == l {
			runs[len(runs)-1].count++
		} else {
			runs = append(runs, run{count: 1, typ: l})
		}
	}
	w.U32(uint32(len(runs)))
	for _, r := range runs {
		w.U32(r.count)
		w.Byte(byte(r.typ))
	}
	w.Raw(f.body)
	return w.Bytes()
}

func writeSection(w *Writer, id byte, data []byte) {
	w.Byte(id)
	w.U32(uint32(len(data)))
	w.Raw(data)
}
