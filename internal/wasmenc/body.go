package wasmenc

// Body assembles a function body instruction by instruction.
type Body struct {
	w Writer
}

// NewBody returns an empty body assembler.
func NewBody() *Body {
	return &Body{}
}

// Finish terminates the function with OpEnd and returns the body bytes.
func (b *Body) Finish() []byte {
	b.w.Byte(OpEnd)
	return b.w.Bytes()
}

// Op emits a bare opcode with no immediates.
func (b *Body) Op(op byte) {
	b.w.Byte(op)
}

// I32Const pushes a 32-bit integer constant.
func (b *Body) I32Const(v int32) {
	b.w.Byte(OpI32Const)
	b.w.S32(v)
}

// F64Const pushes a 64-bit float constant.
func (b *Body) F64Const(v float64) {
	b.w.Byte(OpF64Const)
	b.w.F64(v)
}

// LocalGet pushes local idx.
func (b *Body) LocalGet(idx uint32) {
	b.w.Byte(OpLocalGet)
	b.w.U32(idx)
}

// LocalSet pops into local idx.
func (b *Body) LocalSet(idx uint32) {
	b.w.Byte(OpLocalSet)
	b.w.U32(idx)
}

// LocalTee stores the top of stack into local idx without popping.
func (b *Body) LocalTee(idx uint32) {
	b.w.Byte(OpLocalTee)
	b.w.U32(idx)
}

// GlobalGet pushes global idx.
func (b *Body) GlobalGet(idx uint32) {
	b.w.Byte(OpGlobalGet)
	b.w.U32(idx)
}

// GlobalSet pops into global idx.
func (b *Body) GlobalSet(idx uint32) {
	b.w.Byte(OpGlobalSet)
	b.w.U32(idx)
}

// Call invokes the function at idx.
func (b *Body) Call(idx uint32) {
	b.w.Byte(OpCall)
	b.w.U32(idx)
}

// Mem emits a memory access opcode with align and offset immediates.
func (b *Body) Mem(op byte, align, offset uint32) {
	b.w.Byte(op)
	b.w.U32(align)
	b.w.U32(offset)
}

// Block opens a block with the given block type.
func (b *Body) Block(bt byte) {
	b.w.Byte(OpBlock)
	b.w.Byte(bt)
}

// Loop opens a loop with the given block type.
func (b *Body) Loop(bt byte) {
	b.w.Byte(OpLoop)
	b.w.Byte(bt)
}

// If opens a conditional with the given block type.
func (b *Body) If(bt byte) {
	b.w.Byte(OpIf)
	b.w.Byte(bt)
}

// Else switches to the alternative arm of an if.
func (b *Body) Else() {
	b.w.Byte(OpElse)
}

// End closes the innermost block, loop or if.
func (b *Body) End() {
	b.w.Byte(OpEnd)
}

// Br branches unconditionally to the label at the given depth.
func (b *Body) Br(depth uint32) {
	b.w.Byte(OpBr)
	b.w.U32(depth)
}

// BrIf branches to the label at the given depth when the popped
// condition is non-zero.
func (b *Body) BrIf(depth uint32) {
	b.w.Byte(OpBrIf)
	b.w.U32(depth)
}
