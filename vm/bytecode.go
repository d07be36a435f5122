package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode is a single-byte instruction. Every operand is also a single byte:
// a register index, an absolute jump target, or a constant-pool index.
type Opcode byte

const (
	OpNOP Opcode = 0x00 // no operation
)

// Load/store (accumulator and register file)
const (
	OpLdaConstant  Opcode = 0x01 // acc = constants[idx]
	OpLdaUndefined Opcode = 0x02 // acc = undefined
	OpLdaNull      Opcode = 0x03 // acc = null
	OpLdaTrue      Opcode = 0x04 // acc = true
	OpLdaFalse     Opcode = 0x05 // acc = false
	OpLdaZero      Opcode = 0x06 // acc = 0
	OpLdar         Opcode = 0x07 // acc = r[idx]
	OpStar         Opcode = 0x08 // r[idx] = acc
	OpMov          Opcode = 0x09 // r[dst] = r[src]
)

// Arithmetic. Binary forms compute r[idx] <op> acc into the accumulator.
const (
	OpAdd Opcode = 0x10
	OpSub Opcode = 0x11
	OpMul Opcode = 0x12
	OpDiv Opcode = 0x13
	OpMod Opcode = 0x14
	OpNeg Opcode = 0x15 // acc = -acc
	OpInc Opcode = 0x16 // acc = acc + 1
	OpDec Opcode = 0x17 // acc = acc - 1
)

// Comparison: acc = r[idx] <op> acc, producing a boolean.
const (
	OpTestEq       Opcode = 0x20
	OpTestNe       Opcode = 0x21
	OpTestLt       Opcode = 0x22
	OpTestGt       Opcode = 0x23
	OpTestLe       Opcode = 0x24
	OpTestGe       Opcode = 0x25
	OpTestEqStrict Opcode = 0x26
)

// Logical
const (
	OpLogicalNot Opcode = 0x30 // acc = !ToBoolean(acc)
	OpToBoolean  Opcode = 0x31 // acc = ToBoolean(acc)
)

// Control flow. Jump targets are absolute bytecode offsets.
const (
	OpJump        Opcode = 0x40
	OpJumpIfTrue  Opcode = 0x41
	OpJumpIfFalse Opcode = 0x42
	OpReturn      Opcode = 0x43 // halt, yielding the accumulator
)

// Calls. The callee sits in r[base], `this` in r[base+1], and arguments in
// r[base+2] .. r[base+1+argc].
const (
	OpCall      Opcode = 0x50
	OpConstruct Opcode = 0x51
)

// Property access
const (
	OpGetProperty Opcode = 0x60 // acc = r[obj].constants[name]
	OpSetProperty Opcode = 0x61 // r[obj].constants[name] = acc
	OpGetKeyed    Opcode = 0x62 // acc = r[obj][r[key]]
	OpSetKeyed    Opcode = 0x63 // r[obj][r[key]] = acc
)

// Globals and context slots
const (
	OpLdaGlobal      Opcode = 0x70 // acc = global[constants[name]]
	OpStaGlobal      Opcode = 0x71 // global[constants[name]] = acc
	OpLdaContextSlot Opcode = 0x72 // acc = env(depth).slot[idx]
	OpStaContextSlot Opcode = 0x73 // env(depth).slot[idx] = acc
)

// Object/array/closure creation
const (
	OpCreateObject  Opcode = 0x80 // acc = {}
	OpCreateArray   Opcode = 0x81 // acc = [r[base] .. r[base+count-1]]
	OpCreateClosure Opcode = 0x82 // acc = closure over inner function idx
)

const (
	OpDebugger Opcode = 0xFF // breakpoint hook, no-op by default
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string
	OperandBytes int
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpNOP: {"NOP", 0},

	OpLdaConstant:  {"LDA_CONSTANT", 1},
	OpLdaUndefined: {"LDA_UNDEFINED", 0},
	OpLdaNull:      {"LDA_NULL", 0},
	OpLdaTrue:      {"LDA_TRUE", 0},
	OpLdaFalse:     {"LDA_FALSE", 0},
	OpLdaZero:      {"LDA_ZERO", 0},
	OpLdar:         {"LDAR", 1},
	OpStar:         {"STAR", 1},
	OpMov:          {"MOV", 2},

	OpAdd: {"ADD", 1},
	OpSub: {"SUB", 1},
	OpMul: {"MUL", 1},
	OpDiv: {"DIV", 1},
	OpMod: {"MOD", 1},
	OpNeg: {"NEG", 0},
	OpInc: {"INC", 0},
	OpDec: {"DEC", 0},

	OpTestEq:       {"TEST_EQ", 1},
	OpTestNe:       {"TEST_NE", 1},
	OpTestLt:       {"TEST_LT", 1},
	OpTestGt:       {"TEST_GT", 1},
	OpTestLe:       {"TEST_LE", 1},
	OpTestGe:       {"TEST_GE", 1},
	OpTestEqStrict: {"TEST_EQ_STRICT", 1},

	OpLogicalNot: {"LOGICAL_NOT", 0},
	OpToBoolean:  {"TO_BOOLEAN", 0},

	OpJump:        {"JUMP", 1},
	OpJumpIfTrue:  {"JUMP_IF_TRUE", 1},
	OpJumpIfFalse: {"JUMP_IF_FALSE", 1},
	OpReturn:      {"RETURN", 0},

	OpCall:      {"CALL", 2},
	OpConstruct: {"CONSTRUCT", 2},

	OpGetProperty: {"GET_PROPERTY", 2},
	OpSetProperty: {"SET_PROPERTY", 2},
	OpGetKeyed:    {"GET_KEYED", 2},
	OpSetKeyed:    {"SET_KEYED", 2},

	OpLdaGlobal:      {"LDA_GLOBAL", 1},
	OpStaGlobal:      {"STA_GLOBAL", 1},
	OpLdaContextSlot: {"LDA_CONTEXT_SLOT", 2},
	OpStaContextSlot: {"STA_CONTEXT_SLOT", 2},

	OpCreateObject:  {"CREATE_OBJECT", 0},
	OpCreateArray:   {"CREATE_ARRAY", 2},
	OpCreateClosure: {"CREATE_CLOSURE", 1},

	OpDebugger: {"DEBUGGER", 0},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() (OpcodeInfo, bool) {
	info, ok := opcodeTable[op]
	return info, ok
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	if info, ok := opcodeTable[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("UNKNOWN_%02X", byte(op))
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// ---------------------------------------------------------------------------
// BytecodeBuilder: Helper for constructing bytecode
// ---------------------------------------------------------------------------

// BytecodeBuilder constructs instruction streams, including label patching
// for forward jumps.
type BytecodeBuilder struct {
	bytes []byte
}

// NewBytecodeBuilder creates an empty builder.
func NewBytecodeBuilder() *BytecodeBuilder {
	return &BytecodeBuilder{bytes: make([]byte, 0, 64)}
}

// Bytes returns the constructed bytecode.
func (b *BytecodeBuilder) Bytes() []byte { return b.bytes }

// Len returns the current length.
func (b *BytecodeBuilder) Len() int { return len(b.bytes) }

// Emit appends an opcode with no operands.
func (b *BytecodeBuilder) Emit(op Opcode) {
	b.bytes = append(b.bytes, byte(op))
}

// EmitByte appends an opcode with a single byte operand.
func (b *BytecodeBuilder) EmitByte(op Opcode, operand byte) {
	b.bytes = append(b.bytes, byte(op), operand)
}

// EmitBytes appends an opcode with two byte operands.
func (b *BytecodeBuilder) EmitBytes(op Opcode, a, c byte) {
	b.bytes = append(b.bytes, byte(op), a, c)
}

// Label is a forward reference in bytecode. Targets are single-byte absolute
// offsets, so a function body cannot exceed 256 bytes of bytecode.
type Label struct {
	resolved bool
	position int
	refs     []int
}

// NewLabel creates an unresolved label.
func (b *BytecodeBuilder) NewLabel() *Label {
	return &Label{refs: make([]int, 0, 2)}
}

// Mark resolves a label to the current position and patches all forward
// references. It errors if the target does not fit in one operand byte.
func (b *BytecodeBuilder) Mark(label *Label) error {
	if label.resolved {
		panic("label already resolved")
	}
	if len(b.bytes) > 0xFF {
		return fmt.Errorf("jump target %d out of single-byte range", len(b.bytes))
	}
	label.resolved = true
	label.position = len(b.bytes)
	for _, ref := range label.refs {
		b.bytes[ref] = byte(label.position)
	}
	label.refs = nil
	return nil
}

// EmitJump emits a jump instruction against a label, recording a patch site
// when the label is not yet resolved.
func (b *BytecodeBuilder) EmitJump(op Opcode, label *Label) {
	b.bytes = append(b.bytes, byte(op))
	if label.resolved {
		b.bytes = append(b.bytes, byte(label.position))
	} else {
		label.refs = append(label.refs, len(b.bytes))
		b.bytes = append(b.bytes, 0) // placeholder
	}
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// Disassemble renders an instruction stream, one instruction per line, with
// constant-pool values shown where an operand indexes the pool.
func Disassemble(fn *CompiledFunction) string {
	var sb strings.Builder
	bc := fn.Bytecode
	pos := 0
	for pos < len(bc) {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		op := Opcode(bc[pos])
		info, known := op.Info()
		fmt.Fprintf(&sb, "%04d  %s", pos, op.Name())
		pos++
		if !known {
			continue
		}
		for i := 0; i < info.OperandBytes && pos < len(bc); i++ {
			fmt.Fprintf(&sb, " %d", bc[pos])
			pos++
		}
		switch op {
		case OpLdaConstant, OpLdaGlobal, OpStaGlobal:
			idx := int(bc[pos-1])
			if idx < len(fn.Constants) {
				fmt.Fprintf(&sb, "  ; %s", fn.Constants[idx])
			}
		case OpGetProperty, OpSetProperty:
			idx := int(bc[pos-1])
			if idx < len(fn.Constants) {
				fmt.Fprintf(&sb, "  ; %s", fn.Constants[idx])
			}
		}
	}
	return sb.String()
}
