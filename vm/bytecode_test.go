package vm

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Builder and label tests
// ---------------------------------------------------------------------------

func TestEmitOperandWidths(t *testing.T) {
	b := NewBytecodeBuilder()
	b.Emit(OpLdaTrue)
	b.EmitByte(OpStar, 3)
	b.EmitBytes(OpCall, 3, 1)

	want := []byte{byte(OpLdaTrue), byte(OpStar), 3, byte(OpCall), 3, 1}
	got := b.Bytes()
	if len(got) != len(want) {
		t.Fatalf("bytecode length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d = 0x%02X, want 0x%02X", i, got[i], want[i])
		}
	}
}

func TestForwardLabelPatching(t *testing.T) {
	b := NewBytecodeBuilder()
	label := b.NewLabel()
	b.EmitJump(OpJump, label)
	b.Emit(OpNOP)
	b.Emit(OpNOP)
	if err := b.Mark(label); err != nil {
		t.Fatal(err)
	}
	b.Emit(OpReturn)

	bytes := b.Bytes()
	if bytes[1] != 4 {
		t.Errorf("jump target = %d, want 4", bytes[1])
	}
}

func TestBackwardLabelJump(t *testing.T) {
	b := NewBytecodeBuilder()
	b.Emit(OpNOP)
	top := b.NewLabel()
	if err := b.Mark(top); err != nil {
		t.Fatal(err)
	}
	b.Emit(OpNOP)
	b.EmitJump(OpJump, top)

	bytes := b.Bytes()
	if bytes[len(bytes)-1] != 1 {
		t.Errorf("backward jump target = %d, want 1", bytes[len(bytes)-1])
	}
}

func TestMarkPastByteRangeFails(t *testing.T) {
	b := NewBytecodeBuilder()
	for i := 0; i < 0x100; i++ {
		b.Emit(OpNOP)
	}
	label := b.NewLabel()
	if err := b.Mark(label); err == nil {
		t.Error("marking past offset 255 must fail: targets are one byte")
	}
}

func TestOpcodeInfoTableCoversNames(t *testing.T) {
	for _, op := range []Opcode{OpLdaConstant, OpAdd, OpJump, OpCall, OpCreateClosure, OpDebugger} {
		if _, ok := op.Info(); !ok {
			t.Errorf("opcode 0x%02X missing from the info table", byte(op))
		}
	}
	if info, _ := OpCall.Info(); info.OperandBytes != 2 {
		t.Errorf("CALL operand bytes = %d, want 2", info.OperandBytes)
	}
	if info, _ := OpReturn.Info(); info.OperandBytes != 0 {
		t.Errorf("RETURN operand bytes = %d, want 0", info.OperandBytes)
	}
	if Opcode(0xEE).Name() != "UNKNOWN_EE" {
		t.Errorf("unknown opcode name = %q", Opcode(0xEE).Name())
	}
}

// ---------------------------------------------------------------------------
// Constant pool tests
// ---------------------------------------------------------------------------

func TestConstantPoolDedup(t *testing.T) {
	b := NewCompiledFunctionBuilder("test", 0)
	a := b.AddConstant(FromNumber(42))
	c := b.AddConstant(FromNumber(42))
	if a != c {
		t.Errorf("identical number constants interned at %d and %d", a, c)
	}
	s1 := b.AddStringConstant("x")
	s2 := b.AddStringConstant("x")
	if s1 != s2 {
		t.Errorf("identical string constants interned at %d and %d", s1, s2)
	}
	if b.AddConstant(FromNumber(43)) == a {
		t.Error("distinct constants must not share a pool slot")
	}
	fn := b.Build()
	if len(fn.Constants) != 3 {
		t.Errorf("pool size = %d, want 3", len(fn.Constants))
	}
}

func TestDisassembleAnnotatesConstants(t *testing.T) {
	b := NewCompiledFunctionBuilder("test", 0)
	idx := b.AddConstant(FromString("hello"))
	b.Bytecode().EmitByte(OpLdaConstant, byte(idx))
	b.Bytecode().Emit(OpReturn)
	fn := b.Build()

	out := Disassemble(fn)
	if !strings.Contains(out, "LDA_CONSTANT") {
		t.Errorf("disassembly missing mnemonic:\n%s", out)
	}
	if !strings.Contains(out, "hello") {
		t.Errorf("disassembly missing constant annotation:\n%s", out)
	}
	if !strings.Contains(out, "RETURN") {
		t.Errorf("disassembly missing RETURN:\n%s", out)
	}
}
