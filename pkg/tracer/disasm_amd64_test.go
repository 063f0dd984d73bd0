package tracer

import (
	"strings"
	"testing"
)

func TestDisasmBytes(t *testing.T) {
	// int3; movq $0x1234, %rax; ret
	mem := []byte{0xcc, 0x48, 0xc7, 0xc0, 0x34, 0x12, 0x00, 0x00, 0xc3}
	const pc = 0x401000

	instrs := disasmBytes(mem, pc, 3, nil)
	if len(instrs) != 3 {
		t.Fatalf("decoded %d instructions, want 3", len(instrs))
	}

	wantSizes := []int{1, 7, 1}
	wantText := []string{"INT", "MOV", "RET"}
	addr := uint64(pc)
	for i, instr := range instrs {
		if instr.Addr != addr {
			t.Errorf("instruction %d at %#x, want %#x", i, instr.Addr, addr)
		}
		if instr.Size != wantSizes[i] {
			t.Errorf("instruction %d has size %d, want %d", i, instr.Size, wantSizes[i])
		}
		if !strings.Contains(strings.ToUpper(instr.Text), wantText[i]) {
			t.Errorf("instruction %d decoded as %q, want %s", i, instr.Text, wantText[i])
		}
		addr += uint64(instr.Size)
	}
}

func TestDisasmBytesUndecodable(t *testing.T) {
	instrs := disasmBytes([]byte{0xff}, 0x1000, 1, nil)
	if len(instrs) != 1 {
		t.Fatalf("decoded %d instructions, want 1", len(instrs))
	}
	if instrs[0].Size != 1 {
		t.Errorf("undecodable byte has size %d, want 1", instrs[0].Size)
	}
}
