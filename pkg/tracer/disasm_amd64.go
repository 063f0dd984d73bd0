package tracer

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// maxInstructionLen is the longest legal x86 instruction encoding.
const maxInstructionLen = 15

// Instruction is a single decoded machine instruction.
type Instruction struct {
	Addr uint64
	Size int
	Text string
}

// Disassemble decodes up to count instructions of the traced process
// starting at addr. Software breakpoints patched into the range show up as
// the trap instruction, not the bytes they replaced.
func (tp *TracedProcess) Disassemble(addr uint64, count int) ([]Instruction, error) {
	mem := make([]byte, count*maxInstructionLen)
	if _, err := tp.ReadMemory(addr, mem); err != nil {
		return nil, err
	}
	return disasmBytes(mem, addr, count, tp.Symbols.symLookup), nil
}

// disasmBytes decodes up to count instructions from mem, which starts at
// program counter pc. Undecodable bytes are skipped one at a time.
func disasmBytes(mem []byte, pc uint64, count int, symname func(uint64) (string, uint64)) []Instruction {
	out := make([]Instruction, 0, count)
	for len(out) < count && len(mem) > 0 {
		inst, err := x86asm.Decode(mem, 64)
		size := inst.Len
		var text string
		if err != nil {
			size = 1
			text = fmt.Sprintf("?0x%02x", mem[0])
		} else {
			text = x86asm.GoSyntax(inst, pc, symname)
		}
		out = append(out, Instruction{Addr: pc, Size: size, Text: text})
		mem = mem[size:]
		pc += uint64(size)
	}
	return out
}
