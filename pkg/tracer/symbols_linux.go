package tracer

import (
	"debug/elf"
	"debug/gosym"
	"fmt"
	"os"
)

// SymTable holds the symbol information of the traced executable: the Go
// symbol table for functions and the ELF symbol table for package-level
// variables. Addresses are runtime addresses, which assumes a
// fixed-position executable (the default for go build on linux/amd64).
type SymTable struct {
	goSyms *gosym.Table
	vars   map[string]uint64
}

func loadSymbols(pid int) (*SymTable, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	exe, err := elf.NewFile(f)
	if err != nil {
		return nil, err
	}

	var symdat, pclndat []byte
	if sec := exe.Section(".gosymtab"); sec != nil {
		if symdat, err = sec.Data(); err != nil {
			return nil, fmt.Errorf("could not get .gosymtab section: %s", err)
		}
	}
	textSec := exe.Section(".text")
	pclnSec := exe.Section(".gopclntab")
	if textSec == nil || pclnSec == nil {
		return nil, fmt.Errorf("executable is missing the .text or .gopclntab section")
	}
	if pclndat, err = pclnSec.Data(); err != nil {
		return nil, fmt.Errorf("could not get .gopclntab section: %s", err)
	}

	pcln := gosym.NewLineTable(pclndat, textSec.Addr)
	tab, err := gosym.NewTable(symdat, pcln)
	if err != nil {
		return nil, fmt.Errorf("could not initialize symbol table: %s", err)
	}

	st := &SymTable{goSyms: tab, vars: make(map[string]uint64)}

	syms, err := exe.Symbols()
	if err != nil {
		return nil, fmt.Errorf("could not read ELF symbol table: %s", err)
	}
	for _, sym := range syms {
		if elf.ST_TYPE(sym.Info) == elf.STT_OBJECT {
			st.vars[sym.Name] = sym.Value
		}
	}

	return st, nil
}

// LookupFunc returns the entry address of the named function.
func (st *SymTable) LookupFunc(name string) (uint64, error) {
	fn := st.goSyms.LookupFunc(name)
	if fn == nil {
		return 0, fmt.Errorf("function %s not found", name)
	}
	return fn.Entry, nil
}

// LookupVariable returns the address of the named package-level variable.
func (st *SymTable) LookupVariable(name string) (uint64, error) {
	addr, ok := st.vars[name]
	if !ok {
		return 0, fmt.Errorf("variable %s not found", name)
	}
	return addr, nil
}

// PCToFunc returns the name of the function containing pc, or the empty
// string when pc falls outside every known function.
func (st *SymTable) PCToFunc(pc uint64) string {
	fn := st.goSyms.PCToFunc(pc)
	if fn == nil {
		return ""
	}
	return fn.Name
}

// symLookup resolves addresses to symbol names for disassembly output.
func (st *SymTable) symLookup(addr uint64) (string, uint64) {
	fn := st.goSyms.PCToFunc(addr)
	if fn == nil {
		return "", 0
	}
	return fn.Name, fn.Entry
}
