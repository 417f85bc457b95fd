package delayload

import (
	"github.com/wippyai/dlltab"
	"github.com/wippyai/dlltab/chunk"
	"github.com/wippyai/dlltab/coff"
)

// arch emits the thunk and tail-merge code of one machine.
type arch interface {
	// thunk loads the address of slot and jumps to tailMerge.
	thunk(label string, slot, tailMerge chunk.Ref) chunk.Chunk
	// tailMerge calls helper with the descriptor desc and the slot the
	// thunk loaded, then jumps to the address the helper returns.
	tailMerge(label string, desc chunk.Ref, helper dlltab.Defined) chunk.Chunk
}

func archFor(t coff.Target) arch {
	switch t.Machine {
	case coff.MachineAMD64:
		return x64{}
	case coff.MachineI386:
		return x86{imageBase: uint32(t.ImageBase)}
	case coff.MachineARM64:
		return aarch64{}
	case coff.MachineARMNT:
		return thumb{imageBase: uint32(t.ImageBase)}
	}
	return nil
}

// rvas resolves the addresses of refs in order.
func rvas(a *chunk.Arena, refs ...chunk.Ref) ([]uint32, error) {
	out := make([]uint32, len(refs))
	for i, ref := range refs {
		rva, err := a.RVA(ref)
		if err != nil {
			return nil, err
		}
		out[i] = rva
	}
	return out, nil
}
