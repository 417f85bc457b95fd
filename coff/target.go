// Package coff describes the target machine and the fixed PE/COFF layout
// constants the table builders must reproduce exactly.
package coff

import (
	"debug/pe"
	"fmt"
	"strings"

	"github.com/wippyai/dlltab/errors"
)

// Machine is a COFF machine type.
type Machine uint16

const (
	MachineI386  Machine = pe.IMAGE_FILE_MACHINE_I386
	MachineAMD64 Machine = pe.IMAGE_FILE_MACHINE_AMD64
	MachineARMNT Machine = pe.IMAGE_FILE_MACHINE_ARMNT
	MachineARM64 Machine = pe.IMAGE_FILE_MACHINE_ARM64
)

func (m Machine) String() string {
	switch m {
	case MachineI386:
		return "i386"
	case MachineAMD64:
		return "amd64"
	case MachineARMNT:
		return "armnt"
	case MachineARM64:
		return "arm64"
	}
	return fmt.Sprintf("machine(%#x)", uint16(m))
}

// ParseMachine maps a command-line style name to a Machine.
func ParseMachine(s string) (Machine, error) {
	switch strings.ToLower(s) {
	case "i386", "x86", "386":
		return MachineI386, nil
	case "amd64", "x64", "x86_64":
		return MachineAMD64, nil
	case "armnt", "arm", "thumb":
		return MachineARMNT, nil
	case "arm64", "aarch64":
		return MachineARM64, nil
	}
	return 0, errors.InvalidInput(errors.PhaseManifest, fmt.Sprintf("unknown machine %q", s))
}

// Default image bases used by the MSVC toolchain.
const (
	DefaultImageBase32 = 0x400000
	DefaultImageBase64 = 0x140000000
)

// Target is the machine an image is linked for.
type Target struct {
	Machine   Machine
	ImageBase uint64
}

// NewTarget returns a target with the conventional image base for m.
func NewTarget(m Machine) Target {
	t := Target{Machine: m, ImageBase: DefaultImageBase32}
	if t.Is64() {
		t.ImageBase = DefaultImageBase64
	}
	return t
}

// Validate checks that the target is one the builders can generate code for.
func (t Target) Validate() error {
	switch t.Machine {
	case MachineI386, MachineAMD64, MachineARMNT, MachineARM64:
	default:
		return errors.Configuration(errors.PhaseLayout, fmt.Sprintf("unsupported %s", t.Machine))
	}
	if !t.Is64() && t.ImageBase > 0xFFFFFFFF {
		return errors.Configuration(errors.PhaseLayout,
			fmt.Sprintf("image base %#x does not fit a 32-bit image", t.ImageBase))
	}
	return nil
}

// Is64 reports whether the target produces PE32+ images.
func (t Target) Is64() bool {
	return t.Machine == MachineAMD64 || t.Machine == MachineARM64
}

// WordSize is the size of lookup, address and module-handle entries.
func (t Target) WordSize() uint32 {
	if t.Is64() {
		return 8
	}
	return 4
}

// OrdinalFlag is the bit marking a lookup entry as an ordinal import.
func (t Target) OrdinalFlag() uint64 {
	if t.Is64() {
		return OrdinalFlag64
	}
	return OrdinalFlag32
}

// NeedsUnwindInfo reports whether generated code must be covered by
// exception-directory entries. Only x64 requires table-based unwinding for
// every code region that may appear on the stack.
func (t Target) NeedsUnwindInfo() bool {
	return t.Machine == MachineAMD64
}

// AbsRelocType is the base relocation type for a pointer-sized absolute address.
func (t Target) AbsRelocType() uint16 {
	if t.Is64() {
		return RelBasedDir64
	}
	return RelBasedHighLow
}
