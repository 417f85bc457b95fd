package coff

import "debug/pe"

const (
	OrdinalFlag32 = 0x80000000
	OrdinalFlag64 = 1 << 63
)

// Table entry sizes fixed by the PE format.
const (
	ImportDirectoryEntrySize = 20
	DelayDirectoryEntrySize  = 32
	ExportDirectorySize      = 40
	RuntimeFunctionSize      = 12
	MaxOrdinal               = 0xFFFF
)

// DelayAttrRVA marks a delay-load descriptor whose fields are RVAs rather than
// VAs. It is the descriptor version understood by the delay-load helper.
const DelayAttrRVA = 1

// Base relocation types.
const (
	RelBasedAbsolute   = 0
	RelBasedHighLow    = 3
	RelBasedThumbMov32 = 7
	RelBasedDir64      = 10
)

// Data directory slots filled from the builders.
const (
	DirExport      = pe.IMAGE_DIRECTORY_ENTRY_EXPORT
	DirImport      = pe.IMAGE_DIRECTORY_ENTRY_IMPORT
	DirException   = pe.IMAGE_DIRECTORY_ENTRY_EXCEPTION
	DirBaseReloc   = pe.IMAGE_DIRECTORY_ENTRY_BASERELOC
	DirIAT         = pe.IMAGE_DIRECTORY_ENTRY_IAT
	DirDelayImport = pe.IMAGE_DIRECTORY_ENTRY_DELAY_IMPORT
	NumDirectories = 16
)

// Section characteristics used by the driver.
const (
	ScnCntCode        = pe.IMAGE_SCN_CNT_CODE
	ScnCntInitData    = pe.IMAGE_SCN_CNT_INITIALIZED_DATA
	ScnMemExecute     = pe.IMAGE_SCN_MEM_EXECUTE
	ScnMemRead        = pe.IMAGE_SCN_MEM_READ
	ScnMemWrite       = pe.IMAGE_SCN_MEM_WRITE
	ScnMemDiscardable = pe.IMAGE_SCN_MEM_DISCARDABLE
)

// DataDirectory is one RVA/size pair of the optional header.
type DataDirectory struct {
	RVA  uint32
	Size uint32
}
