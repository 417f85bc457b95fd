// Package linker drives the table builders for one image and lays their
// chunks out into sections.
//
// # Main Types
//
//   - Linker: owns the chunk arena and the import, delay-load, export and
//     fix-path builders
//   - Image: the laid-out result with sections, data directories and base
//     relocations
//
// # Thread Safety
//
// Linker is NOT safe for concurrent use. An Image is immutable and may be
// shared once Layout returns.
//
// # Stages
//
//  1. AddImport, AddDelayImport and AddExport collect the resolved symbols
//  2. Build creates every table; fix-path names are registered as the
//     import builders run and the fix-path header is created last
//  3. Layout places sections, collects base relocations and serializes
//
// # Example
//
//	l, _ := linker.New(linker.DefaultOptions())
//	l.AddImport(&dlltab.Import{DLL: "KERNEL32.dll", Name: "ExitProcess"})
//	l.Build(helper)
//	img, _ := l.Layout(0x1000)
//	iat := img.Directories[coff.DirIAT]
package linker
