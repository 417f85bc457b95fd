// Package dlltab generates the PE/COFF tables a Windows loader reads to bind a
// dynamically linked image: import tables, export tables and the delay-load
// import mechanism.
//
// The library is the table-generation core of a linker. Symbol resolution,
// section layout and image serialization belong to the caller; this module
// turns an already-resolved, ordered symbol set into chunks ready for address
// assignment.
//
// # Architecture Overview
//
//	dlltab/            Root package with Import and Defined symbol types
//	├── chunk/         Chunk interface, arena of chunks, reserved-size strings
//	├── coff/          Target machine model and PE constants
//	├── idata/         Classic import directory, lookup, address and hint tables
//	├── edata/         Export directory, address, name pointer and ordinal tables
//	├── delayload/     Delay-load descriptors, thunks, tail-merge stubs, unwind data
//	├── fixpath/       Registry of patchable reserved-size DLL names
//	├── linker/        Driver running the builders and a sequential layout
//	├── inspect/       Decoder for the generated tables
//	├── errors/        Structured error types
//	├── internal/      Little-endian codec, build phase marker, DLL grouping
//	├── cmd/dlltab/    Manifest-driven map printer and interactive browser
//	├── examples/      Library usage
//	└── testbed/       Cross-package loader simulation tests
//
// # Quick Start
//
//	l, err := linker.New(linker.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	l.AddImport(&dlltab.Import{Name: "ExitProcess", DLL: "KERNEL32.dll"})
//	l.AddDelayImport(&dlltab.Import{Name: "MessageBoxW", DLL: "USER32.dll"})
//	if err := l.Build(dlltab.Fixed{Sym: "__delayLoadHelper2", Addr: 0x1000}); err != nil {
//	    log.Fatal(err)
//	}
//	img, err := l.Layout(0x2000)
//
// # Build Protocol
//
// Import and delay-load builders collect symbols with Add and are sealed by a
// single Create. Both calls check the builder phase and fail with a
// precedence error on misuse. Chunk addresses can only be read after layout.
//
// # Thread Safety
//
// Builders are not safe for concurrent use. A link runs on one goroutine and
// owns every builder; separate links share no state.
package dlltab
