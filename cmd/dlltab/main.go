package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/xyproto/env/v2"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/dlltab/chunk"
	"github.com/wippyai/dlltab/coff"
	"github.com/wippyai/dlltab/delayload"
	"github.com/wippyai/dlltab/edata"
	"github.com/wippyai/dlltab/fixpath"
	"github.com/wippyai/dlltab/idata"
	"github.com/wippyai/dlltab/linker"
)

func main() {
	var (
		manifestFile = flag.String("manifest", "", "Path to the JSON link manifest")
		machine      = flag.String("machine", "", "Target machine (amd64, i386, arm64, armnt)")
		imageBase    = flag.String("base", "", "Image base address")
		start        = flag.Uint64("start", 0x1000, "RVA of the first section")
		fixPath      = flag.Bool("fixpath", false, "Emit patchable fixed-size DLL names")
		disasm       = flag.Bool("disasm", false, "Disassemble delay-load thunks")
		interactive  = flag.Bool("i", false, "Interactive mode with TUI")
		verbose      = flag.Bool("v", false, "Log builder events")
	)
	flag.Parse()

	if *manifestFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: dlltab -manifest <m.json> [-machine amd64] [-base 0x140000000] [-start 0x1000] [-disasm]")
		fmt.Fprintln(os.Stderr, "       dlltab -manifest <m.json> -i  (interactive mode)")
		os.Exit(1)
	}
	if *start > 0xFFFFFFFF {
		fmt.Fprintf(os.Stderr, "Error: start %#x does not fit 32 bits\n", *start)
		os.Exit(1)
	}

	override := func(s *settings) {
		flag.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "machine":
				s.machine = *machine
			case "base":
				s.imageBase = *imageBase
			case "fixpath":
				s.fixPath = *fixPath
			case "v":
				s.verbose = *verbose
			}
		})
	}

	if err := run(*manifestFile, uint32(*start), override, *disasm, *interactive); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the logger installed by -v.
var newLogger = zap.NewDevelopment

// run links the manifest at path and reports the image. override applies
// the command-line flags on top of the environment and the manifest.
func run(path string, start uint32, override func(*settings), disasm, interactive bool) error {
	m, err := readManifest(path)
	if err != nil {
		return err
	}

	s := envSettings()
	m.apply(&s)
	if override != nil {
		override(&s)
	}

	if s.verbose {
		log, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		setLogger(log)
	}

	img, err := link(m, s, start)
	if err != nil {
		return err
	}

	if interactive {
		return runInteractive(path, img)
	}

	r := newReport(img, term.IsTerminal(int(os.Stdout.Fd())))
	return r.write(os.Stdout, disasm)
}

// settings are the knobs shared by the environment, the manifest and the
// command line, applied in that order.
type settings struct {
	machine    string
	imageBase  string
	dllNameMax uint32
	fixPath    bool
	verbose    bool
}

func envSettings() settings {
	return settings{
		machine:    env.Str("DLLTAB_MACHINE", "amd64"),
		imageBase:  env.Str("DLLTAB_IMAGE_BASE"),
		dllNameMax: uint32(env.Int("DLLTAB_DLLNAME_MAX", chunk.DefaultReservedSize)),
		fixPath:    env.Bool("DLLTAB_FIXPATH"),
		verbose:    env.Bool("DLLTAB_VERBOSE"),
	}
}

func (m *manifest) apply(s *settings) {
	if m.Machine != "" {
		s.machine = m.Machine
	}
	if m.ImageBase != "" {
		s.imageBase = m.ImageBase
	}
	if m.FixPath != nil {
		s.fixPath = *m.FixPath
	}
	if m.DLLNameMax != 0 {
		s.dllNameMax = m.DLLNameMax
	}
}

func (s settings) options(export edata.Config) (linker.Options, error) {
	machine, err := coff.ParseMachine(s.machine)
	if err != nil {
		return linker.Options{}, err
	}
	opts := linker.DefaultOptions()
	opts.Target = coff.NewTarget(machine)
	if s.imageBase != "" {
		base, err := parseAddr("image_base", s.imageBase)
		if err != nil {
			return linker.Options{}, err
		}
		opts.Target.ImageBase = base
	}
	opts.FixPath = s.fixPath
	if s.dllNameMax != 0 {
		opts.FixPathMaxSize = s.dllNameMax
	}
	opts.Export = export
	return opts, nil
}

func readManifest(path string) (*manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return loadManifest(f)
}

// link builds and lays out the image described by m.
func link(m *manifest, s settings, start uint32) (*linker.Image, error) {
	opts, err := s.options(m.exportConfig())
	if err != nil {
		return nil, err
	}
	l, err := linker.New(opts)
	if err != nil {
		return nil, err
	}
	if err := m.populate(l); err != nil {
		return nil, err
	}
	helper, err := m.helper()
	if err != nil {
		return nil, err
	}
	if err := l.Build(helper); err != nil {
		return nil, err
	}
	return l.Layout(start)
}

func setLogger(log *zap.Logger) {
	idata.SetLogger(log.Named("idata"))
	delayload.SetLogger(log.Named("delayload"))
	edata.SetLogger(log.Named("edata"))
	fixpath.SetLogger(log.Named("fixpath"))
	linker.SetLogger(log.Named("linker"))
}
