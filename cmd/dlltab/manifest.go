package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/wippyai/dlltab"
	"github.com/wippyai/dlltab/edata"
	"github.com/wippyai/dlltab/errors"
	"github.com/wippyai/dlltab/linker"
)

// manifest is the resolved symbol set of one link, as JSON.
type manifest struct {
	Helper       *helperSpec  `json:"helper"`
	FixPath      *bool        `json:"fixpath"`
	Machine      string       `json:"machine"`
	ImageBase    string       `json:"image_base"`
	Export       exportConfig `json:"export"`
	Imports      []importSpec `json:"imports"`
	DelayImports []importSpec `json:"delay_imports"`
	Exports      []exportSpec `json:"exports"`
	DLLNameMax   uint32       `json:"dllname_max"`
}

type helperSpec struct {
	Name string `json:"name"`
	RVA  string `json:"rva"`
}

type exportConfig struct {
	DLL         string `json:"dll"`
	Timestamp   uint32 `json:"timestamp"`
	OrdinalBase uint16 `json:"ordinal_base"`
	Major       uint16 `json:"major"`
	Minor       uint16 `json:"minor"`
}

type importSpec struct {
	DLL     string `json:"dll"`
	Name    string `json:"name"`
	Hint    uint16 `json:"hint"`
	Ordinal uint16 `json:"ordinal"`
}

type exportSpec struct {
	Name    string `json:"name"`
	Forward string `json:"forward"`
	RVA     string `json:"rva"`
	Ordinal uint16 `json:"ordinal"`
	NoName  bool   `json:"noname"`
}

func loadManifest(r io.Reader) (*manifest, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var m manifest
	if err := dec.Decode(&m); err != nil {
		return nil, errors.Wrap(errors.PhaseManifest, errors.KindInvalidInput, err, "decode manifest")
	}
	return &m, nil
}

// parseAddr accepts decimal or 0x-prefixed hex.
func parseAddr(field, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, errors.New(errors.PhaseManifest, errors.KindInvalidInput).
			Symbol(field).
			Cause(err).
			Detail("bad address %q", s).
			Build()
	}
	return v, nil
}

func parseRVA(field, s string) (uint32, error) {
	v, err := parseAddr(field, s)
	if err != nil {
		return 0, err
	}
	if v > 0xFFFFFFFF {
		return 0, errors.New(errors.PhaseManifest, errors.KindOutOfBounds).
			Symbol(field).
			Value(v).
			Detail("rva %#x does not fit 32 bits", v).
			Build()
	}
	return uint32(v), nil
}

func (s importSpec) toImport() (*dlltab.Import, error) {
	if s.DLL == "" {
		return nil, errors.New(errors.PhaseManifest, errors.KindInvalidInput).
			Symbol(s.Name).
			Detail("import without a dll").
			Build()
	}
	imp := &dlltab.Import{DLL: s.DLL, Name: s.Name, Hint: s.Hint, Ordinal: s.Ordinal}
	if s.Name == "" {
		if s.Ordinal == 0 {
			return nil, errors.New(errors.PhaseManifest, errors.KindInvalidInput).
				DLL(s.DLL).
				Detail("import needs a name or an ordinal").
				Build()
		}
		imp.Kind = dlltab.ImportByOrdinal
	}
	return imp, nil
}

func (s exportSpec) toExport() (edata.Export, error) {
	e := edata.Export{Name: s.Name, Forward: s.Forward, Ordinal: s.Ordinal, NoName: s.NoName}
	if s.RVA == "" {
		return e, nil
	}
	rva, err := parseRVA("export "+s.label(), s.RVA)
	if err != nil {
		return e, err
	}
	e.Target = dlltab.Fixed{Sym: s.label(), Addr: rva}
	return e, nil
}

func (s exportSpec) label() string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("#%d", s.Ordinal)
}

func (m *manifest) helper() (dlltab.Defined, error) {
	if m.Helper == nil {
		return nil, nil
	}
	rva, err := parseRVA("helper", m.Helper.RVA)
	if err != nil {
		return nil, err
	}
	name := m.Helper.Name
	if name == "" {
		name = "__delayLoadHelper2"
	}
	return dlltab.Fixed{Sym: name, Addr: rva}, nil
}

func (m *manifest) exportConfig() edata.Config {
	cfg := edata.DefaultConfig(m.Export.DLL)
	if cfg.DLLName == "" {
		cfg.DLLName = "a.dll"
	}
	cfg.TimeDateStamp = m.Export.Timestamp
	cfg.MajorVersion = m.Export.Major
	cfg.MinorVersion = m.Export.Minor
	if m.Export.OrdinalBase != 0 {
		cfg.OrdinalBase = m.Export.OrdinalBase
	}
	return cfg
}

// populate feeds every manifest symbol into l.
func (m *manifest) populate(l *linker.Linker) error {
	for _, s := range m.Imports {
		imp, err := s.toImport()
		if err != nil {
			return err
		}
		if err := l.AddImport(imp); err != nil {
			return err
		}
	}
	for _, s := range m.DelayImports {
		imp, err := s.toImport()
		if err != nil {
			return err
		}
		if err := l.AddDelayImport(imp); err != nil {
			return err
		}
	}
	for _, s := range m.Exports {
		e, err := s.toExport()
		if err != nil {
			return err
		}
		if err := l.AddExport(e); err != nil {
			return err
		}
	}
	return nil
}
