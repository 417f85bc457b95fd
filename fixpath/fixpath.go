// Package fixpath records the DLL-name chunks that a post-link tool may
// rewrite in place, for example to point an executable at absolute store
// paths instead of bare DLL names.
//
// Every registered name is a chunk.ReservedString of MaxSize bytes. The
// registry keeps classic imports and delay-load imports in separate lists and
// emits a header chunk so the patch tool can find the names:
//
//	offset  size  field
//	0       4     version
//	4       4     reserved size of each name
//	8       4     number of classic import names (n)
//	12      4     number of delay-load import names (m)
//	16      4*n   RVA of each classic name
//	16+4n   4*m   RVA of each delay-load name
package fixpath

import (
	"go.uber.org/zap"

	"github.com/wippyai/dlltab/chunk"
	"github.com/wippyai/dlltab/errors"
	ibin "github.com/wippyai/dlltab/internal/binary"
	"github.com/wippyai/dlltab/internal/phase"
)

const (
	// DefaultVersion is the header format version the patch tool checks.
	DefaultVersion = 2

	headerSize = 16
)

// Option configures a Registry.
type Option func(*Registry)

// WithVersion overrides the header version tag.
func WithVersion(v uint32) Option {
	return func(r *Registry) { r.version = v }
}

// WithMaxSize overrides the reserved size of every name.
func WithMaxSize(n uint32) Option {
	return func(r *Registry) { r.maxSize = n }
}

// Registry collects patchable DLL-name chunks.
type Registry struct {
	arena   *chunk.Arena
	phase   phase.Marker
	idata   []chunk.Ref
	delay   []chunk.Ref
	header  chunk.Ref
	version uint32
	maxSize uint32
}

// New creates a registry that adds its chunks to a.
func New(a *chunk.Arena, opts ...Option) *Registry {
	r := &Registry{
		arena:   a,
		phase:   phase.New(errors.PhaseFixPath),
		version: DefaultVersion,
		maxSize: chunk.DefaultReservedSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Version returns the header version tag.
func (r *Registry) Version() uint32 { return r.version }

// MaxSize returns the reserved size of every registered name.
func (r *Registry) MaxSize() uint32 { return r.maxSize }

// IData returns the classic import name chunks in registration order.
func (r *Registry) IData() []chunk.Ref { return r.idata }

// DelayIData returns the delay-load name chunks in registration order.
func (r *Registry) DelayIData() []chunk.Ref { return r.delay }

// AddIData registers the name of a classic import DLL and returns its chunk.
func (r *Registry) AddIData(dll string) (chunk.Ref, error) {
	ref, err := r.add("fixpath.idata."+dll, dll)
	if err != nil {
		return 0, err
	}
	r.idata = append(r.idata, ref)
	return ref, nil
}

// AddDelayIData registers the name of a delay-load import DLL and returns its chunk.
func (r *Registry) AddDelayIData(dll string) (chunk.Ref, error) {
	ref, err := r.add("fixpath.didat."+dll, dll)
	if err != nil {
		return 0, err
	}
	r.delay = append(r.delay, ref)
	return ref, nil
}

func (r *Registry) add(label, dll string) (chunk.Ref, error) {
	if err := r.phase.Collecting("Add"); err != nil {
		return 0, err
	}
	c, err := chunk.NewReservedString(label, dll, r.maxSize)
	if err != nil {
		return 0, err
	}
	Logger().Debug("reserved dll name",
		zap.String("dll", dll),
		zap.Uint32("size", r.maxSize),
	)
	return r.arena.Add(c), nil
}

// Create emits the header chunk. Names cannot be added afterwards.
func (r *Registry) Create() (chunk.Ref, error) {
	if err := r.phase.Collecting("Create"); err != nil {
		return 0, err
	}
	r.header = r.arena.Add(&header{r: r})
	r.phase.Seal()
	Logger().Debug("fixpath header",
		zap.Int("idata", len(r.idata)),
		zap.Int("delay", len(r.delay)),
	)
	return r.header, nil
}

// Header returns the header chunk created by Create.
func (r *Registry) Header() (chunk.Ref, error) {
	if err := r.phase.Built("Header"); err != nil {
		return 0, err
	}
	return r.header, nil
}

// Chunks returns the chunks the registry owns outright. Name chunks are
// placed by the import builders that requested them.
func (r *Registry) Chunks() []chunk.Ref {
	if r.phase.State() != phase.Built {
		return nil
	}
	return []chunk.Ref{r.header}
}

type header struct {
	r *Registry
}

func (h *header) Name() string  { return "fixpath.header" }
func (h *header) Align() uint32 { return 4 }

func (h *header) Size() uint32 {
	return headerSize + 4*uint32(len(h.r.idata)+len(h.r.delay))
}

func (h *header) WriteTo(buf []byte, _ uint32, a *chunk.Arena) error {
	w := ibin.NewWriter()
	w.U32(h.r.version)
	w.U32(h.r.maxSize)
	w.U32(uint32(len(h.r.idata)))
	w.U32(uint32(len(h.r.delay)))
	for _, refs := range [][]chunk.Ref{h.r.idata, h.r.delay} {
		for _, ref := range refs {
			rva, err := a.RVA(ref)
			if err != nil {
				return err
			}
			w.U32(rva)
		}
	}
	w.CopyTo(buf)
	return nil
}
