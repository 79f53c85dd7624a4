// Package registry turns a codec-set file into ready adapters, failing before any
// work starts when a codec cannot be constructed.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/codec"
	"github.com/himanishpuri/CodecSweep/pkg/models"
)

var (
	ErrUnknownKind   = errors.New("unknown codec kind")
	ErrDuplicateName = errors.New("duplicate codec name")
	ErrUnknownCodec  = errors.New("unknown codec")
	ErrEmptySet      = errors.New("codec set has no codecs")
)

// Factory constructs an adapter. It must verify its binaries exist.
type Factory func(name string, env codec.Env, params codec.Params) (codec.Adapter, error)

// Kind is a registered adapter implementation and its default bitrate capability.
type Kind struct {
	New      Factory
	Bitrates codec.BitrateSpec
}

// Registry maps kind names to factories. It holds no process-wide state, so
// several registries with different environments can coexist.
type Registry struct {
	env   codec.Env
	kinds map[string]Kind
}

// New returns an empty registry whose factories receive env.
func New(env codec.Env) *Registry {
	return &Registry{env: env, kinds: make(map[string]Kind)}
}

// Default returns a registry with the built-in adapters.
func Default(env codec.Env) *Registry {
	r := New(env)
	r.MustRegister("lc3", Kind{New: codec.NewLC3, Bitrates: codec.LC3Bitrates})
	r.MustRegister("lc3plus", Kind{New: codec.NewLC3Plus, Bitrates: codec.LC3PlusBitrates})
	r.MustRegister("opus", Kind{New: codec.NewOpus, Bitrates: codec.OpusBitrates})
	r.MustRegister("evs", Kind{New: codec.NewEVS, Bitrates: codec.EVSBitrates})
	r.MustRegister("ffmpeg", Kind{New: codec.NewFFmpeg, Bitrates: codec.FFmpegBitrates})
	return r
}

// Register adds a kind. Registering the same kind twice is an error.
func (r *Registry) Register(kind string, k Kind) error {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" || k.New == nil {
		return errors.New("kind needs a name and a factory")
	}
	if _, ok := r.kinds[kind]; ok {
		return fmt.Errorf("kind %q already registered", kind)
	}
	if err := k.Bitrates.Validate(); err != nil {
		return fmt.Errorf("kind %q: %w", kind, err)
	}
	r.kinds[kind] = k
	return nil
}

// MustRegister is Register for built-ins; it panics on error.
func (r *Registry) MustRegister(kind string, k Kind) {
	if err := r.Register(kind, k); err != nil {
		panic(err)
	}
}

// Kinds lists registered kind names, sorted.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Entry is one constructed codec configuration.
type Entry struct {
	Name     string
	Kind     string
	Params   codec.Params
	Bitrates codec.BitrateSpec
	Adapter  codec.Adapter
}

// Set is a named, ordered collection of codec entries loaded for one run.
type Set struct {
	Name    string
	Entries []*Entry
	Subsets map[string][]int // Extra subset definitions: name to sample rates
	byName  map[string]*Entry
}

// Lookup resolves a codec name within the set.
func (s *Set) Lookup(name string) (*Entry, error) {
	if e, ok := s.byName[name]; ok {
		return e, nil
	}
	return nil, models.Errorf(models.KindConfiguration, name, "%w in set %q", ErrUnknownCodec, s.Name)
}

// Select narrows the set to names, keeping the set's order. Empty names selects everything.
func (s *Set) Select(names []string) ([]*Entry, error) {
	if len(names) == 0 {
		return s.Entries, nil
	}
	for _, n := range names {
		if _, err := s.Lookup(n); err != nil {
			return nil, err
		}
	}
	var out []*Entry
	for _, e := range s.Entries {
		if slices.Contains(names, e.Name) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Build constructs every entry of a set. All problems are reported together.
func (r *Registry) Build(file SetFile) (*Set, error) {
	if len(file.Codecs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySet, file.Name)
	}

	set := &Set{Name: file.Name, Subsets: file.Subsets, byName: make(map[string]*Entry)}
	var errs []error
	for i, c := range file.Codecs {
		e, err := r.build(c)
		if err != nil {
			errs = append(errs, fmt.Errorf("codecs[%d] %q: %w", i, c.Name, err))
			continue
		}
		if _, dup := set.byName[e.Name]; dup {
			errs = append(errs, fmt.Errorf("codecs[%d]: %w: %s", i, ErrDuplicateName, e.Name))
			continue
		}
		set.byName[e.Name] = e
		set.Entries = append(set.Entries, e)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return set, nil
}

func (r *Registry) build(c CodecConfig) (*Entry, error) {
	name := strings.TrimSpace(c.Name)
	kindName := strings.ToLower(strings.TrimSpace(c.Kind))
	if name == "" {
		return nil, errors.New("name is required")
	}
	if kindName == "" {
		kindName = strings.ToLower(name)
	}
	kind, ok := r.kinds[kindName]
	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %s)", ErrUnknownKind, kindName, strings.Join(r.Kinds(), ", "))
	}

	spec, err := c.bitrateSpec(kind.Bitrates)
	if err != nil {
		return nil, err
	}

	adapter, err := kind.New(name, r.env, c.Params)
	if err != nil {
		return nil, err
	}
	return &Entry{Name: name, Kind: kindName, Params: c.Params, Bitrates: spec, Adapter: adapter}, nil
}
