package stage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/justapithecus/sieve/metrics"
	"github.com/justapithecus/sieve/resolve"
	"github.com/justapithecus/sieve/types"
)

// Deps carries shared collaborators into stage factories.
type Deps struct {
	Resolver resolve.Resolver
	Metrics  *metrics.Collector
}

// ProcessorFactory builds a Processor from options.
type ProcessorFactory func(opts Options, deps Deps) (Processor, error)

// WriterFactory builds a Writer from options.
type WriterFactory func(opts Options) (Writer, error)

// Spec describes a stage by name, as it appears in configuration.
type Spec struct {
	Name      string         `yaml:"name" json:"name"`
	Processor string         `yaml:"processor" json:"processor"`
	Writer    string         `yaml:"writer" json:"writer"`
	Options   map[string]any `yaml:"options" json:"options,omitempty"`
}

// Registry maps processor and writer names to factories.
// Thread-safe for concurrent access.
type Registry struct {
	mu         sync.RWMutex
	processors map[string]ProcessorFactory
	writers    map[string]WriterFactory
}

// NewRegistry creates a registry with the built-in processors and writers.
func NewRegistry() *Registry {
	r := &Registry{
		processors: make(map[string]ProcessorFactory),
		writers:    make(map[string]WriterFactory),
	}

	r.RegisterProcessor("kind", func(opts Options, _ Deps) (Processor, error) {
		names, err := opts.Strings("kinds")
		if err != nil {
			return nil, err
		}
		kinds := make([]types.Kind, len(names))
		for i, n := range names {
			kinds[i] = types.Kind(n)
		}
		return NewKindFilter(kinds...), nil
	})
	r.RegisterProcessor("header", func(opts Options, _ Deps) (Processor, error) {
		names, err := opts.Strings("names")
		if err != nil {
			return nil, err
		}
		dropMissing, err := opts.Bool("drop_missing", false)
		if err != nil {
			return nil, err
		}
		return NewHeaderExtractor(names, dropMissing)
	})
	r.RegisterProcessor("domain", func(opts Options, _ Deps) (Processor, error) {
		allow, err := opts.Strings("allow")
		if err != nil {
			return nil, err
		}
		return NewDomainExtractor(allow...), nil
	})
	r.RegisterProcessor("resolve", func(_ Options, deps Deps) (Processor, error) {
		return NewResolver(deps.Resolver, deps.Metrics)
	})
	r.RegisterProcessor("digest", func(Options, Deps) (Processor, error) {
		return Digest{}, nil
	})
	r.RegisterProcessor("status", func(opts Options, _ Deps) (Processor, error) {
		codes, err := opts.Ints("codes")
		if err != nil {
			return nil, err
		}
		return NewStatusFilter(codes...), nil
	})

	r.RegisterWriter("jsonl", func(Options) (Writer, error) { return JSONWriter{}, nil })
	r.RegisterWriter("msgpack", func(Options) (Writer, error) { return MsgpackWriter{}, nil })

	return r
}

// RegisterProcessor adds or replaces a processor factory.
func (r *Registry) RegisterProcessor(name string, f ProcessorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[name] = f
}

// RegisterWriter adds or replaces a writer factory.
func (r *Registry) RegisterWriter(name string, f WriterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writers[name] = f
}

// Processors returns registered processor names, sorted.
func (r *Registry) Processors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.processors)
}

// Writers returns registered writer names, sorted.
func (r *Registry) Writers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.writers)
}

// Build constructs one stage from spec. An empty writer defaults to jsonl
// and an empty name defaults to the processor name.
func (r *Registry) Build(spec Spec, deps Deps) (Stage, error) {
	r.mu.RLock()
	pf, pok := r.processors[spec.Processor]
	writerName := spec.Writer
	if writerName == "" {
		writerName = "jsonl"
	}
	wf, wok := r.writers[writerName]
	r.mu.RUnlock()

	name := spec.Name
	if name == "" {
		name = spec.Processor
	}
	if !pok {
		return Stage{}, fmt.Errorf("stage %q: unknown processor %q", name, spec.Processor)
	}
	if !wok {
		return Stage{}, fmt.Errorf("stage %q: unknown writer %q", name, writerName)
	}

	opts := Options(spec.Options)
	proc, err := pf(opts, deps)
	if err != nil {
		return Stage{}, fmt.Errorf("stage %q: %w", name, err)
	}
	w, err := wf(opts)
	if err != nil {
		return Stage{}, fmt.Errorf("stage %q: %w", name, err)
	}
	return Stage{Name: name, Processor: proc, Writer: w}, nil
}

// BuildChain constructs a chain from specs in order.
func (r *Registry) BuildChain(specs []Spec, deps Deps) (*Chain, error) {
	chain, err := NewChain()
	if err != nil {
		return nil, err
	}
	for _, spec := range specs {
		s, err := r.Build(spec, deps)
		if err != nil {
			return nil, err
		}
		if err := chain.Append(s); err != nil {
			return nil, err
		}
	}
	return chain, nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
