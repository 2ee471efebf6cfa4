package metadata

import (
	"context"
	"log/slog"

	"github.com/goliatone/go-unitofwork/internal/cacheinfra"
)

// Driver loads mappings for classes that were not registered in code.
type Driver interface {
	// ClassNames lists every class the driver can load.
	ClassNames() []string
	// Load fills class (whose Name is set) from the mapping source.
	Load(class *ClassMetadata) error
}

// Factory resolves metadata through a Registry, loading missing classes
// from an optional Driver. Resolved classes are kept in a sturdyc cache
// so hot lookups skip the registry maps.
type Factory struct {
	registry *Registry
	driver   Driver
	cache    *cacheinfra.Cache[*ClassMetadata]
	logger   *slog.Logger
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithDriver sets the mapping driver.
func WithDriver(d Driver) FactoryOption {
	return func(f *Factory) { f.driver = d }
}

// WithLogger sets the logger used for load diagnostics.
func WithLogger(l *slog.Logger) FactoryOption {
	return func(f *Factory) {
		if l != nil {
			f.logger = l
		}
	}
}

var _ Provider = (*Factory)(nil)

// NewFactory builds a factory over registry.
func NewFactory(registry *Registry, cfg cacheinfra.Config, opts ...FactoryOption) (*Factory, error) {
	cache, err := cacheinfra.New[*ClassMetadata](cfg)
	if err != nil {
		return nil, err
	}
	f := &Factory{
		registry: registry,
		cache:    cache,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Registry exposes the underlying registry.
func (f *Factory) Registry() *Registry {
	return f.registry
}

func cacheKey(name string) string {
	return "class:" + name
}

// Class returns the metadata for name, loading it from the driver when it
// is not registered yet.
func (f *Factory) Class(name string) (*ClassMetadata, error) {
	return f.cache.GetOrFetch(context.Background(), cacheKey(name), func(context.Context) (*ClassMetadata, error) {
		if c, err := f.registry.Class(name); err == nil {
			return c, nil
		}
		return f.load(name)
	})
}

// ClassFor returns the metadata of entity's concrete type.
func (f *Factory) ClassFor(entity any) (*ClassMetadata, error) {
	name, ok := f.registry.NameOf(entity)
	if !ok {
		return f.registry.ClassFor(entity)
	}
	return f.Class(name)
}

// Register registers a class in code and drops cached entries, which may
// hold ancestors without the new subclass.
func (f *Factory) Register(sample any, class ClassMetadata) (*ClassMetadata, error) {
	stored, err := f.registry.Register(sample, class)
	if err != nil {
		return nil, err
	}
	f.Invalidate()
	return stored, nil
}

// LoadAll eagerly loads every class the driver knows.
func (f *Factory) LoadAll() error {
	if f.driver == nil {
		return nil
	}
	for _, name := range f.driver.ClassNames() {
		if _, err := f.Class(name); err != nil {
			return err
		}
	}
	return nil
}

// Invalidate drops every cached class.
func (f *Factory) Invalidate() {
	f.cache.DeleteByPrefix("class:")
}

func (f *Factory) load(name string) (*ClassMetadata, error) {
	if f.driver == nil {
		return nil, mappingErrorf(name, "class %s is not mapped", name)
	}

	class := ClassMetadata{Name: name}
	class.Type, _ = f.registry.BoundType(name)
	if err := f.driver.Load(&class); err != nil {
		return nil, mappingError(name, err)
	}
	if class.Parent != "" {
		if _, err := f.Class(class.Parent); err != nil {
			return nil, err
		}
	}

	stored, err := f.registry.Register(nil, class)
	if err != nil {
		return nil, err
	}

	// ancestors were replaced in the registry with updated subclass lists
	for p := stored.Parent; p != ""; {
		f.cache.Delete(cacheKey(p))
		parent, err := f.registry.Class(p)
		if err != nil {
			break
		}
		p = parent.Parent
	}

	f.logger.Debug("metadata loaded", "class", name, "table", stored.Table, "fields", len(stored.Fields))
	return stored, nil
}
