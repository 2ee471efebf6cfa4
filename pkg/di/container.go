package di

import (
	"context"
	"fmt"
	"log/slog"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-unitofwork/metadata"
	"github.com/goliatone/go-unitofwork/persister"
	"github.com/goliatone/go-unitofwork/pkg/storage"
	"github.com/goliatone/go-unitofwork/unitofwork"
)

// Container wires the database, mapping metadata, persisters and metrics
// shared by the units of work it creates. Units of work themselves are not
// shared: create one per logical transaction.
type Container struct {
	config     Config
	logger     *slog.Logger
	registerer prometheus.Registerer

	db         *bun.DB
	ownsDB     bool
	registry   *metadata.Registry
	factory    *metadata.Factory
	dispatcher *persister.Dispatcher
	metrics    *unitofwork.Metrics
}

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRegisterer sets where metrics are registered when Config.Metrics is
// on. Defaults to prometheus.DefaultRegisterer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Container) { c.registerer = reg }
}

// WithDB uses db instead of opening Config.Storage. The caller keeps
// ownership and Close leaves it open.
func WithDB(db *bun.DB) Option {
	return func(c *Container) { c.db = db }
}

// NewContainer opens storage and builds the shared components.
func NewContainer(ctx context.Context, config Config, opts ...Option) (*Container, error) {
	c := &Container{
		config:     config,
		logger:     slog.Default(),
		registerer: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := config.MetadataCache.Validate(); err != nil {
		return nil, err
	}

	c.registry = metadata.NewRegistry()
	factoryOpts := []metadata.FactoryOption{metadata.WithLogger(c.logger)}
	if len(config.Mappings) > 0 {
		driver, err := metadata.NewYAMLDriver(config.Mappings...)
		if err != nil {
			return nil, fmt.Errorf("load mappings: %w", err)
		}
		factoryOpts = append(factoryOpts, metadata.WithDriver(driver))
	}
	factory, err := metadata.NewFactory(c.registry, config.MetadataCache, factoryOpts...)
	if err != nil {
		return nil, err
	}
	c.factory = factory

	if c.db == nil {
		if c.db, err = storage.Open(ctx, config.Storage, c.logger); err != nil {
			return nil, err
		}
		c.ownsDB = true
	}

	// registered last, nothing after this point can fail
	if config.Metrics {
		if c.metrics, err = unitofwork.NewMetrics(c.registerer); err != nil {
			c.Close()
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	c.dispatcher = persister.NewDispatcher(c.db, c.factory)
	return c, nil
}

// NewContainerWithDefaults creates a container from DefaultConfig.
func NewContainerWithDefaults(ctx context.Context, opts ...Option) (*Container, error) {
	return NewContainer(ctx, DefaultConfig(), opts...)
}

// Config returns the configuration the container was built with.
func (c *Container) Config() Config { return c.config }

// DB returns the shared database handle.
func (c *Container) DB() *bun.DB { return c.db }

// Registry returns the registry mappings are registered in.
func (c *Container) Registry() *metadata.Registry { return c.registry }

// Metadata returns the cached metadata provider.
func (c *Container) Metadata() *metadata.Factory { return c.factory }

// Dispatcher returns the persister resolver shared by every unit of work.
func (c *Container) Dispatcher() *persister.Dispatcher { return c.dispatcher }

// Metrics returns the unit of work collectors, nil when metrics are off.
func (c *Container) Metrics() *unitofwork.Metrics { return c.metrics }

// Bind associates a class mapped in a YAML file with its Go type.
func (c *Container) Bind(name string, sample any) error {
	return c.registry.Bind(name, sample)
}

// Register maps an entity type, see metadata.Registry.Register.
func (c *Container) Register(sample any, class metadata.ClassMetadata) (*metadata.ClassMetadata, error) {
	return c.factory.Register(sample, class)
}

// NewUnitOfWork creates a unit of work over the shared components. opts
// are applied after the container defaults.
func (c *Container) NewUnitOfWork(opts ...unitofwork.Option) *unitofwork.UnitOfWork {
	base := []unitofwork.Option{
		unitofwork.WithConfig(c.config.UnitOfWork),
		unitofwork.WithLogger(c.logger),
		unitofwork.WithMetrics(c.metrics),
	}
	return unitofwork.New(c.factory, c.dispatcher, append(base, opts...)...)
}

// RunInTx runs fn with a fresh unit of work and commits it inside one
// database transaction. The transaction is rolled back when fn or Commit
// fails.
func (c *Container) RunInTx(ctx context.Context, fn func(ctx context.Context, uow *unitofwork.UnitOfWork) error) error {
	return c.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		ctx = persister.WithTx(ctx, tx)
		uow := c.NewUnitOfWork()
		if err := fn(ctx, uow); err != nil {
			return err
		}
		return uow.Commit(ctx)
	})
}

// UseRepository routes the writes of class through repo.
func UseRepository[T any](c *Container, class string, repo repository.Repository[T]) error {
	meta, err := c.factory.Class(class)
	if err != nil {
		return err
	}
	persister.UseRepository(c.dispatcher, meta, repo)
	return nil
}

// Close closes the database when the container opened it.
func (c *Container) Close() error {
	if c.ownsDB && c.db != nil {
		return c.db.Close()
	}
	return nil
}
