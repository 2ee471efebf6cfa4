package persister

import (
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/uptrace/bun"

	repository "github.com/goliatone/go-repository-bun"

	"github.com/goliatone/go-unitofwork/metadata"
)

// Dispatcher resolves persisters per class. Classes of joined hierarchies
// get a JoinedPersister, every other class a StandardPersister, unless a
// persister was registered for the class explicitly. Resolved persisters
// are reused; a Dispatcher is safe for concurrent use.
type Dispatcher struct {
	db       bun.IDB
	provider metadata.Provider

	persisters  *xsync.MapOf[string, Persister]
	collections *xsync.MapOf[string, CollectionPersister]
	joinTables  CollectionPersister
}

var _ Resolver = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher writing through db.
func NewDispatcher(db bun.IDB, provider metadata.Provider) *Dispatcher {
	return &Dispatcher{
		db:          db,
		provider:    provider,
		persisters:  xsync.NewMapOf[string, Persister](),
		collections: xsync.NewMapOf[string, CollectionPersister](),
		joinTables:  NewManyToManyPersister(db, provider),
	}
}

// Register overrides the persister of a class.
func (d *Dispatcher) Register(class string, p Persister) {
	d.persisters.Store(class, p)
}

// RegisterCollection overrides the persister of one owning collection.
func (d *Dispatcher) RegisterCollection(class, assoc string, p CollectionPersister) {
	d.collections.Store(class+"."+assoc, p)
}

// UseRepository routes writes of class through a go-repository-bun repository.
func UseRepository[T any](d *Dispatcher, class *metadata.ClassMetadata, repo repository.Repository[T]) {
	d.Register(class.Name, NewRepositoryPersister(repo, class))
}

func (d *Dispatcher) PersisterFor(class *metadata.ClassMetadata) (Persister, error) {
	if p, ok := d.persisters.Load(class.Name); ok {
		return p, nil
	}

	var p Persister
	switch class.Inheritance {
	case metadata.InheritanceJoined:
		p = NewJoinedPersister(d.db, d.provider, class)
	default:
		p = NewStandardPersister(d.db, d.provider, class)
	}
	actual, _ := d.persisters.LoadOrStore(class.Name, p)
	return actual, nil
}

func (d *Dispatcher) CollectionPersisterFor(class *metadata.ClassMetadata, assoc metadata.AssociationMapping) (CollectionPersister, error) {
	if p, ok := d.collections.Load(class.Name + "." + assoc.Name); ok {
		return p, nil
	}
	return d.joinTables, nil
}
