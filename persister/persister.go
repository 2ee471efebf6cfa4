package persister

import (
	"context"

	"github.com/goliatone/go-unitofwork/metadata"
)

// Change is the old and new value of one field.
type Change struct {
	Old any
	New any
}

// ChangeSet maps field names to their changes.
type ChangeSet map[string]Change

// Fields lists the changed field names.
func (c ChangeSet) Fields() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	return out
}

// Persister writes single entities of one class.
type Persister interface {
	// Insert writes entity and returns the identifier generated by storage,
	// or nil when the identifier was assigned before the insert.
	Insert(ctx context.Context, entity any) (any, error)
	// Update writes the changed fields of entity.
	Update(ctx context.Context, entity any, changes ChangeSet) error
	// Delete removes entity.
	Delete(ctx context.Context, entity any) error
}

// CollectionPersister writes the join rows of an owning collection.
type CollectionPersister interface {
	// Sync inserts rows for added targets and removes rows for removed ones.
	Sync(ctx context.Context, owner any, assoc metadata.AssociationMapping, inserted, removed []any) error
	// DeleteRows removes every row of owner, ahead of deleting owner itself.
	DeleteRows(ctx context.Context, owner any, assoc metadata.AssociationMapping) error
}

// Resolver selects the persister for a class.
type Resolver interface {
	PersisterFor(class *metadata.ClassMetadata) (Persister, error)
	CollectionPersisterFor(class *metadata.ClassMetadata, assoc metadata.AssociationMapping) (CollectionPersister, error)
}
