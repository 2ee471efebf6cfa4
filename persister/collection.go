package persister

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-unitofwork/metadata"
)

// ManyToManyPersister keeps the join table of an owning collection in sync.
type ManyToManyPersister struct {
	db       bun.IDB
	provider metadata.Provider
}

var _ CollectionPersister = (*ManyToManyPersister)(nil)

// NewManyToManyPersister creates a join table persister.
func NewManyToManyPersister(db bun.IDB, provider metadata.Provider) *ManyToManyPersister {
	return &ManyToManyPersister{db: db, provider: provider}
}

func (p *ManyToManyPersister) Sync(ctx context.Context, owner any, assoc metadata.AssociationMapping, inserted, removed []any) error {
	if len(inserted) == 0 && len(removed) == 0 {
		return nil
	}
	db, err := conn(ctx, p.db)
	if err != nil {
		return err
	}
	jt, ownerID, err := p.prepare(owner, assoc)
	if err != nil {
		return err
	}

	for _, target := range removed {
		targetID, err := p.targetID(target, assoc)
		if err != nil {
			return err
		}
		if err := deleteRow(ctx, db, jt.Name, []condition{
			{column: jt.JoinColumn, value: ownerID},
			{column: jt.InverseJoinColumn, value: targetID},
		}); err != nil {
			return err
		}
	}

	for _, target := range inserted {
		targetID, err := p.targetID(target, assoc)
		if err != nil {
			return err
		}
		values := map[string]any{jt.JoinColumn: ownerID, jt.InverseJoinColumn: targetID}
		if _, err := insertRow(ctx, db, jt.Name, values, ""); err != nil {
			return err
		}
	}
	return nil
}

func (p *ManyToManyPersister) DeleteRows(ctx context.Context, owner any, assoc metadata.AssociationMapping) error {
	db, err := conn(ctx, p.db)
	if err != nil {
		return err
	}
	jt, ownerID, err := p.prepare(owner, assoc)
	if err != nil {
		return err
	}
	return deleteRow(ctx, db, jt.Name, []condition{{column: jt.JoinColumn, value: ownerID}})
}

func (p *ManyToManyPersister) prepare(owner any, assoc metadata.AssociationMapping) (*metadata.JoinTable, any, error) {
	if !assoc.UsesJoinTable() || assoc.JoinTable == nil {
		return nil, nil, fmt.Errorf("association %s has no join table", assoc.Name)
	}
	ownerID, err := identifierOf(p.provider, owner)
	if err != nil {
		return nil, nil, err
	}
	if ownerID == nil {
		return nil, nil, fmt.Errorf("association %s: owner has no identifier", assoc.Name)
	}
	return assoc.JoinTable, ownerID, nil
}

func (p *ManyToManyPersister) targetID(target any, assoc metadata.AssociationMapping) (any, error) {
	id, err := identifierOf(p.provider, target)
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, fmt.Errorf("association %s: target %T has no identifier", assoc.Name, target)
	}
	return id, nil
}
