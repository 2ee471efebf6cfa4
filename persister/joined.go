package persister

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-unitofwork/metadata"
)

// JoinedPersister writes classes of a joined hierarchy: the root table
// holds the fields declared by the root and the discriminator, and every
// subclass table holds the identifier plus the fields its class declares.
type JoinedPersister struct {
	db       bun.IDB
	provider metadata.Provider
	class    *metadata.ClassMetadata
}

var _ Persister = (*JoinedPersister)(nil)

// NewJoinedPersister creates a persister for class.
func NewJoinedPersister(db bun.IDB, provider metadata.Provider, class *metadata.ClassMetadata) *JoinedPersister {
	return &JoinedPersister{db: db, provider: provider, class: class}
}

// hierarchy returns the classes from the root down to p.class.
func (p *JoinedPersister) hierarchy() ([]*metadata.ClassMetadata, error) {
	var chain []*metadata.ClassMetadata
	for name := p.class.Name; name != ""; {
		c, err := p.provider.Class(name)
		if err != nil {
			return nil, err
		}
		chain = append([]*metadata.ClassMetadata{c}, chain...)
		name = c.Parent
	}
	return chain, nil
}

// Insert writes the root row first so a generated identifier is known
// before the subclass rows are written.
func (p *JoinedPersister) Insert(ctx context.Context, entity any) (any, error) {
	db, err := conn(ctx, p.db)
	if err != nil {
		return nil, err
	}
	chain, err := p.hierarchy()
	if err != nil {
		return nil, err
	}

	var generated any
	for i, level := range chain {
		values, err := row{provider: p.provider, class: p.class, owns: declaredBy(level.Name)}.insertValues(entity)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			values[p.class.DiscriminatorColumn] = p.class.DiscriminatorValue
			generated, err = insertRow(ctx, db, level.Table, values, generatedColumn(p.class))
			if err != nil {
				return nil, err
			}
			continue
		}
		if generated != nil {
			values[generatedColumn(p.class)] = generated
		}
		if _, err := insertRow(ctx, db, level.Table, values, ""); err != nil {
			return nil, err
		}
	}
	return generated, nil
}

func (p *JoinedPersister) Update(ctx context.Context, entity any, changes ChangeSet) error {
	db, err := conn(ctx, p.db)
	if err != nil {
		return err
	}
	chain, err := p.hierarchy()
	if err != nil {
		return err
	}
	conds, err := identifierConditions(p.class, entity, changes)
	if err != nil {
		return err
	}
	for _, level := range chain {
		values, err := row{provider: p.provider, class: p.class, owns: declaredBy(level.Name)}.updateValues(entity, changes)
		if err != nil {
			return err
		}
		if err := updateRow(ctx, db, level.Table, values, conds); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes subclass rows before the root row.
func (p *JoinedPersister) Delete(ctx context.Context, entity any) error {
	db, err := conn(ctx, p.db)
	if err != nil {
		return err
	}
	chain, err := p.hierarchy()
	if err != nil {
		return err
	}
	conds, err := identifierConditions(p.class, entity, nil)
	if err != nil {
		return err
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if err := deleteRow(ctx, db, chain[i].Table, conds); err != nil {
			return err
		}
	}
	return nil
}
