package persister

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-unitofwork/metadata"
)

// StandardPersister writes classes stored in a single table: classes
// without inheritance and members of single table hierarchies, for which
// the discriminator column is written too.
type StandardPersister struct {
	db       bun.IDB
	provider metadata.Provider
	class    *metadata.ClassMetadata
}

var _ Persister = (*StandardPersister)(nil)

// NewStandardPersister creates a persister for class. db may be nil when
// every call carries a transaction through WithTx.
func NewStandardPersister(db bun.IDB, provider metadata.Provider, class *metadata.ClassMetadata) *StandardPersister {
	return &StandardPersister{db: db, provider: provider, class: class}
}

func (p *StandardPersister) Insert(ctx context.Context, entity any) (any, error) {
	db, err := conn(ctx, p.db)
	if err != nil {
		return nil, err
	}
	values, err := row{provider: p.provider, class: p.class, owns: allColumns}.insertValues(entity)
	if err != nil {
		return nil, err
	}
	if p.class.Inheritance == metadata.InheritanceSingleTable {
		values[p.class.DiscriminatorColumn] = p.class.DiscriminatorValue
	}
	return insertRow(ctx, db, p.class.Table, values, generatedColumn(p.class))
}

func (p *StandardPersister) Update(ctx context.Context, entity any, changes ChangeSet) error {
	db, err := conn(ctx, p.db)
	if err != nil {
		return err
	}
	values, err := row{provider: p.provider, class: p.class, owns: allColumns}.updateValues(entity, changes)
	if err != nil {
		return err
	}
	conds, err := identifierConditions(p.class, entity, changes)
	if err != nil {
		return err
	}
	return updateRow(ctx, db, p.class.Table, values, conds)
}

func (p *StandardPersister) Delete(ctx context.Context, entity any) error {
	db, err := conn(ctx, p.db)
	if err != nil {
		return err
	}
	conds, err := identifierConditions(p.class, entity, nil)
	if err != nil {
		return err
	}
	return deleteRow(ctx, db, p.class.Table, conds)
}

func conn(ctx context.Context, db bun.IDB) (bun.IDB, error) {
	if tx, ok := TxFrom(ctx); ok {
		return tx, nil
	}
	if db == nil {
		return nil, fmt.Errorf("no database handle or transaction in context")
	}
	return db, nil
}

// generatedColumn names the identifier column storage fills on insert.
func generatedColumn(class *metadata.ClassMetadata) string {
	if !class.IsPostInsertGenerator() {
		return ""
	}
	f, _ := class.Field(class.Identifier[0])
	return f.Column
}

func insertRow(ctx context.Context, db bun.IDB, table string, values map[string]any, returning string) (any, error) {
	q := db.NewInsert().Model(&values).TableExpr("?", bun.Ident(table))
	if returning == "" {
		_, err := q.Exec(ctx)
		return nil, err
	}

	var id int64
	if err := q.Returning("?", bun.Ident(returning)).Scan(ctx, &id); err != nil {
		return nil, err
	}
	return id, nil
}

func updateRow(ctx context.Context, db bun.IDB, table string, values map[string]any, conds []condition) error {
	if len(values) == 0 {
		return nil
	}
	q := db.NewUpdate().Model(&values).TableExpr("?", bun.Ident(table))
	for _, c := range conds {
		q = q.Where("? = ?", bun.Ident(c.column), c.value)
	}
	_, err := q.Exec(ctx)
	return err
}

func deleteRow(ctx context.Context, db bun.IDB, table string, conds []condition) error {
	q := db.NewDelete().TableExpr("?", bun.Ident(table))
	for _, c := range conds {
		q = q.Where("? = ?", bun.Ident(c.column), c.value)
	}
	_, err := q.Exec(ctx)
	return err
}
