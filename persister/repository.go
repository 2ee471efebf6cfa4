package persister

import (
	"context"
	"fmt"

	repository "github.com/goliatone/go-repository-bun"

	"github.com/goliatone/go-unitofwork/internal/identitymap"
	"github.com/goliatone/go-unitofwork/metadata"
)

// RepositoryPersister adapts a go-repository-bun repository so existing
// bun models can be written by the unit of work. Writes use the *Tx
// variants when the context carries a transaction.
type RepositoryPersister[T any] struct {
	repo  repository.Repository[T]
	class *metadata.ClassMetadata
}

var _ Persister = (*RepositoryPersister[any])(nil)

// NewRepositoryPersister wraps repo for entities of class.
func NewRepositoryPersister[T any](repo repository.Repository[T], class *metadata.ClassMetadata) *RepositoryPersister[T] {
	return &RepositoryPersister[T]{repo: repo, class: class}
}

func (p *RepositoryPersister[T]) record(entity any) (T, error) {
	record, ok := entity.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: repository persister cannot write %T", p.class.Name, entity)
	}
	return record, nil
}

func (p *RepositoryPersister[T]) Insert(ctx context.Context, entity any) (any, error) {
	record, err := p.record(entity)
	if err != nil {
		return nil, err
	}

	var created T
	if tx, ok := TxFrom(ctx); ok {
		created, err = p.repo.CreateTx(ctx, tx, record)
	} else {
		created, err = p.repo.Create(ctx, record)
	}
	if err != nil {
		return nil, err
	}

	if !p.class.IsPostInsertGenerator() {
		return nil, nil
	}
	ids, err := p.class.IdentifierValues(created)
	if err != nil {
		return nil, err
	}
	if identitymap.IsAbsent(ids[0]) {
		return nil, fmt.Errorf("%s: repository returned no generated identifier", p.class.Name)
	}
	return ids[0], nil
}

// Update writes the whole record; the repository updates by primary key.
func (p *RepositoryPersister[T]) Update(ctx context.Context, entity any, changes ChangeSet) error {
	if len(changes) == 0 {
		return nil
	}
	record, err := p.record(entity)
	if err != nil {
		return err
	}
	if tx, ok := TxFrom(ctx); ok {
		_, err = p.repo.UpdateTx(ctx, tx, record)
	} else {
		_, err = p.repo.Update(ctx, record)
	}
	return err
}

func (p *RepositoryPersister[T]) Delete(ctx context.Context, entity any) error {
	record, err := p.record(entity)
	if err != nil {
		return err
	}
	if tx, ok := TxFrom(ctx); ok {
		return p.repo.DeleteTx(ctx, tx, record)
	}
	return p.repo.Delete(ctx, record)
}
