// Package unitofwork tracks the entities of one logical transaction and
// writes their changes to storage in dependency order.
//
// Entities are non-nil pointers to structs mapped in a metadata.Provider.
// Loaded rows enter the unit of work through CreateOrUpdateManaged, new
// entities through Save or RegisterNew, and removals through Delete or
// RegisterDeleted. Commit compares managed entities with their snapshots
// and hands the resulting inserts, updates, link row changes and deletes
// to the persisters of a persister.Resolver:
//
//	uow := unitofwork.New(factory, persister.NewDispatcher(db, factory))
//
//	order := &Order{Total: 42, Customer: &Customer{Name: "Ana"}}
//	if err := uow.Save(ctx, order); err != nil {
//		return err
//	}
//
//	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
//		return uow.Commit(persister.WithTx(ctx, tx))
//	})
//
// A failed Commit leaves the unit of work in PhaseFailed. Roll back the
// transaction and call Reset before reusing it.
//
// A UnitOfWork is not safe for concurrent use.
package unitofwork
